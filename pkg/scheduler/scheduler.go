// Package scheduler implements the single dedicated worker thread that
// drives the task queue end to end (spec.md §4.5/§4.6): selecting a batch,
// publishing it to processing, dispatching it to the executor, committing
// in order, and notifying webhooks.
package scheduler

import (
	"sync"
	"time"

	"github.com/cuemby/stratum/pkg/config"
	"github.com/cuemby/stratum/pkg/executor"
	"github.com/cuemby/stratum/pkg/indexmapper"
	"github.com/cuemby/stratum/pkg/log"
	"github.com/cuemby/stratum/pkg/processing"
	"github.com/cuemby/stratum/pkg/storage"
	"github.com/cuemby/stratum/pkg/webhook"
	"github.com/rs/zerolog"
)

// Scheduler is the run loop described in spec.md §4.5: no other goroutine
// ever executes tasks.
type Scheduler struct {
	store    storage.Store
	mapper   *indexmapper.Mapper
	proc     *processing.Set
	exec     *executor.Executor
	notifier *webhook.Notifier
	opts     config.Options
	logger   zerolog.Logger

	wake   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	// onInit, when set, is signaled once at the top of run() before the
	// first tick, giving tests a breakpoint to synchronize on (spec.md
	// §4.5 "signal Init breakpoint").
	onInit func()

	mu      sync.Mutex
	stopped bool
}

// New returns a Scheduler wired to its collaborators. Call Start to begin
// the run loop.
func New(store storage.Store, mapper *indexmapper.Mapper, proc *processing.Set, exec *executor.Executor, notifier *webhook.Notifier, opts config.Options) *Scheduler {
	return &Scheduler{
		store:    store,
		mapper:   mapper,
		proc:     proc,
		exec:     exec,
		notifier: notifier,
		opts:     opts,
		logger:   log.WithComponent("scheduler"),
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// OnInit registers a callback fired once at the top of the run loop, before
// the first tick. Intended for tests that need to synchronize on startup.
func (s *Scheduler) OnInit(f func()) {
	s.onInit = f
}

// Start begins the run loop in its own goroutine.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop signals the run loop to exit and waits for it to finish its current
// tick.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.stopCh)
	<-s.doneCh
}

// Wake signals the run loop to reconsider the queue immediately instead of
// waiting out the rest of its timeout. Safe to call from any goroutine
// (spec.md §4.5 "wake-up signals originate from register, batch
// completion, and external triggers").
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run is the single dedicated worker thread (spec.md §4.5 and §5).
func (s *Scheduler) run() {
	defer close(s.doneCh)

	if s.onInit != nil {
		s.onInit()
	}

	if fixed, err := s.store.ReconcileStuckProcessing(); err != nil {
		s.logger.Error().Err(err).Msg("failed to reconcile tasks stuck in processing from a prior run")
	} else if len(fixed) > 0 {
		s.logger.Warn().Int("count", len(fixed)).Msg("marked tasks stuck in processing as failed after restart")
	}

	for {
		outcome := s.tickSafely()
		switch outcome {
		case TickAgain:
			continue
		case WaitForSignal:
			if !s.waitForWork() {
				return
			}
		case StopProcessingForever:
			s.logger.Error().Msg("run loop stopping permanently")
			return
		}
	}
}

// waitForWork blocks until Wake is called or the 60-second timeout elapses,
// returning false if Stop was requested meanwhile.
func (s *Scheduler) waitForWork() bool {
	timeout := s.opts.WakeUpTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	select {
	case <-s.wake:
		return true
	case <-time.After(timeout):
		return true
	case <-s.stopCh:
		return false
	}
}

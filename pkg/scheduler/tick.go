package scheduler

import (
	"fmt"
	"time"

	stratumerrors "github.com/cuemby/stratum/pkg/errors"
	"github.com/cuemby/stratum/pkg/metrics"
	"github.com/cuemby/stratum/pkg/types"

	"github.com/cuemby/stratum/pkg/cleanup"
)

// TickOutcome tells run what to do after one iteration of tick.
type TickOutcome int

const (
	// TickAgain means a batch ran (or selection found nothing worth
	// waiting on) and the loop should immediately reconsider the queue.
	TickAgain TickOutcome = iota
	// WaitForSignal means the queue is empty; the loop should block on
	// Wake or the wake-up timeout before trying again.
	WaitForSignal
	// StopProcessingForever means a fatal, unrecoverable error was hit
	// and the run loop must stop accepting new work (spec.md §4.5).
	StopProcessingForever
)

// tickSafely wraps tick with the panic-catching boundary required by
// spec.md §4.5: a panic inside a handler must never take down the whole
// process. Every task that was being processed when the panic occurred is
// marked failed with an internal error instead.
func (s *Scheduler) tickSafely() (outcome TickOutcome) {
	var tasks []*types.Task
	defer func() {
		if r := recover(); r != nil {
			metrics.TickPanicsTotal.Inc()
			s.logger.Error().Interface("panic", r).Msg("recovered panic in run loop tick")
			if uids, _ := s.proc.Snapshot(); len(uids) > 0 {
				tasks, _, _ = s.store.GetTasks(types.Query{UIDs: uids, Limit: uint32(len(uids))})
			}
			s.failProcessingTasks(tasks, fmt.Errorf("panic during batch execution: %v", r))
			s.proc.Clear()
			outcome = TickAgain
		}
	}()

	var err error
	outcome, tasks, err = s.tick()
	if err != nil {
		s.logger.Error().Err(err).Msg("tick failed")
		var serr *stratumerrors.Error
		if stratumerrors.As(err, &serr) && !serr.Recoverable() {
			return StopProcessingForever
		}
		return TickAgain
	}
	return outcome
}

// tick runs the five steps of spec.md §4.6 once: select, publish
// processing, dispatch, commit, post-commit. The returned tasks slice is
// always nil; the panic boundary finds a mid-flight batch through the
// processing set instead.
func (s *Scheduler) tick() (TickOutcome, []*types.Task, error) {
	timer := metrics.NewTimer()

	// Step 1: select.
	tasks, stopReason, err := s.selectBatch()
	if err != nil {
		return TickAgain, nil, err
	}
	if len(tasks) == 0 {
		return WaitForSignal, nil, nil
	}

	indexName := ""
	for _, t := range tasks {
		if t.IndexUID != nil {
			indexName = *t.IndexUID
			break
		}
	}

	// Step 2: publish processing.
	batch := &types.Batch{StartedAt: time.Now(), Stats: types.NewBatchStats()}
	if err := s.store.RegisterBatch(batch); err != nil {
		return TickAgain, nil, err
	}

	now := time.Now()
	uids := make([]types.TaskID, 0, len(tasks))
	for _, t := range tasks {
		t.BatchUID = &batch.UID
		t.Status = types.StatusProcessing
		t.StartedAt = &now
		uids = append(uids, t.UID)
	}
	if err := s.store.UpdateTasks(tasks); err != nil {
		return TickAgain, nil, err
	}
	s.proc.Start(batch.UID, uids)

	// Step 3: dispatch. Handlers persist each task's terminal status
	// themselves as they finish it, so a panic partway through still
	// leaves already-finished tasks correctly recorded.
	dispatchErr := s.exec.Execute(indexName, tasks)
	if dispatchErr != nil {
		s.logger.Error().Err(dispatchErr).Msg("batch dispatch returned an error")
	}

	// Step 4: commit. Index-side mutations already committed (or were
	// rolled back) inside the executor; here the batch row is finalized
	// with the now-terminal task stats.
	finishedAt := time.Now()
	batch.FinishedAt = &finishedAt
	batch.StopReason = stopReason.String()
	for _, t := range tasks {
		batch.Stats.Add(t)
	}
	if err := s.store.UpdateBatch(batch); err != nil {
		s.logger.Error().Err(err).Uint32("batch", batch.UID).Msg("failed to persist finished batch")
	}

	metrics.BatchesTotal.Inc()
	metrics.BatchSize.Observe(float64(len(tasks)))
	metrics.BatchStopReasons.WithLabelValues(string(stopReason.StopKind())).Inc()
	timer.ObserveDuration(metrics.BatchDuration)
	timer.ObserveDuration(metrics.TickDuration)
	for _, t := range tasks {
		metrics.TasksFinishedTotal.WithLabelValues(string(t.Kind), string(t.Status)).Inc()
	}

	// Step 5: post-commit.
	s.proc.Clear()
	s.notifier.Notify(tasks)

	if registered, err := cleanup.MaybeRegister(s.store, s.opts); err != nil {
		s.logger.Error().Err(err).Msg("auto-cleanup check failed")
	} else if registered != nil {
		metrics.CleanupTasksRegisteredTotal.Inc()
		s.Wake()
	}

	return TickAgain, nil, nil
}

// failProcessingTasks marks every task in tasks failed with an internal
// error, used when the panic boundary catches a handler crash mid-batch.
func (s *Scheduler) failProcessingTasks(tasks []*types.Task, cause error) {
	if len(tasks) == 0 {
		return
	}
	now := time.Now()
	for _, t := range tasks {
		if t.Status.IsTerminal() {
			continue
		}
		t.Status = types.StatusFailed
		t.Details = t.Details.ToFailed()
		t.FinishedAt = &now
		serr := stratumerrors.Internal("panic during batch execution", cause)
		t.Error = &types.ResponseError{
			Message: serr.Error(),
			Code:    serr.Code,
			Type:    string(serr.ErrType),
		}
	}
	if err := s.store.UpdateTasks(tasks); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist tasks failed by panic recovery")
	}
}

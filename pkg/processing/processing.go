// Package processing holds the scheduler's in-memory processing set
// (spec.md §4.3): the set of task uids currently being executed by the
// running batch, a cooperative must_stop flag, and the uid of the batch
// in flight. It is never persisted; every transition is paired with a
// task-store write by the caller.
package processing

import (
	"sync"

	"github.com/cuemby/stratum/pkg/types"
)

// Set is the processing set, protected by a single reader-writer lock.
type Set struct {
	mu       sync.RWMutex
	uids     map[types.TaskID]struct{}
	batchUID *types.BatchID
	mustStop bool
}

// New returns an empty processing set.
func New() *Set {
	return &Set{uids: make(map[types.TaskID]struct{})}
}

// Start marks uids as processing under batchUID, clearing any stale
// must_stop flag from a previous batch.
func (s *Set) Start(batchUID types.BatchID, uids []types.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uids = make(map[types.TaskID]struct{}, len(uids))
	for _, u := range uids {
		s.uids[u] = struct{}{}
	}
	s.batchUID = &batchUID
	s.mustStop = false
}

// Clear empties the processing set at the end of a batch (spec.md §4.6
// step 5, "post-commit").
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uids = make(map[types.TaskID]struct{})
	s.batchUID = nil
	s.mustStop = false
}

// Contains reports whether uid is currently being processed.
func (s *Set) Contains(uid types.TaskID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.uids[uid]
	return ok
}

// Snapshot returns the uids currently processing and the in-flight batch
// uid, if any.
func (s *Set) Snapshot() ([]types.TaskID, *types.BatchID) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uids := make([]types.TaskID, 0, len(s.uids))
	for u := range s.uids {
		uids = append(uids, u)
	}
	return uids, s.batchUID
}

// RaiseStopIfProcessing sets must_stop iff any of targets is currently
// processing, returning whether it did. Called when a task-cancellation
// is registered (spec.md §4.3): "must_stop is raised when a newly
// registered task-cancellation's target set intersects processing".
func (s *Set) RaiseStopIfProcessing(targets []types.TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range targets {
		if _, ok := s.uids[t]; ok {
			s.mustStop = true
			return true
		}
	}
	return false
}

// MustStop reports whether the running batch should abort cooperatively.
// Handlers poll this at bounded intervals (spec.md §4.6 step 3).
func (s *Set) MustStop() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mustStop
}

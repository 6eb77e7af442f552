package types

import "time"

// BatchStats aggregates per-status and per-kind task counts over a batch's
// member tasks (spec.md §3).
type BatchStats struct {
	TotalNbTasks int            `json:"totalNbTasks"`
	Status       map[Status]int `json:"status"`
	Kinds        map[Kind]int   `json:"types"`
	IndexUIDs    map[string]int `json:"indexUids,omitempty"`
}

// NewBatchStats returns a BatchStats with initialized maps, ready to be
// accumulated into one task at a time via Add.
func NewBatchStats() BatchStats {
	return BatchStats{
		Status:    make(map[Status]int),
		Kinds:     make(map[Kind]int),
		IndexUIDs: make(map[string]int),
	}
}

// Add folds one task's status/kind/index into the running aggregate.
func (s *BatchStats) Add(t *Task) {
	s.TotalNbTasks++
	s.Status[t.Status]++
	s.Kinds[t.Kind]++
	if t.IndexUID != nil {
		s.IndexUIDs[*t.IndexUID]++
	}
}

// BatchProgress is an in-memory-only snapshot of a running batch's current
// step, exposed for observability but never persisted (spec.md §3).
type BatchProgress struct {
	Step      string `json:"step"`
	StepTotal uint32 `json:"stepTotal"`
	StepDone  uint32 `json:"stepDone"`
}

// Batch groups the tasks executed together inside one index write
// transaction (spec.md §3).
type Batch struct {
	UID        BatchID        `json:"uid"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
	Stats      BatchStats     `json:"stats"`
	StopReason string         `json:"stopReason"`
	Progress   *BatchProgress `json:"progress,omitempty"`
}

// Duration reports the batch's wall-clock run time, or nil while in flight.
func (b *Batch) Duration() *time.Duration {
	if b.FinishedAt == nil {
		return nil
	}
	d := b.FinishedAt.Sub(b.StartedAt)
	return &d
}

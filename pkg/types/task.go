// Package types defines the data model shared by every Stratum component:
// tasks, batches, their kinds, statuses, and the query parameters used to
// list them.
package types

import (
	"time"
)

// TaskID is the scheduler's monotonic, dense task identifier.
type TaskID = uint32

// BatchID is the scheduler's monotonic batch identifier.
type BatchID = uint32

// Status is the lifecycle state of a task. Transitions form the DAG
// enqueued -> processing -> {succeeded | failed | canceled}, plus the
// direct enqueued -> canceled edge for tasks canceled before they start.
type Status string

const (
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// IsTerminal reports whether the status can never transition again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// ResponseError is the `{message, code, type, link}` envelope attached to a
// failed task (spec.md §6, §7).
type ResponseError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
	Link    string `json:"link,omitempty"`
}

// Task is the atomic unit of work persisted by the task store.
type Task struct {
	UID        TaskID         `json:"uid"`
	BatchUID   *BatchID       `json:"batchUid,omitempty"`
	IndexUID   *string        `json:"indexUid,omitempty"`
	Status     Status         `json:"status"`
	Kind       Kind           `json:"type"`
	Content    Content        `json:"-"`
	Details    *Details       `json:"details,omitempty"`
	Error      *ResponseError `json:"error,omitempty"`
	CanceledBy *TaskID        `json:"canceledBy,omitempty"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
	StartedAt  *time.Time     `json:"startedAt,omitempty"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`

	// CustomMetadata and Network are opaque passthrough fields (spec.md §3).
	CustomMetadata *string `json:"customMetadata,omitempty"`
	Network        *string `json:"network,omitempty"`
}

// IndexUIDs returns every index name this task touches. Most kinds touch at
// most one; IndexSwap touches both names of every pair it swaps.
func (t *Task) IndexUIDs() []string {
	return t.Content.IndexUIDs()
}

// IsGlobal reports whether this task's kind batches alone, across the whole
// queue rather than against a single index (spec.md §4.4 rule 1).
func (k Kind) IsGlobal() bool {
	switch k {
	case KindIndexSwap, KindTaskCancellation, KindTaskDeletion,
		KindDumpCreation, KindSnapshotCreation, KindUpgradeDatabase:
		return true
	default:
		return false
	}
}

// Duration reports the wall-clock time the task spent between started_at
// and finished_at, or nil if either timestamp is missing.
func (t *Task) Duration() *time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return nil
	}
	d := t.FinishedAt.Sub(*t.StartedAt)
	return &d
}

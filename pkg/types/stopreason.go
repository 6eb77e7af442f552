package types

import "fmt"

// PrimaryKeyMismatchReason narrows why a StopReasonPrimaryKeyMismatch fired.
type PrimaryKeyMismatchReason string

const (
	ReasonTaskDiffersFromIndex PrimaryKeyMismatchReason = "task_primary_key_differ_from_index_primary_key"
	ReasonTaskDiffersFromBatch PrimaryKeyMismatchReason = "task_primary_key_differ_from_current_batch_primary_key"
	ReasonCannotGuess          PrimaryKeyMismatchReason = "cannot_interfere_with_primary_key_guessing"
)

// StopReasonKind tags why the autobatcher finalized a batch (spec.md §3,
// §4.4). It mirrors the handful of concrete situations the batching rules
// can produce; StopReason carries the extra fields a few of them need.
type StopReasonKind string

const (
	StopUnspecified                           StopReasonKind = "unspecified"
	StopTaskCannotBeBatched                   StopReasonKind = "taskCannotBeBatched"
	StopTaskKindCannotBeBatched               StopReasonKind = "taskKindCannotBeBatched"
	StopExhaustedEnqueuedTasks                StopReasonKind = "exhaustedEnqueuedTasks"
	StopExhaustedEnqueuedTasksForIndex        StopReasonKind = "exhaustedEnqueuedTasksForIndex"
	StopReachedTaskLimit                      StopReasonKind = "reachedTaskLimit"
	StopReachedSizeLimit                      StopReasonKind = "reachedSizeLimit"
	StopPrimaryKeyIndexMismatch               StopReasonKind = "primaryKeyIndexMismatch"
	StopIndexCreationMismatch                 StopReasonKind = "indexCreationMismatch"
	StopPrimaryKeyMismatch                    StopReasonKind = "primaryKeyMismatch"
	StopIndexDeletion                         StopReasonKind = "indexDeletion"
	StopDocumentOperationWithSettings         StopReasonKind = "documentOperationWithSettings"
	StopDocumentOperationWithDeletionByFilter StopReasonKind = "documentOperationWithDeletionByFilter"
	StopDeletionByFilterWithDocumentOperation StopReasonKind = "deletionByFilterWithDocumentOperation"
	StopSettingsWithDocumentOperation         StopReasonKind = "settingsWithDocumentOperation"
)

// StopReason explains why the autobatcher stopped accumulating a batch.
type StopReason struct {
	Kind Kind `json:"-"`

	kind   StopReasonKind
	taskID TaskID
	reason PrimaryKeyMismatchReason
}

// Unspecified is the default, zero-value stop reason.
func Unspecified() StopReason { return StopReason{kind: StopUnspecified} }

func simple(k StopReasonKind) StopReason { return StopReason{kind: k} }

func TaskCannotBeBatched() StopReason            { return simple(StopTaskCannotBeBatched) }
func TaskKindCannotBeBatched() StopReason        { return simple(StopTaskKindCannotBeBatched) }
func ExhaustedEnqueuedTasks() StopReason         { return simple(StopExhaustedEnqueuedTasks) }
func ExhaustedEnqueuedTasksForIndex() StopReason { return simple(StopExhaustedEnqueuedTasksForIndex) }
func ReachedTaskLimit() StopReason               { return simple(StopReachedTaskLimit) }
func ReachedSizeLimit() StopReason               { return simple(StopReachedSizeLimit) }
func PrimaryKeyIndexMismatch() StopReason        { return simple(StopPrimaryKeyIndexMismatch) }
func IndexCreationMismatch() StopReason          { return simple(StopIndexCreationMismatch) }
func IndexDeletionStop() StopReason              { return simple(StopIndexDeletion) }
func DocumentOperationWithSettings() StopReason  { return simple(StopDocumentOperationWithSettings) }
func DocumentOperationWithDeletionByFilter() StopReason {
	return simple(StopDocumentOperationWithDeletionByFilter)
}
func DeletionByFilterWithDocumentOperation() StopReason {
	return simple(StopDeletionByFilterWithDocumentOperation)
}
func SettingsWithDocumentOperation() StopReason { return simple(StopSettingsWithDocumentOperation) }

// PrimaryKeyMismatch carries the offending task id and the specific reason
// rule 3 (spec.md §4.4) fired.
func PrimaryKeyMismatch(taskID TaskID, reason PrimaryKeyMismatchReason) StopReason {
	return StopReason{kind: StopPrimaryKeyMismatch, taskID: taskID, reason: reason}
}

// Kind reports the stop reason's tag.
func (s StopReason) StopKind() StopReasonKind { return s.kind }

// String renders a human-readable stop reason, mirroring the original
// engine's Display impl for BatchStopReason.
func (s StopReason) String() string {
	switch s.kind {
	case StopUnspecified:
		return "unspecified"
	case StopTaskCannotBeBatched:
		return "task with id cannot be batched"
	case StopTaskKindCannotBeBatched:
		return "task kind cannot be batched"
	case StopExhaustedEnqueuedTasks:
		return "batch to be processed is the whole enqueued list"
	case StopExhaustedEnqueuedTasksForIndex:
		return "batch to be processed is the whole enqueued list for this index"
	case StopReachedTaskLimit:
		return "batch size limit reached"
	case StopReachedSizeLimit:
		return "batch payload size limit reached"
	case StopPrimaryKeyIndexMismatch:
		return "primary key differs from the index's primary key"
	case StopIndexCreationMismatch:
		return "task expects index to exist but it does not, or vice versa"
	case StopPrimaryKeyMismatch:
		return fmt.Sprintf("primary key mismatch on task %d: %s", s.taskID, s.reason)
	case StopIndexDeletion:
		return "batch contains an index deletion"
	case StopDocumentOperationWithSettings:
		return "cannot batch a document operation with a settings update"
	case StopDocumentOperationWithDeletionByFilter:
		return "cannot batch a document operation with a deletion by filter"
	case StopDeletionByFilterWithDocumentOperation:
		return "cannot batch a deletion by filter with a document operation"
	case StopSettingsWithDocumentOperation:
		return "cannot batch a settings update with a document operation"
	default:
		return string(s.kind)
	}
}

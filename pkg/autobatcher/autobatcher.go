// Package autobatcher implements the scheduler's batching policy as a
// pure decision function (spec.md §4.4): given the batch accumulated so
// far and the next enqueued task, it decides whether to Begin a new
// batch, Extend the current one, or Finalize it.
package autobatcher

import (
	"github.com/cuemby/stratum/pkg/types"
)

// Action is what the run loop should do with the task just offered to
// Decide.
type Action int

const (
	// Begin starts a new batch with this task as its sole member.
	Begin Action = iota
	// Extend adds this task to the batch in progress.
	Extend
	// Finalize closes the batch in progress without this task, which
	// should be offered again as the first task of the next batch.
	Finalize
	// RejectAndFinalize closes the batch in progress and also excludes
	// this task from ever joining a batch this tick (it is not
	// re-offered); the caller is responsible for failing it directly.
	RejectAndFinalize
)

// IndexState is what the autobatcher needs to know about the target
// index, supplied by the caller (normally via the index mapper) since
// the autobatcher itself holds no state about indexes.
type IndexState struct {
	Exists     bool
	PrimaryKey *string
}

// Limits bounds how large a single batch may grow (spec.md §4.4 rule 5).
type Limits struct {
	MaxTasks     int
	MaxSizeBytes int64
}

// Batch is the autobatcher's view of the batch being accumulated. Zero
// value is an empty batch, ready for the first Decide call.
type Batch struct {
	global              bool
	documentOps         bool
	deletionByFilter    bool
	settings            bool
	indexDeletion       bool
	indexUID            string
	primaryKey          *string
	allowsIndexCreation bool
	taskCount           int
	sizeBytes           int64
}

// Empty reports whether no task has joined the batch yet.
func (b *Batch) Empty() bool { return b.taskCount == 0 }

// TaskCount is the number of tasks accumulated so far.
func (b *Batch) TaskCount() int { return b.taskCount }

// Decide applies the batching rules to task, given its approximate
// payload size (bytes, 0 for kinds with no payload) and the current
// state of its target index (ignored for global kinds).
func Decide(b *Batch, task *types.Task, sizeBytes int64, idx IndexState, limits Limits) (Action, types.StopReason) {
	if b.Empty() {
		return Begin, types.Unspecified()
	}

	// Rule 1: per-index exclusivity. A non-global batch never mixes with
	// a global task and vice-versa.
	if task.Kind.IsGlobal() != b.global {
		return Finalize, types.TaskKindCannotBeBatched()
	}

	// Global kinds batch alone: once one is in, nothing else joins.
	if b.global {
		return Finalize, types.TaskKindCannotBeBatched()
	}

	// A batch only ever targets one index.
	if task.IndexUID == nil || *task.IndexUID != b.indexUID {
		return Finalize, types.ExhaustedEnqueuedTasksForIndex()
	}

	// Index deletion terminates and runs alone (rule 2).
	if b.indexDeletion {
		return Finalize, types.IndexDeletionStop()
	}
	if task.Kind == types.KindIndexDeletion {
		return Finalize, types.IndexDeletionStop()
	}

	// Rule 6: settings and document operations are mutually exclusive.
	if task.Kind == types.KindSettingsUpdate {
		if b.documentOps || b.deletionByFilter {
			return Finalize, types.DocumentOperationWithSettings()
		}
	} else if task.Kind.IsDocumentOp() {
		if b.settings {
			return Finalize, types.SettingsWithDocumentOperation()
		}
		// Rule 7: deletion-by-filter is exclusive of the other document
		// operations, symmetric to settings.
		if task.Kind == types.KindDocumentDeletionByFilter {
			if b.documentOps {
				return Finalize, types.DocumentOperationWithDeletionByFilter()
			}
		} else if b.deletionByFilter {
			return Finalize, types.DeletionByFilterWithDocumentOperation()
		}
	}

	// Rule 3: primary-key discipline, document additions only.
	if add, ok := task.Content.(*types.DocumentAdditionOrUpdate); ok {
		if add.PrimaryKey != nil {
			if b.primaryKey != nil && *b.primaryKey != *add.PrimaryKey {
				return Finalize, types.PrimaryKeyMismatch(task.UID, types.ReasonTaskDiffersFromBatch)
			}
			if idx.PrimaryKey != nil && *idx.PrimaryKey != *add.PrimaryKey {
				return Finalize, types.PrimaryKeyMismatch(task.UID, types.ReasonTaskDiffersFromIndex)
			}
		}

		// Rule 4: index-creation permission.
		if !add.AllowIndexCreation && !idx.Exists && !b.allowsIndexCreation {
			return RejectAndFinalize, types.IndexCreationMismatch()
		}
	}

	// Rule 5: size and count ceilings.
	if limits.MaxTasks > 0 && b.taskCount+1 > limits.MaxTasks {
		return Finalize, types.ReachedTaskLimit()
	}
	if limits.MaxSizeBytes > 0 && b.sizeBytes+sizeBytes > limits.MaxSizeBytes {
		return Finalize, types.ReachedSizeLimit()
	}

	return Extend, types.Unspecified()
}

// Apply folds task into b after a Begin or Extend decision. Callers must
// not call Apply after a Finalize/RejectAndFinalize decision for task.
func Apply(b *Batch, task *types.Task, sizeBytes int64) {
	if b.Empty() {
		b.global = task.Kind.IsGlobal()
		if !b.global && task.IndexUID != nil {
			b.indexUID = *task.IndexUID
		}
	}
	b.taskCount++
	b.sizeBytes += sizeBytes

	switch task.Kind {
	case types.KindSettingsUpdate:
		b.settings = true
	case types.KindIndexDeletion:
		b.indexDeletion = true
	case types.KindDocumentDeletionByFilter:
		b.deletionByFilter = true
	default:
		if task.Kind.IsDocumentOp() {
			b.documentOps = true
		}
	}

	if add, ok := task.Content.(*types.DocumentAdditionOrUpdate); ok {
		if add.AllowIndexCreation {
			b.allowsIndexCreation = true
		}
		if add.PrimaryKey != nil && b.primaryKey == nil {
			b.primaryKey = add.PrimaryKey
		}
	}
}

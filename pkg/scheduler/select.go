package scheduler

import (
	"os"

	"github.com/cuemby/stratum/pkg/autobatcher"
	"github.com/cuemby/stratum/pkg/types"
)

// selectPageSize bounds how many enqueued tasks are pulled from the store
// per page while accumulating a batch, independent of the batch's own
// task-count ceiling.
const selectPageSize = 256

// selectBatch walks enqueued tasks in uid order through the autobatcher
// until it finalizes, runs out of input, or rejects a task outright
// (spec.md §4.4, §4.6 step 1). The returned tasks are not yet mutated; the
// caller (tick) is responsible for moving them to processing.
func (s *Scheduler) selectBatch() ([]*types.Task, types.StopReason, error) {
	var batch autobatcher.Batch
	var selected []*types.Task
	stopReason := types.ExhaustedEnqueuedTasks()

	limits := autobatcher.Limits{
		MaxTasks:     s.opts.MaxNumberOfBatchedTasks,
		MaxSizeBytes: s.opts.BatchedTasksSizeLimit,
	}
	if !s.opts.AutobatchingEnabled {
		limits.MaxTasks = 1
	}

	// An enqueued UpgradeDatabase task runs alone, ahead of every other
	// enqueued task regardless of uid.
	upgrades, _, err := s.store.GetTasks(types.Query{
		Statuses: []types.Status{types.StatusEnqueued},
		Kinds:    []types.Kind{types.KindUpgradeDatabase},
		Limit:    1,
	})
	if err != nil {
		return nil, types.StopReason{}, err
	}
	if len(upgrades) > 0 {
		return upgrades, types.TaskKindCannotBeBatched(), nil
	}

	var cursor *types.TaskID
	for {
		page, _, err := s.store.GetTasks(types.Query{
			Statuses: []types.Status{types.StatusEnqueued},
			Limit:    selectPageSize,
			From:     cursor,
		})
		if err != nil {
			return nil, types.StopReason{}, err
		}
		if len(page) == 0 {
			break
		}

		done := false
		for _, task := range page {
			idxState := s.indexState(task)
			size := taskSizeBytes(task)

			action, reason := autobatcher.Decide(&batch, task, size, idxState, limits)
			switch action {
			case autobatcher.Begin, autobatcher.Extend:
				autobatcher.Apply(&batch, task, size)
				selected = append(selected, task)
			case autobatcher.Finalize, autobatcher.RejectAndFinalize:
				// Neither the finalizing task nor the rejected one joins
				// this batch; both remain enqueued and are reconsidered
				// from scratch next tick (a rejected document-addition
				// task will then Begin its own single-task batch and
				// fail with IndexNotFound inside the executor, per
				// spec.md §4.4 rule 4).
				stopReason = reason
				done = true
			}
			if done {
				break
			}
		}
		if done || len(page) < selectPageSize {
			break
		}
		next := page[len(page)-1].UID + 1
		cursor = &next
	}

	return selected, stopReason, nil
}

// indexState resolves the autobatcher's view of a task's target index. For
// global tasks (no index uid) the zero value is returned since Decide never
// consults it on the global branch.
func (s *Scheduler) indexState(task *types.Task) autobatcher.IndexState {
	if task.IndexUID == nil {
		return autobatcher.IndexState{}
	}
	name := *task.IndexUID
	if !s.mapper.Exists(name) {
		return autobatcher.IndexState{Exists: false}
	}
	idx, err := s.mapper.Index(name)
	if err != nil {
		return autobatcher.IndexState{Exists: true}
	}
	pk, ok := idx.PrimaryKey()
	if !ok {
		return autobatcher.IndexState{Exists: true}
	}
	return autobatcher.IndexState{Exists: true, PrimaryKey: &pk}
}

// taskSizeBytes approximates a task's payload size for the autobatcher's
// size ceiling (rule 5): the staged content file's size for document
// additions, zero for every other kind.
func taskSizeBytes(task *types.Task) int64 {
	add, ok := task.Content.(*types.DocumentAdditionOrUpdate)
	if !ok {
		return 0
	}
	info, err := os.Stat(add.ContentFile)
	if err != nil {
		return 0
	}
	return info.Size()
}

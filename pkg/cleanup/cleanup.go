// Package cleanup implements the scheduler's queue auto-cleanup (spec.md
// §4.7): after each batch, if the task store holds more rows than the
// configured ceiling, a task-deletion task targeting the oldest finished
// tasks is auto-registered. It then drains through the normal
// batching/execution path like any client-submitted task.
package cleanup

import (
	"github.com/cuemby/stratum/pkg/config"
	"github.com/cuemby/stratum/pkg/storage"
	"github.com/cuemby/stratum/pkg/types"
)

// MaybeRegister checks the task store against opts.MaxNumberOfTasks and, if
// exceeded and cleanup is enabled, registers a task-deletion task for the
// oldest finished tasks down to the limit. Returns the registered task, or
// nil if no cleanup was necessary.
func MaybeRegister(store storage.Store, opts config.Options) (*types.Task, error) {
	if !opts.CleanupEnabled {
		return nil, nil
	}

	counts, err := store.CountByStatus()
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total <= opts.MaxNumberOfTasks {
		return nil, nil
	}
	excess := total - opts.MaxNumberOfTasks

	targets, err := oldestFinished(store, excess)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	task := &types.Task{
		Kind:    types.KindTaskDeletion,
		Content: &types.TaskDeletion{Tasks: targets},
	}
	return store.Register(task, nil, false)
}

// oldestFinished returns up to limit uids of tasks already in a terminal
// status, oldest (lowest uid) first.
func oldestFinished(store storage.Store, limit int) ([]types.TaskID, error) {
	q := types.Query{
		Statuses: []types.Status{types.StatusSucceeded, types.StatusFailed, types.StatusCanceled},
		Limit:    uint32(limit),
	}
	tasks, _, err := store.GetTasks(q)
	if err != nil {
		return nil, err
	}
	uids := make([]types.TaskID, 0, len(tasks))
	for _, t := range tasks {
		uids = append(uids, t.UID)
	}
	return uids, nil
}

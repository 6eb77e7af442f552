package executor

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/stratum/pkg/dump"
	stratumerrors "github.com/cuemby/stratum/pkg/errors"
	"github.com/cuemby/stratum/pkg/types"
	"github.com/cuemby/stratum/pkg/versioning"
)

// handleTaskCancellation marks every matching enqueued-or-processing task
// as canceled, setting canceled_by, and raises must_stop for any that were
// processing (spec.md §4.6 "Task cancellation").
func (e *Executor) handleTaskCancellation(tasks []*types.Task) error {
	for _, task := range tasks {
		cancel, ok := task.Content.(*types.TaskCancellation)
		if !ok {
			continue
		}
		matched, canceled := e.cancelTargets(task.UID, cancel.Tasks)
		e.processing.RaiseStopIfProcessing(cancel.Tasks)
		e.succeedTask(task, &types.Details{
			MatchedTasks:  int64p(int64(matched)),
			CanceledTasks: int64p(int64(canceled)),
		})
	}
	return nil
}

func (e *Executor) cancelTargets(cancellationUID types.TaskID, targets []types.TaskID) (matched, canceled int) {
	now := time.Now()
	for _, uid := range targets {
		t, err := e.store.GetTask(uid)
		if err != nil || t == nil {
			continue
		}
		matched++
		if t.Status.IsTerminal() {
			continue
		}
		t.Status = types.StatusCanceled
		t.CanceledBy = &cancellationUID
		t.FinishedAt = &now
		if err := e.store.Update(t); err != nil {
			e.logger.Error().Err(err).Uint32("task", t.UID).Msg("failed to persist canceled task")
			continue
		}
		canceled++
	}
	return matched, canceled
}

// handleTaskDeletion removes every matching task that is already in a
// terminal status, along with its secondary-index entries and any staged
// content file. Enqueued or processing tasks are left untouched (spec.md
// §4.6 "Task deletion").
func (e *Executor) handleTaskDeletion(tasks []*types.Task) error {
	for _, task := range tasks {
		del, ok := task.Content.(*types.TaskDeletion)
		if !ok {
			continue
		}
		matched, deleted := e.deleteTargets(del.Tasks)
		e.succeedTask(task, &types.Details{
			MatchedTasks: int64p(int64(matched)),
			DeletedTasks: int64p(int64(deleted)),
		})
	}
	return nil
}

func (e *Executor) deleteTargets(targets []types.TaskID) (matched, deleted int) {
	for _, uid := range targets {
		t, err := e.store.GetTask(uid)
		if err != nil || t == nil {
			continue
		}
		matched++
		if !t.Status.IsTerminal() {
			continue
		}
		if err := e.store.DeletePersistedTaskData(t); err != nil {
			e.logger.Warn().Err(err).Uint32("task", uid).Msg("failed to delete persisted task data")
		}
		if err := e.store.DeleteTask(uid); err != nil {
			e.logger.Error().Err(err).Uint32("task", uid).Msg("failed to delete task")
			continue
		}
		deleted++
	}
	return matched, deleted
}

// handleDumpCreation streams the whole queue and every index into a
// versioned archive (spec.md §4.6 "Dump creation").
func (e *Executor) handleDumpCreation(tasks []*types.Task) error {
	dumpsDir := filepath.Join(e.opts.DataDir, e.opts.DumpsPath)
	for _, task := range tasks {
		create, ok := task.Content.(*types.DumpCreation)
		if !ok {
			continue
		}
		uid, err := dump.Create(dumpsDir, e.store, e.mapper, e.engine, create.Keys, create.InstanceUID)
		if err != nil {
			e.failTask(task, stratumerrors.Internal("dump creation failed", err))
			continue
		}
		e.succeedTask(task, &types.Details{DumpUID: &uid})
	}
	return nil
}

// handleSnapshotCreation copies the whole data directory to a timestamped
// path under the snapshots directory (spec.md §4.6 "Snapshot creation").
func (e *Executor) handleSnapshotCreation(tasks []*types.Task) error {
	snapshotsDir := filepath.Join(e.opts.DataDir, e.opts.SnapshotsPath)
	for _, task := range tasks {
		if _, ok := task.Content.(*types.SnapshotCreation); !ok {
			continue
		}
		dest := filepath.Join(snapshotsDir, time.Now().UTC().Format("20060102T150405Z"))
		if err := copyDir(e.opts.DataDir, dest, snapshotsDir, e.opts.DumpsPath); err != nil {
			e.failTask(task, stratumerrors.Internal("snapshot creation failed", err))
			continue
		}
		e.succeedTask(task, &types.Details{})
	}
	return nil
}

// copyDir recursively copies src into dst, skipping the snapshots and dumps
// directories themselves so a snapshot never nests inside its own tree.
func copyDir(src, dst, snapshotsDir, dumpsRel string) error {
	excluded := map[string]bool{
		filepath.Clean(snapshotsDir):                 true,
		filepath.Join(src, filepath.Clean(dumpsRel)): true,
	}
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if excluded[filepath.Clean(path)] {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// handleUpgradeDatabase runs schema migration and bumps the on-disk version
// file. Migration steps themselves are out of scope (spec.md §1 excludes
// the index-side data format); this records the version transition. The
// scheduler's selectBatch runs an enqueued upgrade task alone, ahead of
// every other enqueued task (spec.md §4.6 "Upgrade database").
func (e *Executor) handleUpgradeDatabase(tasks []*types.Task) error {
	for _, task := range tasks {
		upgrade, ok := task.Content.(*types.UpgradeDatabase)
		if !ok {
			continue
		}
		if e.versionStore == nil {
			e.failTask(task, stratumerrors.Internal("no version store configured", nil))
			continue
		}
		if err := e.versionStore.Bump(); err != nil {
			e.failTask(task, stratumerrors.Internal("failed to bump schema version", err))
			continue
		}
		from := upgrade.From
		to := versioning.Version
		e.succeedTask(task, &types.Details{
			UpgradeFrom: &from,
			UpgradeTo:   &to,
		})
	}
	return nil
}

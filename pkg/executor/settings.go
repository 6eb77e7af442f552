package executor

import (
	"github.com/cuemby/stratum/pkg/engine"
	stratumerrors "github.com/cuemby/stratum/pkg/errors"
	"github.com/cuemby/stratum/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// handleSettingsUpdate merges every settings patch in the batch into one
// engine-level update, applied in task order so later tasks win on
// conflicting keys (spec.md §4.6 "Settings update").
func (e *Executor) handleSettingsUpdate(indexName string, tasks []*types.Task) error {
	if !e.mapper.Exists(indexName) {
		allowsCreation := false
		for _, t := range tasks {
			if s, ok := t.Content.(*types.SettingsUpdate); ok && s.AllowIndexCreation {
				allowsCreation = true
			}
		}
		if !allowsCreation {
			err := stratumerrors.IndexNotFound(indexName)
			for _, t := range tasks {
				e.failTask(t, err)
			}
			return nil
		}
		if _, err := e.mapper.Register(indexName, newIndexUID()); err != nil {
			for _, t := range tasks {
				e.failTask(t, err)
			}
			return nil
		}
	}

	idx, err := e.mapper.Index(indexName)
	if err != nil {
		for _, t := range tasks {
			e.failTask(t, err)
		}
		return nil
	}

	return idx.Update(func(tx *bolt.Tx) error {
		merged, err := engine.SettingsTx(tx)
		if err != nil {
			return err
		}

		for _, task := range tasks {
			if e.processing.MustStop() {
				e.cancelRemaining(tasks, task)
				return ErrAborted
			}
			s, ok := task.Content.(*types.SettingsUpdate)
			if !ok {
				continue
			}
			if s.IsDeletion {
				if len(s.NewSettings) == 0 {
					for k := range merged {
						delete(merged, k)
					}
				}
				for k := range s.NewSettings {
					delete(merged, k)
				}
			} else {
				for k, v := range s.NewSettings {
					merged[k] = v
				}
			}
			e.succeedTask(task, &types.Details{Settings: s.NewSettings})
		}

		return engine.ApplySettingsTx(tx, merged)
	})
}

package executor

import (
	stratumerrors "github.com/cuemby/stratum/pkg/errors"
	"github.com/cuemby/stratum/pkg/types"
)

// handleIndexCreation registers a new, empty index. Task registration does
// not check whether the index exists, and the autobatcher can put several
// creation tasks for the same name in one batch; only the first can
// succeed, and every later one fails with IndexAlreadyExists.
func (e *Executor) handleIndexCreation(indexName string, tasks []*types.Task) error {
	for _, task := range tasks {
		create, ok := task.Content.(*types.IndexCreation)
		if !ok {
			continue
		}
		if e.mapper.Exists(indexName) {
			e.failTask(task, stratumerrors.IndexAlreadyExists(indexName))
			continue
		}
		if _, err := e.mapper.Register(indexName, newIndexUID()); err != nil {
			e.failTask(task, err)
			continue
		}
		idx, err := e.mapper.Index(indexName)
		if err != nil {
			e.failTask(task, err)
			continue
		}
		var pk string
		if create.PrimaryKey != nil {
			pk = *create.PrimaryKey
			if err := idx.SetPrimaryKey(pk); err != nil {
				e.failTask(task, err)
				continue
			}
		}
		e.succeedTask(task, &types.Details{PrimaryKey: create.PrimaryKey})
	}
	return nil
}

// handleIndexUpdate changes an index's primary key. Renaming an index is
// modeled through IndexSwap's rename variant, not IndexUpdate.
func (e *Executor) handleIndexUpdate(indexName string, tasks []*types.Task) error {
	idx, err := e.mapper.Index(indexName)
	if err != nil {
		for _, t := range tasks {
			e.failTask(t, err)
		}
		return nil
	}
	for _, task := range tasks {
		update, ok := task.Content.(*types.IndexUpdate)
		if !ok {
			continue
		}
		if update.PrimaryKey == nil {
			e.succeedTask(task, &types.Details{})
			continue
		}
		if err := idx.SetPrimaryKey(*update.PrimaryKey); err != nil {
			e.failTask(task, err)
			continue
		}
		e.succeedTask(task, &types.Details{PrimaryKey: update.PrimaryKey})
	}
	return nil
}

// handleIndexDeletion removes an index and schedules its on-disk files for
// removal once the mapping is gone. Per the autobatcher's rule 2, this
// batch always holds exactly this one task: nothing else can share a batch
// with an index deletion.
func (e *Executor) handleIndexDeletion(indexName string, tasks []*types.Task) error {
	for _, task := range tasks {
		del, ok := task.Content.(*types.IndexDeletion)
		if !ok {
			continue
		}
		uid, err := e.mapper.Delete(del.IndexUID)
		if err != nil {
			e.failTask(task, err)
			continue
		}
		if err := e.engine.Delete(uid); err != nil {
			e.failTask(task, err)
			continue
		}
		e.succeedTask(task, &types.Details{})
	}
	return nil
}

// handleIndexCompaction calls Compact on a single index; with the bbolt
// engine that only syncs the file and reclaims no space. The pre- and
// post-compaction sizes it records are document counts.
func (e *Executor) handleIndexCompaction(indexName string, tasks []*types.Task) error {
	idx, err := e.mapper.Index(indexName)
	if err != nil {
		for _, t := range tasks {
			e.failTask(t, err)
		}
		return nil
	}
	stats, _ := idx.Stats()
	preSize := int64(stats.NumberOfDocuments)
	if err := idx.Compact(); err != nil {
		for _, t := range tasks {
			e.failTask(t, err)
		}
		return nil
	}
	postStats, _ := idx.Stats()
	postSize := int64(postStats.NumberOfDocuments)
	for _, task := range tasks {
		e.succeedTask(task, &types.Details{
			PreCompactionSize:  int64p(preSize),
			PostCompactionSize: int64p(postSize),
		})
	}
	return nil
}

// handleIndexSwap exchanges one or more pairs of indexes by renaming their
// mapper entries. A swap with Rename=false requires both sides to already
// exist; Rename=true requires the second side to exist and the first side
// to be absent, and renames the second side to the first name (spec.md
// §4.6 "Index swap").
func (e *Executor) handleIndexSwap(tasks []*types.Task) error {
	for _, task := range tasks {
		swap, ok := task.Content.(*types.IndexSwap)
		if !ok {
			continue
		}
		if err := e.applySwap(swap); err != nil {
			e.failTask(task, err)
			continue
		}
		e.succeedTask(task, &types.Details{Swaps: swap.Swaps})
	}
	return nil
}

func (e *Executor) applySwap(swap *types.IndexSwap) error {
	for _, pair := range swap.Swaps {
		left, right := pair.Indexes[0], pair.Indexes[1]
		if !e.mapper.Exists(right) {
			return stratumerrors.IndexNotFound(right)
		}
		if pair.Rename {
			if e.mapper.Exists(left) {
				return stratumerrors.IndexAlreadyExists(left)
			}
			if err := e.mapper.Rename(right, left); err != nil {
				return err
			}
			continue
		}
		if !e.mapper.Exists(left) {
			return stratumerrors.IndexNotFound(left)
		}
		const tmp = "__stratum_swap_tmp__"
		if err := e.mapper.Rename(left, tmp); err != nil {
			return err
		}
		if err := e.mapper.Rename(right, left); err != nil {
			return err
		}
		if err := e.mapper.Rename(tmp, right); err != nil {
			return err
		}
	}
	return nil
}

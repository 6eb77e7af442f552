package executor

import (
	"time"

	"github.com/cuemby/stratum/pkg/engine"
	stratumerrors "github.com/cuemby/stratum/pkg/errors"
	"github.com/cuemby/stratum/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// handleDocumentOps coalesces add/update/delete/clear/delete-by-filter
// tasks targeting the same index into one index-engine write transaction
// (spec.md §4.6 "Document add/update/replace/delete/clear/delete-by-filter").
func (e *Executor) handleDocumentOps(indexName string, tasks []*types.Task) error {
	idx, err := e.resolveIndexForDocumentOps(indexName, tasks)
	if err != nil {
		for _, t := range tasks {
			e.failTask(t, err)
		}
		return nil
	}

	return idx.Update(func(tx *bolt.Tx) error {
		for _, task := range tasks {
			if e.processing.MustStop() {
				e.cancelRemaining(tasks, task)
				return ErrAborted
			}
			e.applyDocumentTask(tx, task)
		}
		return nil
	})
}

// resolveIndexForDocumentOps opens (creating if permitted) the target
// index. A document-addition task with allow_index_creation=false and no
// existing index fails every task in the batch with IndexNotFound (rule 4
// is normally enforced earlier by the autobatcher; this is the fallback
// when such a task had to run alone).
func (e *Executor) resolveIndexForDocumentOps(indexName string, tasks []*types.Task) (engine.Index, error) {
	if e.mapper.Exists(indexName) {
		return e.mapper.Index(indexName)
	}

	allowsCreation := false
	var primaryKey *string
	for _, t := range tasks {
		if add, ok := t.Content.(*types.DocumentAdditionOrUpdate); ok {
			if add.AllowIndexCreation {
				allowsCreation = true
			}
			if add.PrimaryKey != nil && primaryKey == nil {
				primaryKey = add.PrimaryKey
			}
		}
	}
	if !allowsCreation {
		return nil, stratumerrors.IndexNotFound(indexName)
	}

	uid := newIndexUID()
	if _, err := e.mapper.Register(indexName, uid); err != nil {
		return nil, err
	}
	idx, err := e.mapper.Index(indexName)
	if err != nil {
		return nil, err
	}
	if primaryKey != nil {
		if err := idx.SetPrimaryKey(*primaryKey); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// applyDocumentTask applies one task's document mutation, preserving
// per-task success/failure: a primary-key mismatch mid-batch fails only
// the offending task (spec.md §4.6).
func (e *Executor) applyDocumentTask(tx *bolt.Tx, task *types.Task) {
	switch content := task.Content.(type) {
	case *types.DocumentAdditionOrUpdate:
		e.applyAddOrUpdate(tx, task, content)
	case *types.DocumentDeletion:
		n, err := engine.ApplyDeleteTx(tx, content.DocumentIDs)
		if err != nil {
			e.failTask(task, err)
			return
		}
		e.succeedTask(task, &types.Details{DeletedDocuments: int64p(int64(n))})
	case *types.DocumentClear:
		n, err := engine.ApplyClearTx(tx)
		if err != nil {
			e.failTask(task, err)
			return
		}
		e.succeedTask(task, &types.Details{DeletedDocuments: int64p(int64(n))})
	case *types.DocumentDeletionByFilter:
		n, err := engine.ApplyDeleteByFilterTx(tx, content.Filter)
		if err != nil {
			e.failTask(task, err)
			return
		}
		filter := content.Filter
		e.succeedTask(task, &types.Details{DeletedDocuments: int64p(int64(n)), OriginalFilter: &filter})
	}
}

func (e *Executor) applyAddOrUpdate(tx *bolt.Tx, task *types.Task, content *types.DocumentAdditionOrUpdate) {
	docs, err := readContentFile(content.ContentFile)
	if err != nil {
		e.failTask(task, err)
		return
	}

	if content.PrimaryKey != nil {
		if existing, ok := engine.PrimaryKeyTx(tx); ok && existing != *content.PrimaryKey {
			e.failTask(task, stratumerrors.PrimaryKeyMismatch("primary key mismatch: index "+task.IndexUIDs()[0]+" uses "+existing+", task specifies "+*content.PrimaryKey))
			return
		}
	}

	pk := ""
	if content.PrimaryKey != nil {
		pk = *content.PrimaryKey
	} else if existing, ok := engine.PrimaryKeyTx(tx); ok {
		pk = existing
	} else if len(docs) > 0 {
		inferred, ok := engine.InferPrimaryKey(docs[0])
		if !ok {
			// Primary-key derivation failed for this task only; the rest
			// of the batch still succeeds (spec.md §4.6 handler specifics).
			e.failTask(task, stratumerrors.PrimaryKeyMismatch("could not infer a primary key for index "+task.IndexUIDs()[0]))
			return
		}
		pk = inferred
	}

	n, err := engine.ApplyAddOrUpdateTx(tx, docs, pk)
	if err != nil {
		e.failTask(task, err)
		return
	}
	if _, ok := engine.PrimaryKeyTx(tx); !ok {
		if err := engine.SetPrimaryKeyTx(tx, pk); err != nil {
			e.failTask(task, err)
			return
		}
	}

	e.succeedTask(task, &types.Details{
		ReceivedDocuments: int64p(content.DocumentsCount),
		IndexedDocuments:  int64p(int64(n)),
		PrimaryKey:        &pk,
	})
}

// cancelRemaining marks from (inclusive) through the end of tasks as
// canceled after must_stop aborts a batch mid-flight.
func (e *Executor) cancelRemaining(tasks []*types.Task, from *types.Task) {
	started := false
	now := time.Now()
	for _, t := range tasks {
		if t == from {
			started = true
		}
		if !started {
			continue
		}
		t.Status = types.StatusCanceled
		t.FinishedAt = &now
		if err := e.store.Update(t); err != nil {
			e.logger.Error().Err(err).Uint32("task", t.UID).Msg("failed to persist canceled task")
		}
	}
}

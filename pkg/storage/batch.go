package storage

import (
	"encoding/json"
	"sort"

	"github.com/RoaringBitmap/roaring"
	stratumerrors "github.com/cuemby/stratum/pkg/errors"
	"github.com/cuemby/stratum/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// RegisterBatch persists a new batch row, assigning the next monotonic
// batch uid and indexing it by kind, index, and start/finish time (spec.md
// §3 "Batch", symmetric to the task secondary indexes).
func (s *BoltStore) RegisterBatch(batch *types.Batch) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		next, err := nextUID(meta, metaKeyNextBatchUID)
		if err != nil {
			return err
		}
		batch.UID = next
		return s.putBatch(tx, batch, true)
	})
}

// UpdateBatch rewrites a batch row, re-deriving its secondary indexes from
// the before/after state, mirroring Update for tasks.
func (s *BoltStore) UpdateBatch(batch *types.Batch) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		old, err := s.getBatchTx(tx, batch.UID)
		if err != nil {
			return err
		}
		if old != nil {
			if err := s.deindexBatch(tx, old); err != nil {
				return err
			}
		}
		if err := s.putBatch(tx, batch, false); err != nil {
			return err
		}
		return s.indexBatch(tx, batch)
	})
}

func (s *BoltStore) putBatch(tx *bolt.Tx, batch *types.Batch, indexNew bool) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	if err := tx.Bucket(bucketBatches).Put(uidKey(batch.UID), data); err != nil {
		return err
	}
	if !indexNew {
		return nil
	}
	return s.indexBatch(tx, batch)
}

func (s *BoltStore) indexBatch(tx *bolt.Tx, batch *types.Batch) error {
	for kind, n := range batch.Stats.Kinds {
		if n == 0 {
			continue
		}
		if err := addToBitmap(tx.Bucket(bucketBatchesByKind), []byte(kind), batch.UID); err != nil {
			return err
		}
	}
	for idx, n := range batch.Stats.IndexUIDs {
		if n == 0 {
			continue
		}
		if err := addToBitmap(tx.Bucket(bucketBatchesByIdx), []byte(idx), batch.UID); err != nil {
			return err
		}
	}
	if err := tx.Bucket(bucketBatchStarted).Put(timeUIDKey(batch.StartedAt, batch.UID), uidKey(batch.UID)); err != nil {
		return err
	}
	if batch.FinishedAt != nil {
		if err := tx.Bucket(bucketBatchFinished).Put(timeUIDKey(*batch.FinishedAt, batch.UID), uidKey(batch.UID)); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltStore) deindexBatch(tx *bolt.Tx, batch *types.Batch) error {
	for kind, n := range batch.Stats.Kinds {
		if n == 0 {
			continue
		}
		if err := removeFromBitmap(tx.Bucket(bucketBatchesByKind), []byte(kind), batch.UID); err != nil {
			return err
		}
	}
	for idx, n := range batch.Stats.IndexUIDs {
		if n == 0 {
			continue
		}
		if err := removeFromBitmap(tx.Bucket(bucketBatchesByIdx), []byte(idx), batch.UID); err != nil {
			return err
		}
	}
	if err := tx.Bucket(bucketBatchStarted).Delete(timeUIDKey(batch.StartedAt, batch.UID)); err != nil {
		return err
	}
	if batch.FinishedAt != nil {
		if err := tx.Bucket(bucketBatchFinished).Delete(timeUIDKey(*batch.FinishedAt, batch.UID)); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltStore) getBatchTx(tx *bolt.Tx, uid types.BatchID) (*types.Batch, error) {
	data := tx.Bucket(bucketBatches).Get(uidKey(uid))
	if data == nil {
		return nil, nil
	}
	var batch types.Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, stratumerrors.CorruptedTaskQueue(err)
	}
	return &batch, nil
}

// GetBatch returns a single batch by uid.
func (s *BoltStore) GetBatch(uid types.BatchID) (*types.Batch, error) {
	var batch *types.Batch
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.getBatchTx(tx, uid)
		if err != nil {
			return err
		}
		batch = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, stratumerrors.BatchNotFound(uid)
	}
	return batch, nil
}

// GetBatches implements the same filter/paginate/total semantics as
// GetTasks, narrowed to the dimensions that apply to batches.
func (s *BoltStore) GetBatches(q types.Query) ([]*types.Batch, int, error) {
	var results []*types.Batch
	var total int

	err := s.db.View(func(tx *bolt.Tx) error {
		candidates, err := s.candidateBatchUIDs(tx, q)
		if err != nil {
			return err
		}
		uids := candidates.ToArray()
		sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
		total = len(uids)

		if q.Reverse {
			for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
				uids[i], uids[j] = uids[j], uids[i]
			}
		}

		if q.From != nil {
			uids = cropFrom(uids, *q.From, q.Reverse)
		}

		limit := q.Limit
		if limit == 0 {
			limit = types.DefaultLimit
		}
		if uint32(len(uids)) > limit {
			uids = uids[:limit]
		}

		for _, uid := range uids {
			b, err := s.getBatchTx(tx, uid)
			if err != nil {
				return err
			}
			if b != nil {
				results = append(results, b)
			}
		}
		return nil
	})
	return results, total, err
}

func (s *BoltStore) candidateBatchUIDs(tx *bolt.Tx, q types.Query) (*roaring.Bitmap, error) {
	var filters []*roaring.Bitmap

	if len(q.UIDs) > 0 {
		bm := roaring.New()
		bm.AddMany(q.UIDs)
		filters = append(filters, bm)
	}
	if len(q.Kinds) > 0 {
		keys := make([][]byte, len(q.Kinds))
		for i, k := range q.Kinds {
			keys[i] = []byte(k)
		}
		bm, err := unionKeys(tx.Bucket(bucketBatchesByKind), keys)
		if err != nil {
			return nil, err
		}
		filters = append(filters, bm)
	}
	if len(q.IndexUIDs) > 0 {
		keys := make([][]byte, len(q.IndexUIDs))
		for i, idx := range q.IndexUIDs {
			keys[i] = []byte(idx)
		}
		bm, err := unionKeys(tx.Bucket(bucketBatchesByIdx), keys)
		if err != nil {
			return nil, err
		}
		filters = append(filters, bm)
	}
	if bm := scanTimeRange(tx.Bucket(bucketBatchStarted), q.AfterStartedAt, q.BeforeStartedAt); bm != nil {
		filters = append(filters, bm)
	}
	if bm := scanTimeRange(tx.Bucket(bucketBatchFinished), q.AfterFinishedAt, q.BeforeFinishedAt); bm != nil {
		filters = append(filters, bm)
	}

	if len(filters) == 0 {
		return allBatchUIDs(tx)
	}
	return intersectAll(filters...), nil
}

func allBatchUIDs(tx *bolt.Tx) (*roaring.Bitmap, error) {
	bm := roaring.New()
	c := tx.Bucket(bucketBatches).Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		bm.Add(parseUID(k))
	}
	return bm, nil
}

// TasksInBatch returns every task uid tied to batchUID via the
// batch_to_tasks secondary index.
func (s *BoltStore) TasksInBatch(batchUID types.BatchID) ([]types.TaskID, error) {
	var uids []types.TaskID
	err := s.db.View(func(tx *bolt.Tx) error {
		bm, err := loadBitmap(tx.Bucket(bucketBatchToTasks), uidKey(batchUID))
		if err != nil {
			return err
		}
		uids = bm.ToArray()
		return nil
	})
	return uids, err
}

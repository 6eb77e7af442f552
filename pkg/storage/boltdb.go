package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/RoaringBitmap/roaring"
	stratumerrors "github.com/cuemby/stratum/pkg/errors"
	"github.com/cuemby/stratum/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// usedFractionThreshold is the fraction of the configured task-db size
// beyond which register refuses non-space-freeing tasks (spec.md §5).
const usedFractionThreshold = 0.40

var (
	bucketTasks           = []byte("tasks")
	bucketMeta            = []byte("meta")
	bucketContentFiles    = []byte("content_files")
	bucketTasksByStatus   = []byte("tasks_by_status")
	bucketTasksByKind     = []byte("tasks_by_kind")
	bucketTasksByIndex    = []byte("tasks_by_index")
	bucketTasksByCanceler = []byte("tasks_by_canceled_by")
	bucketTasksEnqueued   = []byte("tasks_enqueued_at")
	bucketTasksStarted    = []byte("tasks_started_at")
	bucketTasksFinished   = []byte("tasks_finished_at")
	bucketTasksByBatch    = []byte("tasks_by_batch")

	bucketBatches       = []byte("batches")
	bucketBatchesByKind = []byte("batches_by_kind")
	bucketBatchesByIdx  = []byte("batches_by_index")
	bucketBatchStarted  = []byte("batches_started_at")
	bucketBatchFinished = []byte("batches_finished_at")
	bucketBatchToTasks  = []byte("batch_to_tasks")
	bucketTaskToBatch   = []byte("task_to_batch")

	metaKeyNextTaskUID  = []byte("next_task_uid")
	metaKeyNextBatchUID = []byte("next_batch_uid")
)

// BoltStore implements Store on top of a single bbolt database, following
// the teacher's pattern of one *bolt.DB per store with bucket-per-index.
type BoltStore struct {
	db      *bolt.DB
	path    string
	maxSize int64
}

// NewBoltStore opens (creating if absent) the tasks.db file under dataDir
// and creates every bucket used by the task/batch secondary indexes.
func NewBoltStore(dataDir string, maxSize int64) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, stratumerrors.Wrap(err, "creating task store directory")
	}
	dbPath := filepath.Join(dataDir, "tasks.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, stratumerrors.Wrap(err, "opening task store")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketTasks, bucketMeta, bucketContentFiles,
			bucketTasksByStatus, bucketTasksByKind, bucketTasksByIndex,
			bucketTasksByCanceler, bucketTasksEnqueued, bucketTasksStarted,
			bucketTasksFinished, bucketTasksByBatch,
			bucketBatches, bucketBatchesByKind, bucketBatchesByIdx,
			bucketBatchStarted, bucketBatchFinished, bucketBatchToTasks, bucketTaskToBatch,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("creating bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, path: dbPath, maxSize: maxSize}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func nextUID(b *bolt.Bucket, key []byte) (uint32, error) {
	data := b.Get(key)
	var next uint64
	if data != nil {
		next = binary.BigEndian.Uint64(data) + 1
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, next)
	if err := b.Put(key, out); err != nil {
		return 0, err
	}
	return uint32(next), nil
}

func peekNextUID(b *bolt.Bucket, key []byte) uint32 {
	data := b.Get(key)
	if data == nil {
		return 0
	}
	return uint32(binary.BigEndian.Uint64(data)) + 1
}

// Register implements Store.Register (spec.md §4.1).
func (s *BoltStore) Register(task *types.Task, uid *types.TaskID, dryRun bool) (*types.Task, error) {
	isSpaceFreeing := task.Kind == types.KindTaskDeletion || task.Kind == types.KindTaskCancellation

	if !isSpaceFreeing {
		fraction, err := s.UsedFraction()
		if err != nil {
			return nil, err
		}
		if fraction > usedFractionThreshold {
			return nil, stratumerrors.NoSpaceLeftInTaskQueue()
		}
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)

		var assigned uint32
		if uid != nil {
			existing := peekNextUID(meta, metaKeyNextTaskUID)
			if *uid < existing {
				return fmt.Errorf("explicit uid %d is not strictly greater than existing uids", *uid)
			}
			assigned = *uid
			out := make([]byte, 8)
			binary.BigEndian.PutUint64(out, uint64(assigned))
			if err := meta.Put(metaKeyNextTaskUID, out); err != nil {
				return err
			}
		} else {
			next, err := nextUID(meta, metaKeyNextTaskUID)
			if err != nil {
				return err
			}
			assigned = next
		}
		task.UID = assigned

		if dryRun {
			return nil
		}
		return s.putTask(tx, task, true)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// putTask writes the task row and, when indexNew is true, adds it to every
// secondary index. indexNew is false when the caller (Update) manages
// indexing explicitly around the old/new row diff.
func (s *BoltStore) putTask(tx *bolt.Tx, task *types.Task, indexNew bool) error {
	tasks := tx.Bucket(bucketTasks)
	data, err := task.MarshalJSON()
	if err != nil {
		return err
	}
	if err := tasks.Put(uidKey(task.UID), data); err != nil {
		return err
	}
	if !indexNew {
		return nil
	}
	return s.indexTask(tx, task)
}

func (s *BoltStore) indexTask(tx *bolt.Tx, task *types.Task) error {
	if err := addToBitmap(tx.Bucket(bucketTasksByStatus), []byte(task.Status), task.UID); err != nil {
		return err
	}
	if err := addToBitmap(tx.Bucket(bucketTasksByKind), []byte(task.Kind), task.UID); err != nil {
		return err
	}
	if task.IndexUID != nil {
		if err := addToBitmap(tx.Bucket(bucketTasksByIndex), []byte(*task.IndexUID), task.UID); err != nil {
			return err
		}
	}
	if task.CanceledBy != nil {
		if err := addToBitmap(tx.Bucket(bucketTasksByCanceler), uidKey(*task.CanceledBy), task.UID); err != nil {
			return err
		}
	}
	if err := tx.Bucket(bucketTasksEnqueued).Put(timeUIDKey(task.EnqueuedAt, task.UID), uidKey(task.UID)); err != nil {
		return err
	}
	if task.StartedAt != nil {
		if err := tx.Bucket(bucketTasksStarted).Put(timeUIDKey(*task.StartedAt, task.UID), uidKey(task.UID)); err != nil {
			return err
		}
	}
	if task.FinishedAt != nil {
		if err := tx.Bucket(bucketTasksFinished).Put(timeUIDKey(*task.FinishedAt, task.UID), uidKey(task.UID)); err != nil {
			return err
		}
	}
	if task.BatchUID != nil {
		if err := addToBitmap(tx.Bucket(bucketTasksByBatch), uidKey(*task.BatchUID), task.UID); err != nil {
			return err
		}
		if err := tx.Bucket(bucketTaskToBatch).Put(uidKey(task.UID), uidKey(*task.BatchUID)); err != nil {
			return err
		}
		if err := addToBitmap(tx.Bucket(bucketBatchToTasks), uidKey(*task.BatchUID), task.UID); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltStore) deindexTask(tx *bolt.Tx, task *types.Task) error {
	if err := removeFromBitmap(tx.Bucket(bucketTasksByStatus), []byte(task.Status), task.UID); err != nil {
		return err
	}
	if err := removeFromBitmap(tx.Bucket(bucketTasksByKind), []byte(task.Kind), task.UID); err != nil {
		return err
	}
	if task.IndexUID != nil {
		if err := removeFromBitmap(tx.Bucket(bucketTasksByIndex), []byte(*task.IndexUID), task.UID); err != nil {
			return err
		}
	}
	if task.CanceledBy != nil {
		if err := removeFromBitmap(tx.Bucket(bucketTasksByCanceler), uidKey(*task.CanceledBy), task.UID); err != nil {
			return err
		}
	}
	if err := tx.Bucket(bucketTasksEnqueued).Delete(timeUIDKey(task.EnqueuedAt, task.UID)); err != nil {
		return err
	}
	if task.StartedAt != nil {
		if err := tx.Bucket(bucketTasksStarted).Delete(timeUIDKey(*task.StartedAt, task.UID)); err != nil {
			return err
		}
	}
	if task.FinishedAt != nil {
		if err := tx.Bucket(bucketTasksFinished).Delete(timeUIDKey(*task.FinishedAt, task.UID)); err != nil {
			return err
		}
	}
	if task.BatchUID != nil {
		if err := removeFromBitmap(tx.Bucket(bucketTasksByBatch), uidKey(*task.BatchUID), task.UID); err != nil {
			return err
		}
		if err := tx.Bucket(bucketTaskToBatch).Delete(uidKey(task.UID)); err != nil {
			return err
		}
		if err := removeFromBitmap(tx.Bucket(bucketBatchToTasks), uidKey(*task.BatchUID), task.UID); err != nil {
			return err
		}
	}
	return nil
}

// Update rewrites a task row, re-deriving every secondary index from the
// before/after state in one write transaction (spec.md §4.1).
func (s *BoltStore) Update(task *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		old, err := s.getTaskTx(tx, task.UID)
		if err != nil {
			return err
		}
		if old != nil {
			if err := s.deindexTask(tx, old); err != nil {
				return err
			}
		}
		if err := s.putTask(tx, task, false); err != nil {
			return err
		}
		return s.indexTask(tx, task)
	})
}

// UpdateTasks rewrites every task in one write transaction (spec.md §4.6
// steps 2 and 4: publishing processing and committing terminal statuses
// must each be visible to observers atomically, not task-by-task).
func (s *BoltStore) UpdateTasks(tasks []*types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, task := range tasks {
			old, err := s.getTaskTx(tx, task.UID)
			if err != nil {
				return err
			}
			if old != nil {
				if err := s.deindexTask(tx, old); err != nil {
					return err
				}
			}
			if err := s.putTask(tx, task, false); err != nil {
				return err
			}
			if err := s.indexTask(tx, task); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) getTaskTx(tx *bolt.Tx, uid types.TaskID) (*types.Task, error) {
	data := tx.Bucket(bucketTasks).Get(uidKey(uid))
	if data == nil {
		return nil, nil
	}
	var task types.Task
	if err := task.UnmarshalJSON(data); err != nil {
		return nil, stratumerrors.CorruptedTaskQueue(err)
	}
	return &task, nil
}

// GetTask returns a single task by uid.
func (s *BoltStore) GetTask(uid types.TaskID) (*types.Task, error) {
	var task *types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		t, err := s.getTaskTx(tx, uid)
		if err != nil {
			return err
		}
		task = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, stratumerrors.TaskNotFound(uid)
	}
	return task, nil
}

// GetTasks implements the query semantics of spec.md §4.1/§6: filters by
// any combination of id/kind/status/index/canceller/batch plus timestamp
// ranges, paginated with from/limit/reverse, returning the untruncated
// total count.
func (s *BoltStore) GetTasks(q types.Query) ([]*types.Task, int, error) {
	var results []*types.Task
	var total int

	err := s.db.View(func(tx *bolt.Tx) error {
		candidates, err := s.candidateTaskUIDs(tx, q)
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
			t, err := s.getTaskTx(tx, uid)
			if err != nil {
				return err
			}
			if t != nil {
				results = append(results, t)
			}
		}
		return nil
	})
	return results, total, err
}

func cropFrom(uids []uint32, from uint32, reverse bool) []uint32 {
	idx := sort.Search(len(uids), func(i int) bool {
		if reverse {
			return uids[i] <= from
		}
		return uids[i] >= from
	})
	return uids[idx:]
}

func (s *BoltStore) candidateTaskUIDs(tx *bolt.Tx, q types.Query) (*roaring.Bitmap, error) {
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
		bm, err := unionKeys(tx.Bucket(bucketTasksByKind), keys)
		if err != nil {
			return nil, err
		}
		filters = append(filters, bm)
	}
	if len(q.Statuses) > 0 {
		keys := make([][]byte, len(q.Statuses))
		for i, st := range q.Statuses {
			keys[i] = []byte(st)
		}
		bm, err := unionKeys(tx.Bucket(bucketTasksByStatus), keys)
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
		bm, err := unionKeys(tx.Bucket(bucketTasksByIndex), keys)
		if err != nil {
			return nil, err
		}
		filters = append(filters, bm)
	}
	if len(q.CanceledBy) > 0 {
		keys := make([][]byte, len(q.CanceledBy))
		for i, uid := range q.CanceledBy {
			keys[i] = uidKey(uid)
		}
		bm, err := unionKeys(tx.Bucket(bucketTasksByCanceler), keys)
		if err != nil {
			return nil, err
		}
		filters = append(filters, bm)
	}
	if len(q.BatchUIDs) > 0 {
		keys := make([][]byte, len(q.BatchUIDs))
		for i, uid := range q.BatchUIDs {
			keys[i] = uidKey(uid)
		}
		bm, err := unionKeys(tx.Bucket(bucketTasksByBatch), keys)
		if err != nil {
			return nil, err
		}
		filters = append(filters, bm)
	}

	if bm := scanTimeRange(tx.Bucket(bucketTasksEnqueued), q.AfterEnqueuedAt, q.BeforeEnqueuedAt); bm != nil {
		filters = append(filters, bm)
	}
	if bm := scanTimeRange(tx.Bucket(bucketTasksStarted), q.AfterStartedAt, q.BeforeStartedAt); bm != nil {
		filters = append(filters, bm)
	}
	if bm := scanTimeRange(tx.Bucket(bucketTasksFinished), q.AfterFinishedAt, q.BeforeFinishedAt); bm != nil {
		filters = append(filters, bm)
	}

	if len(filters) == 0 {
		return allTaskUIDs(tx)
	}
	return intersectAll(filters...), nil
}

// DeletePersistedTaskData removes the staged content file a document
// addition/update task referred to, if any (spec.md §4.1).
func (s *BoltStore) DeletePersistedTaskData(task *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContentFiles)
		key := uidKey(task.UID)
		path := b.Get(key)
		if path == nil {
			return nil
		}
		if err := os.Remove(string(path)); err != nil && !os.IsNotExist(err) {
			return err
		}
		return b.Delete(key)
	})
}

// RecordContentFile associates a staged document payload path with its
// task, so DeletePersistedTaskData can find it later.
func (s *BoltStore) RecordContentFile(uid types.TaskID, path string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContentFiles).Put(uidKey(uid), []byte(path))
	})
}

// DeleteTask removes a task and every secondary-index entry referencing it.
func (s *BoltStore) DeleteTask(uid types.TaskID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		task, err := s.getTaskTx(tx, uid)
		if err != nil {
			return err
		}
		if task == nil {
			return nil
		}
		if err := s.deindexTask(tx, task); err != nil {
			return err
		}
		return tx.Bucket(bucketTasks).Delete(uidKey(uid))
	})
}

// CountByStatus aggregates the per-status bitmap cardinalities.
func (s *BoltStore) CountByStatus() (map[types.Status]int, error) {
	counts := make(map[types.Status]int)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasksByStatus)
		for _, status := range []types.Status{
			types.StatusEnqueued, types.StatusProcessing, types.StatusSucceeded,
			types.StatusFailed, types.StatusCanceled,
		} {
			bm, err := loadBitmap(b, []byte(status))
			if err != nil {
				return err
			}
			counts[status] = int(bm.GetCardinality())
		}
		return nil
	})
	return counts, err
}

// UsedFraction reports the task store's on-disk size relative to its
// configured maximum (spec.md §5's 40% backpressure threshold).
func (s *BoltStore) UsedFraction() (float64, error) {
	if s.maxSize <= 0 {
		return 0, nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, stratumerrors.Wrap(err, "stat task store")
	}
	return float64(info.Size()) / float64(s.maxSize), nil
}

// NextTaskUID previews the uid the next Register call would assign.
func (s *BoltStore) NextTaskUID() (types.TaskID, error) {
	var next uint32
	err := s.db.View(func(tx *bolt.Tx) error {
		next = peekNextUID(tx.Bucket(bucketMeta), metaKeyNextTaskUID)
		return nil
	})
	return next, err
}

// ReconcileStuckProcessing implements the restart-time recovery policy for
// the open question in spec.md §9: any task found in status processing
// after a restart cannot have its batch's index-side outcome verified
// safely, so it is marked failed with an internal-error response rather
// than silently re-run.
func (s *BoltStore) ReconcileStuckProcessing() ([]types.TaskID, error) {
	var fixed []types.TaskID
	err := s.db.Update(func(tx *bolt.Tx) error {
		bm, err := loadBitmap(tx.Bucket(bucketTasksByStatus), []byte(types.StatusProcessing))
		if err != nil {
			return err
		}
		for _, uid := range bm.ToArray() {
			task, err := s.getTaskTx(tx, uid)
			if err != nil {
				return err
			}
			if task == nil {
				continue
			}
			if err := s.deindexTask(tx, task); err != nil {
				return err
			}
			task.Status = types.StatusFailed
			task.Error = &types.ResponseError{
				Message: "a restart interrupted this task's batch before its outcome could be confirmed",
				Code:    "internal_error",
				Type:    string(stratumerrors.TypeInternal),
			}
			task.Details = task.Details.ToFailed()
			if err := s.putTask(tx, task, false); err != nil {
				return err
			}
			if err := s.indexTask(tx, task); err != nil {
				return err
			}
			fixed = append(fixed, uid)
		}
		return nil
	})
	return fixed, err
}

func allTaskUIDs(tx *bolt.Tx) (*roaring.Bitmap, error) {
	return unionKeys(tx.Bucket(bucketTasksByStatus), [][]byte{
		[]byte(types.StatusEnqueued), []byte(types.StatusProcessing),
		[]byte(types.StatusSucceeded), []byte(types.StatusFailed), []byte(types.StatusCanceled),
	})
}

package storage

import (
	"github.com/cuemby/stratum/pkg/types"
)

// Store is the task store's contract (spec.md §4.1): transactional
// persistence of tasks and batches plus their secondary indexes.
// BoltStore is the only implementation.
type Store interface {
	// Register appends a new task with status enqueued. If uid is non-nil
	// it must be strictly greater than every existing uid (replication);
	// otherwise the next sequential uid is assigned. When dryRun, the uid
	// is allocated and returned but nothing is persisted.
	Register(task *types.Task, uid *types.TaskID, dryRun bool) (*types.Task, error)

	// Update rewrites a task row and keeps every secondary index
	// consistent within the same write transaction.
	Update(task *types.Task) error

	// UpdateTasks rewrites every task in tasks inside a single write
	// transaction, so observers never see a partially-updated batch
	// (spec.md §4.6 steps 2 and 4, "commit the task-store transaction").
	UpdateTasks(tasks []*types.Task) error

	GetTask(uid types.TaskID) (*types.Task, error)
	GetTasks(q types.Query) ([]*types.Task, int, error)

	// DeletePersistedTaskData removes any out-of-band blob (a staged
	// document content file) the task referred to.
	DeletePersistedTaskData(task *types.Task) error

	RegisterBatch(batch *types.Batch) error
	UpdateBatch(batch *types.Batch) error
	GetBatch(uid types.BatchID) (*types.Batch, error)
	GetBatches(q types.Query) ([]*types.Batch, int, error)

	// TasksInBatch returns every task uid tied to a batch via the
	// task_to_batch / batch_to_tasks secondary indexes.
	TasksInBatch(batchUID types.BatchID) ([]types.TaskID, error)

	// DeleteTask removes a task and every secondary-index entry
	// referencing it. The caller must already have verified the task is
	// in a terminal status.
	DeleteTask(uid types.TaskID) error

	// CountByStatus and UsedFraction back the metrics collector and the
	// 40%-full backpressure check (spec.md §5).
	CountByStatus() (map[types.Status]int, error)
	UsedFraction() (float64, error)

	// NextTaskUID previews, without allocating, the uid the next
	// Register call would assign.
	NextTaskUID() (types.TaskID, error)

	// ReconcileStuckProcessing scans for tasks left in status processing
	// across a restart (spec.md §9 open question) and marks them failed
	// with an internal-error response, since the index-side outcome of
	// their batch cannot be known safely.
	ReconcileStuckProcessing() ([]types.TaskID, error)

	Close() error
}

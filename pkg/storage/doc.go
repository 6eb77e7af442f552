/*
Package storage persists tasks and batches in a single BoltDB file.

# Buckets

	tasks                 task uid -> JSON-encoded types.Task
	batches               batch uid -> JSON-encoded types.Batch
	meta                  fixed keys: next_task_uid, next_batch_uid
	content_files         task uid -> path of its staged content file
	tasks_by_status       roaring bitmaps of task uids, keyed by status
	tasks_by_kind         roaring bitmaps of task uids, keyed by kind
	tasks_by_index        roaring bitmaps of task uids, keyed by index name
	tasks_by_canceled_by  roaring bitmaps of task uids, keyed by canceler uid
	tasks_by_batch        roaring bitmaps of task uids, keyed by batch uid
	tasks_enqueued_at     (timestamp,uid) -> uid, ordered index over EnqueuedAt
	tasks_started_at      (timestamp,uid) -> uid, ordered index over StartedAt
	tasks_finished_at     (timestamp,uid) -> uid, ordered index over FinishedAt
	batches_by_kind, batches_by_index, batches_started_at,
	batches_finished_at   the same secondary indexes over batches
	batch_to_tasks        batch uid -> member task uids
	task_to_batch         task uid -> batch uid

Every bucket beyond the primary tasks/batches ones is a secondary index
BoltStore keeps in lockstep with the primary record inside the same
transaction: indexTask populates them on Register, deindexTask retracts
them on DeleteTask, and GetTasks intersects the relevant bitmaps (via
candidateTaskUIDs) instead of scanning the full tasks bucket.

# Transactions

Reads run inside db.View, writes inside db.Update; BoltDB serializes
writers and gives readers a consistent snapshot, so Register, Update,
and DeleteTask never race a concurrent GetTasks. Every write that
touches a task also updates its secondary indexes in the same
transaction, so a crash mid-write leaves either the old or the new
state, never an inconsistent mix of the two.

# Capacity

maxSize is the nominal size of the task store; the BoltDB file is opened
without a size bound. UsedFraction reports the file's current size as a
fraction of maxSize, and BoltStore.Register uses it to refuse every new
task except task deletions and cancellations once that fraction exceeds
40% (see errors.NoSpaceLeftInTaskQueue).

# See also

  - pkg/types for the Task/Batch/Query shapes this package persists
  - pkg/scheduler for the primary reader of GetTasks/CountByStatus
  - pkg/executor for the primary writer via Register/Update
*/
package storage

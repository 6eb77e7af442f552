/*
Package scheduler implements the task queue's single dedicated worker: the
run loop that selects a batch of enqueued tasks, publishes them to
processing, dispatches them to the batch executor, commits the outcome, and
notifies webhooks.

# Architecture

The run loop alternates between two phases: ticking while there is work, and
waiting for a wake-up signal while the queue is empty.

	┌────────────────────────────────────────────────────────────┐
	│                        run()                                │
	└────────────────┬─────────────────────────────────────────────┘
	                 │
	                 ▼
	        ┌─────────────────┐
	        │   tickSafely()   │◄────────────┐
	        └────────┬─────────┘             │
	                 │                       │ TickAgain
	        ┌────────▼─────────┐             │
	        │ 1. select batch  │             │
	        │ 2. publish       │             │
	        │    processing    │─────────────┘
	        │ 3. dispatch      │
	        │ 4. commit        │
	        │ 5. post-commit   │
	        └────────┬─────────┘
	                 │ WaitForSignal
	                 ▼
	        ┌─────────────────┐
	        │  waitForWork()   │  blocks on Wake(), a 60s timeout,
	        └─────────────────┘  or Stop()

# Core Components

Scheduler: owns the run loop and every collaborator it drives — the task
store, the index mapper, the processing set, the batch executor, and the
webhook notifier.

	sched := scheduler.New(store, mapper, proc, exec, notifier, opts)
	sched.Start()
	defer sched.Stop()

Unlike a polling scheduler on a fixed interval, tick never sleeps while
there is work: an empty selection is the only thing that sends it to
waitForWork.

# The Five Steps of a Tick

1. Select: selectBatch walks enqueued tasks in uid order through the
autobatcher's pure decision function until it finalizes a batch, runs out of
input, or rejects a task outright. A rejected task is left enqueued and
reconsidered from scratch on the next tick.

2. Publish processing: the batch row is registered, every selected task is
marked processing with its batch uid and start time in one task-store
transaction, and the in-memory processing set records which uids are now in
flight — the point at which a concurrent task-cancellation request can
observe the batch as running and raise must_stop.

3. Dispatch: the executor applies the batch to its target index (or the task
store directly, for global operations) inside one index-side transaction,
cooperatively checking must_stop at bounded intervals.

4. Commit: the executor has already persisted each task's terminal status
as it finished it; here the batch row is finalized with the aggregated
stats and stop reason.

5. Post-commit: the processing set is cleared, finished tasks are handed to
the webhook notifier as an already-read snapshot, and the auto-cleanup check
registers a task-deletion task if the queue has grown past its configured
ceiling.

# Panic Safety

tickSafely wraps tick in a deferred recover(). A panic inside a handler
marks every task still in flight failed with an internal error, clears the
processing set, and lets the loop continue rather than taking the process
down — the run loop is the only goroutine that ever executes tasks, so a
crash here must never propagate.

# Restart Reconciliation

Before the first tick, run scans for tasks left in status processing from a
prior process (a crash mid-batch, not a panic caught above) and marks them
failed, since the index-side outcome of their batch cannot be known safely
after the fact.

# See Also

  - pkg/autobatcher - the pure decision function driving step 1
  - pkg/executor - the kind-specific handlers driving step 3
  - pkg/processing - the in-memory processing set
  - pkg/webhook - the post-commit notifier
  - pkg/cleanup - the post-commit auto-cleanup check
*/
package scheduler

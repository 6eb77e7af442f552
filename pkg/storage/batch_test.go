package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/stratum/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "tasks"), 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRegisterBatchAssignsMonotonicUID(t *testing.T) {
	store := newTestBoltStore(t)

	first := &types.Batch{StartedAt: time.Now(), Stats: types.NewBatchStats()}
	require.NoError(t, store.RegisterBatch(first))
	second := &types.Batch{StartedAt: time.Now(), Stats: types.NewBatchStats()}
	require.NoError(t, store.RegisterBatch(second))

	require.Less(t, first.UID, second.UID)
}

func TestGetBatchRoundTrips(t *testing.T) {
	store := newTestBoltStore(t)

	stats := types.NewBatchStats()
	stats.Add(&types.Task{Kind: types.KindDocumentClear, Status: types.StatusSucceeded, IndexUID: strPtr("movies")})
	batch := &types.Batch{StartedAt: time.Now(), Stats: stats}
	require.NoError(t, store.RegisterBatch(batch))

	got, err := store.GetBatch(batch.UID)
	require.NoError(t, err)
	require.Equal(t, batch.UID, got.UID)
	require.Equal(t, 1, got.Stats.TotalNbTasks)
}

func TestGetBatchMissingReturnsNotFound(t *testing.T) {
	store := newTestBoltStore(t)
	_, err := store.GetBatch(999)
	require.Error(t, err)
}

func TestUpdateBatchReindexes(t *testing.T) {
	store := newTestBoltStore(t)

	batch := &types.Batch{StartedAt: time.Now(), Stats: types.NewBatchStats()}
	require.NoError(t, store.RegisterBatch(batch))

	finishedAt := time.Now()
	batch.FinishedAt = &finishedAt
	batch.StopReason = "exhausted"
	require.NoError(t, store.UpdateBatch(batch))

	got, err := store.GetBatch(batch.UID)
	require.NoError(t, err)
	require.NotNil(t, got.FinishedAt)
	require.Equal(t, "exhausted", got.StopReason)
}

func TestTasksInBatchReflectsIndexedTasks(t *testing.T) {
	store := newTestBoltStore(t)

	batch := &types.Batch{StartedAt: time.Now(), Stats: types.NewBatchStats()}
	require.NoError(t, store.RegisterBatch(batch))

	task, err := store.Register(&types.Task{Kind: types.KindDocumentClear}, nil, false)
	require.NoError(t, err)
	task.BatchUID = &batch.UID
	task.Status = types.StatusSucceeded
	require.NoError(t, store.Update(task))

	uids, err := store.TasksInBatch(batch.UID)
	require.NoError(t, err)
	require.Equal(t, []types.TaskID{task.UID}, uids)
}

func TestGetBatchesFiltersByIndex(t *testing.T) {
	store := newTestBoltStore(t)

	statsA := types.NewBatchStats()
	statsA.Add(&types.Task{Kind: types.KindDocumentClear, Status: types.StatusSucceeded, IndexUID: strPtr("movies")})
	batchA := &types.Batch{StartedAt: time.Now(), Stats: statsA}
	require.NoError(t, store.RegisterBatch(batchA))

	statsB := types.NewBatchStats()
	statsB.Add(&types.Task{Kind: types.KindDocumentClear, Status: types.StatusSucceeded, IndexUID: strPtr("books")})
	batchB := &types.Batch{StartedAt: time.Now(), Stats: statsB}
	require.NoError(t, store.RegisterBatch(batchB))

	got, total, err := store.GetBatches(types.Query{IndexUIDs: []string{"movies"}})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, got, 1)
	require.Equal(t, batchA.UID, got[0].UID)
}

func strPtr(s string) *string { return &s }

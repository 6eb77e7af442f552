package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/stratum/pkg/config"
	"github.com/cuemby/stratum/pkg/engine"
	"github.com/cuemby/stratum/pkg/executor"
	"github.com/cuemby/stratum/pkg/indexmapper"
	"github.com/cuemby/stratum/pkg/processing"
	"github.com/cuemby/stratum/pkg/storage"
	"github.com/cuemby/stratum/pkg/types"
	"github.com/cuemby/stratum/pkg/versioning"
	"github.com/cuemby/stratum/pkg/webhook"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) (*Scheduler, storage.Store) {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewBoltStore(filepath.Join(dir, "tasks"), 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	eng := engine.New(filepath.Join(dir, "indexes"))
	mapper := indexmapper.New(eng, 4)
	proc := processing.New()

	opts := config.Default(dir)
	vs, _, err := versioning.Open(filepath.Join(dir, "VERSION"))
	require.NoError(t, err)

	ex := executor.New(store, mapper, eng, proc, opts, vs)
	notifier := webhook.New(nil, time.Second)

	return New(store, mapper, proc, ex, notifier, opts), store
}

func TestTickRunsSingleTaskBatchToCompletion(t *testing.T) {
	s, store := newTestScheduler(t)

	task, err := store.Register(&types.Task{
		Kind:     types.KindIndexCreation,
		IndexUID: strPtr("movies"),
		Content:  &types.IndexCreation{IndexUID: "movies"},
	}, nil, false)
	require.NoError(t, err)

	outcome, _, err := s.tick()
	require.NoError(t, err)
	require.Equal(t, TickAgain, outcome)

	got, err := store.GetTask(task.UID)
	require.NoError(t, err)
	require.Equal(t, types.StatusSucceeded, got.Status)
	require.NotNil(t, got.BatchUID)

	batch, err := store.GetBatch(*got.BatchUID)
	require.NoError(t, err)
	require.NotNil(t, batch.FinishedAt)
	require.Equal(t, 1, batch.Stats.TotalNbTasks)
}

func TestTickWithEmptyQueueWaitsForSignal(t *testing.T) {
	s, _ := newTestScheduler(t)

	outcome, tasks, err := s.tick()
	require.NoError(t, err)
	require.Equal(t, WaitForSignal, outcome)
	require.Nil(t, tasks)
}

func TestTickClearsProcessingSetAfterCommit(t *testing.T) {
	s, store := newTestScheduler(t)

	_, err := store.Register(&types.Task{
		Kind:     types.KindIndexCreation,
		IndexUID: strPtr("books"),
		Content:  &types.IndexCreation{IndexUID: "books"},
	}, nil, false)
	require.NoError(t, err)

	_, _, err = s.tick()
	require.NoError(t, err)

	uids, batchUID := s.proc.Snapshot()
	require.Empty(t, uids)
	require.Nil(t, batchUID)
}

func TestStartStopRunLoop(t *testing.T) {
	s, store := newTestScheduler(t)

	initCh := make(chan struct{})
	s.OnInit(func() { close(initCh) })
	s.Start()

	select {
	case <-initCh:
	case <-time.After(time.Second):
		t.Fatal("scheduler never signaled init")
	}

	task, err := store.Register(&types.Task{
		Kind:     types.KindIndexCreation,
		IndexUID: strPtr("wiki"),
		Content:  &types.IndexCreation{IndexUID: "wiki"},
	}, nil, false)
	require.NoError(t, err)
	s.Wake()

	require.Eventually(t, func() bool {
		got, err := store.GetTask(task.UID)
		return err == nil && got.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
}

func strPtr(s string) *string { return &s }

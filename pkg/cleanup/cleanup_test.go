package cleanup

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/stratum/pkg/config"
	"github.com/cuemby/stratum/pkg/storage"
	"github.com/cuemby/stratum/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewBoltStore(filepath.Join(t.TempDir(), "tasks"), 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func registerFinished(t *testing.T, store storage.Store, status types.Status) *types.Task {
	t.Helper()
	task, err := store.Register(&types.Task{Kind: types.KindDocumentClear}, nil, false)
	require.NoError(t, err)
	task.Status = status
	require.NoError(t, store.Update(task))
	return task
}

func TestMaybeRegisterSkipsUnderThreshold(t *testing.T) {
	store := newTestStore(t)
	registerFinished(t, store, types.StatusSucceeded)

	opts := config.Default(t.TempDir())
	opts.MaxNumberOfTasks = 10

	task, err := MaybeRegister(store, opts)
	require.NoError(t, err)
	require.Nil(t, task)
}

func TestMaybeRegisterSkipsWhenDisabled(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 5; i++ {
		registerFinished(t, store, types.StatusSucceeded)
	}

	opts := config.Default(t.TempDir())
	opts.CleanupEnabled = false
	opts.MaxNumberOfTasks = 1

	task, err := MaybeRegister(store, opts)
	require.NoError(t, err)
	require.Nil(t, task)
}

func TestMaybeRegisterTargetsOldestFinishedTasks(t *testing.T) {
	store := newTestStore(t)
	first := registerFinished(t, store, types.StatusSucceeded)
	second := registerFinished(t, store, types.StatusFailed)
	registerFinished(t, store, types.StatusCanceled)

	opts := config.Default(t.TempDir())
	opts.MaxNumberOfTasks = 1

	task, err := MaybeRegister(store, opts)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, types.KindTaskDeletion, task.Kind)

	del, ok := task.Content.(*types.TaskDeletion)
	require.True(t, ok)
	require.Equal(t, []types.TaskID{first.UID, second.UID}, del.Tasks)
}

func TestMaybeRegisterIgnoresUnfinishedTasks(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Register(&types.Task{Kind: types.KindDocumentClear}, nil, false)
	require.NoError(t, err)

	opts := config.Default(t.TempDir())
	opts.MaxNumberOfTasks = 0

	task, err := MaybeRegister(store, opts)
	require.NoError(t, err)
	require.Nil(t, task)
}

package executor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/stratum/pkg/config"
	"github.com/cuemby/stratum/pkg/engine"
	"github.com/cuemby/stratum/pkg/indexmapper"
	"github.com/cuemby/stratum/pkg/processing"
	"github.com/cuemby/stratum/pkg/storage"
	"github.com/cuemby/stratum/pkg/types"
	"github.com/cuemby/stratum/pkg/versioning"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T) (*Executor, storage.Store, *indexmapper.Mapper, string) {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewBoltStore(filepath.Join(dir, "tasks"), 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	eng := engine.New(filepath.Join(dir, "indexes"))
	mapper := indexmapper.New(eng, 4)

	opts := config.Default(dir)
	versionPath := filepath.Join(dir, "VERSION")
	vs, _, err := versioning.Open(versionPath)
	require.NoError(t, err)

	proc := processing.New()
	ex := New(store, mapper, eng, proc, opts, vs)
	return ex, store, mapper, dir
}

func writeContentFile(t *testing.T, dir string, docs []map[string]interface{}) string {
	t.Helper()
	data, err := json.Marshal(docs)
	require.NoError(t, err)
	path := filepath.Join(dir, "content.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func registerTask(t *testing.T, store storage.Store, task *types.Task) *types.Task {
	t.Helper()
	stored, err := store.Register(task, nil, false)
	require.NoError(t, err)
	return stored
}

func TestHandleDocumentOpsAddsDocumentsAndInfersPrimaryKey(t *testing.T) {
	ex, store, mapper, dir := newTestExecutor(t)

	content := writeContentFile(t, dir, []map[string]interface{}{
		{"id": "1", "title": "a"},
		{"id": "2", "title": "b"},
	})
	idx := "movies"
	task := registerTask(t, store, &types.Task{
		Kind:     types.KindDocumentAdditionOrUpdate,
		IndexUID: &idx,
		Content: &types.DocumentAdditionOrUpdate{
			IndexUID:           idx,
			Method:             types.MethodUpdate,
			ContentFile:        content,
			DocumentsCount:     2,
			AllowIndexCreation: true,
		},
	})

	err := ex.Execute(idx, []*types.Task{task})
	require.NoError(t, err)

	got, err := store.GetTask(task.UID)
	require.NoError(t, err)
	require.Equal(t, types.StatusSucceeded, got.Status)
	require.NotNil(t, got.Details.IndexedDocuments)
	require.Equal(t, int64(2), *got.Details.IndexedDocuments)
	require.Equal(t, "id", *got.Details.PrimaryKey)

	opened, err := mapper.Index(idx)
	require.NoError(t, err)
	stats, err := opened.Stats()
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.NumberOfDocuments)
}

func TestHandleDocumentOpsFailsWithoutIndexCreationPermission(t *testing.T) {
	ex, store, _, dir := newTestExecutor(t)

	content := writeContentFile(t, dir, []map[string]interface{}{{"id": "1"}})
	idx := "movies"
	task := registerTask(t, store, &types.Task{
		Kind:     types.KindDocumentAdditionOrUpdate,
		IndexUID: &idx,
		Content: &types.DocumentAdditionOrUpdate{
			IndexUID:           idx,
			Method:             types.MethodUpdate,
			ContentFile:        content,
			AllowIndexCreation: false,
		},
	})

	require.NoError(t, ex.Execute(idx, []*types.Task{task}))

	got, err := store.GetTask(task.UID)
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, got.Status)
	require.Equal(t, "index_not_found", got.Error.Code)
}

func TestHandleDocumentOpsPrimaryKeyMismatchFailsOnlyThatTask(t *testing.T) {
	ex, store, _, dir := newTestExecutor(t)
	idx := "movies"

	content1 := writeContentFile(t, dir, []map[string]interface{}{{"id": "1"}})
	task1 := registerTask(t, store, &types.Task{
		Kind:     types.KindDocumentAdditionOrUpdate,
		IndexUID: &idx,
		Content: &types.DocumentAdditionOrUpdate{
			IndexUID: idx, Method: types.MethodUpdate, ContentFile: content1,
			DocumentsCount: 1, AllowIndexCreation: true,
		},
	})
	require.NoError(t, ex.Execute(idx, []*types.Task{task1}))

	content2 := writeContentFile(t, dir, []map[string]interface{}{{"other": "value"}})
	pk := "missing_field"
	task2 := registerTask(t, store, &types.Task{
		Kind:     types.KindDocumentAdditionOrUpdate,
		IndexUID: &idx,
		Content: &types.DocumentAdditionOrUpdate{
			IndexUID: idx, PrimaryKey: &pk, Method: types.MethodUpdate, ContentFile: content2,
			DocumentsCount: 1, AllowIndexCreation: true,
		},
	})
	require.NoError(t, ex.Execute(idx, []*types.Task{task2}))

	got, err := store.GetTask(task2.UID)
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, got.Status)
}

func TestHandleSettingsUpdateMerges(t *testing.T) {
	ex, store, _, _ := newTestExecutor(t)
	idx := "movies"

	task1 := registerTask(t, store, &types.Task{
		Kind:     types.KindSettingsUpdate,
		IndexUID: &idx,
		Content: &types.SettingsUpdate{
			IndexUID: idx, NewSettings: map[string]any{"a": 1}, AllowIndexCreation: true,
		},
	})
	task2 := registerTask(t, store, &types.Task{
		Kind:     types.KindSettingsUpdate,
		IndexUID: &idx,
		Content: &types.SettingsUpdate{
			IndexUID: idx, NewSettings: map[string]any{"b": 2},
		},
	})

	require.NoError(t, ex.Execute(idx, []*types.Task{task1, task2}))

	got1, err := store.GetTask(task1.UID)
	require.NoError(t, err)
	require.Equal(t, types.StatusSucceeded, got1.Status)
	got2, err := store.GetTask(task2.UID)
	require.NoError(t, err)
	require.Equal(t, types.StatusSucceeded, got2.Status)
}

func TestHandleIndexCreationAndDeletion(t *testing.T) {
	ex, store, mapper, _ := newTestExecutor(t)
	idx := "books"

	createTask := registerTask(t, store, &types.Task{
		Kind:     types.KindIndexCreation,
		IndexUID: &idx,
		Content:  &types.IndexCreation{IndexUID: idx},
	})
	require.NoError(t, ex.Execute(idx, []*types.Task{createTask}))
	require.True(t, mapper.Exists(idx))

	deleteTask := registerTask(t, store, &types.Task{
		Kind:     types.KindIndexDeletion,
		IndexUID: &idx,
		Content:  &types.IndexDeletion{IndexUID: idx},
	})
	require.NoError(t, ex.Execute(idx, []*types.Task{deleteTask}))
	require.False(t, mapper.Exists(idx))

	got, err := store.GetTask(deleteTask.UID)
	require.NoError(t, err)
	require.Equal(t, types.StatusSucceeded, got.Status)
}

func TestHandleTaskCancellationMarksEnqueuedTaskCanceled(t *testing.T) {
	ex, store, _, dir := newTestExecutor(t)
	idx := "movies"

	content := writeContentFile(t, dir, []map[string]interface{}{{"id": "1"}})
	target := registerTask(t, store, &types.Task{
		Kind:     types.KindDocumentAdditionOrUpdate,
		IndexUID: &idx,
		Content: &types.DocumentAdditionOrUpdate{
			IndexUID: idx, Method: types.MethodUpdate, ContentFile: content, AllowIndexCreation: true,
		},
	})

	cancellation := registerTask(t, store, &types.Task{
		Kind:    types.KindTaskCancellation,
		Content: &types.TaskCancellation{Tasks: []types.TaskID{target.UID}},
	})

	require.NoError(t, ex.Execute("", []*types.Task{cancellation}))

	gotTarget, err := store.GetTask(target.UID)
	require.NoError(t, err)
	require.Equal(t, types.StatusCanceled, gotTarget.Status)
	require.Equal(t, cancellation.UID, *gotTarget.CanceledBy)

	gotCancellation, err := store.GetTask(cancellation.UID)
	require.NoError(t, err)
	require.Equal(t, types.StatusSucceeded, gotCancellation.Status)
	require.Equal(t, int64(1), *gotCancellation.Details.CanceledTasks)
}

func TestHandleTaskDeletionOnlyRemovesTerminalTasks(t *testing.T) {
	ex, store, _, dir := newTestExecutor(t)
	idx := "movies"

	content := writeContentFile(t, dir, []map[string]interface{}{{"id": "1"}})
	doneTask := registerTask(t, store, &types.Task{
		Kind:     types.KindDocumentAdditionOrUpdate,
		IndexUID: &idx,
		Content: &types.DocumentAdditionOrUpdate{
			IndexUID: idx, Method: types.MethodUpdate, ContentFile: content,
			DocumentsCount: 1, AllowIndexCreation: true,
		},
	})
	require.NoError(t, ex.Execute(idx, []*types.Task{doneTask}))

	pendingTask := registerTask(t, store, &types.Task{
		Kind:     types.KindDocumentAdditionOrUpdate,
		IndexUID: &idx,
		Content: &types.DocumentAdditionOrUpdate{
			IndexUID: idx, Method: types.MethodUpdate, ContentFile: content, AllowIndexCreation: true,
		},
	})

	deletion := registerTask(t, store, &types.Task{
		Kind:    types.KindTaskDeletion,
		Content: &types.TaskDeletion{Tasks: []types.TaskID{doneTask.UID, pendingTask.UID}},
	})
	require.NoError(t, ex.Execute("", []*types.Task{deletion}))

	_, err := store.GetTask(doneTask.UID)
	require.Error(t, err)

	stillThere, err := store.GetTask(pendingTask.UID)
	require.NoError(t, err)
	require.Equal(t, types.StatusEnqueued, stillThere.Status)
}

func TestHandleDumpCreationProducesArchive(t *testing.T) {
	ex, store, _, dir := newTestExecutor(t)

	dumpTask := registerTask(t, store, &types.Task{
		Kind:    types.KindDumpCreation,
		Content: &types.DumpCreation{},
	})
	require.NoError(t, ex.Execute("", []*types.Task{dumpTask}))

	got, err := store.GetTask(dumpTask.UID)
	require.NoError(t, err)
	require.Equal(t, types.StatusSucceeded, got.Status)
	require.NotNil(t, got.Details.DumpUID)

	entries, err := os.ReadDir(filepath.Join(dir, "dumps"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestHandleUpgradeDatabaseBumpsVersion(t *testing.T) {
	ex, store, _, _ := newTestExecutor(t)

	task := registerTask(t, store, &types.Task{
		Kind:    types.KindUpgradeDatabase,
		Content: &types.UpgradeDatabase{From: [3]uint32{0, 9, 0}},
	})
	require.NoError(t, ex.Execute("", []*types.Task{task}))

	got, err := store.GetTask(task.UID)
	require.NoError(t, err)
	require.Equal(t, types.StatusSucceeded, got.Status)
	require.Equal(t, versioning.Version, *got.Details.UpgradeTo)
}

package autobatcher

import (
	"testing"

	"github.com/cuemby/stratum/pkg/types"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func docTask(uid types.TaskID, indexUID string, pk *string, allowCreate bool) *types.Task {
	content := &types.DocumentAdditionOrUpdate{
		IndexUID:           indexUID,
		PrimaryKey:         pk,
		Method:             types.MethodUpdate,
		AllowIndexCreation: allowCreate,
	}
	idx := indexUID
	return &types.Task{UID: uid, Kind: types.KindDocumentAdditionOrUpdate, Content: content, IndexUID: &idx}
}

func settingsTask(uid types.TaskID, indexUID string) *types.Task {
	idx := indexUID
	return &types.Task{UID: uid, Kind: types.KindSettingsUpdate, Content: &types.SettingsUpdate{IndexUID: indexUID}, IndexUID: &idx}
}

func filterDeleteTask(uid types.TaskID, indexUID string) *types.Task {
	idx := indexUID
	return &types.Task{UID: uid, Kind: types.KindDocumentDeletionByFilter, Content: &types.DocumentDeletionByFilter{IndexUID: indexUID}, IndexUID: &idx}
}

func clearTask(uid types.TaskID, indexUID string) *types.Task {
	idx := indexUID
	return &types.Task{UID: uid, Kind: types.KindDocumentClear, Content: &types.DocumentClear{IndexUID: indexUID}, IndexUID: &idx}
}

func indexDeletionTask(uid types.TaskID, indexUID string) *types.Task {
	idx := indexUID
	return &types.Task{UID: uid, Kind: types.KindIndexDeletion, Content: &types.IndexDeletion{IndexUID: indexUID}, IndexUID: &idx}
}

func cancellationTask(uid types.TaskID) *types.Task {
	return &types.Task{UID: uid, Kind: types.KindTaskCancellation, Content: &types.TaskCancellation{}}
}

func deletionTask(uid types.TaskID) *types.Task {
	return &types.Task{UID: uid, Kind: types.KindTaskDeletion, Content: &types.TaskDeletion{}}
}

func TestFirstTaskAlwaysBegins(t *testing.T) {
	b := &Batch{}
	action, _ := Decide(b, docTask(1, "movies", nil, true), 0, IndexState{}, Limits{})
	assert.Equal(t, Begin, action)
}

func TestDocumentOpsMixFreelyOnSameIndex(t *testing.T) {
	b := &Batch{}
	Apply(b, docTask(1, "movies", nil, true), 100)

	action, _ := Decide(b, clearTask(2, "movies"), 0, IndexState{Exists: true}, Limits{})
	assert.Equal(t, Extend, action)
}

func TestDifferentIndexFinalizes(t *testing.T) {
	b := &Batch{}
	Apply(b, docTask(1, "movies", nil, true), 100)

	action, reason := Decide(b, docTask(2, "books", nil, true), 0, IndexState{Exists: true}, Limits{})
	assert.Equal(t, Finalize, action)
	assert.Equal(t, types.StopExhaustedEnqueuedTasksForIndex, reason.StopKind())
}

func TestGlobalKindBatchesAlone(t *testing.T) {
	b := &Batch{}
	Apply(b, cancellationTask(1), 0)

	action, reason := Decide(b, deletionTask(2), 0, IndexState{}, Limits{})
	assert.Equal(t, Finalize, action)
	assert.Equal(t, types.StopTaskKindCannotBeBatched, reason.StopKind())
}

func TestGlobalAndPerIndexNeverMix(t *testing.T) {
	b := &Batch{}
	Apply(b, docTask(1, "movies", nil, true), 0)

	action, reason := Decide(b, cancellationTask(2), 0, IndexState{Exists: true}, Limits{})
	assert.Equal(t, Finalize, action)
	assert.Equal(t, types.StopTaskKindCannotBeBatched, reason.StopKind())
}

func TestPrimaryKeyMismatchAgainstBatch(t *testing.T) {
	b := &Batch{}
	Apply(b, docTask(1, "movies", strPtr("id"), true), 0)

	action, reason := Decide(b, docTask(2, "movies", strPtr("uuid"), true), 0, IndexState{Exists: true}, Limits{})
	assert.Equal(t, Finalize, action)
	assert.Equal(t, types.StopPrimaryKeyMismatch, reason.StopKind())
}

func TestPrimaryKeyMismatchAgainstIndex(t *testing.T) {
	b := &Batch{}
	Apply(b, docTask(1, "movies", nil, true), 0)

	idx := IndexState{Exists: true, PrimaryKey: strPtr("id")}
	action, reason := Decide(b, docTask(2, "movies", strPtr("uuid"), true), 0, idx, Limits{})
	assert.Equal(t, Finalize, action)
	assert.Equal(t, types.StopPrimaryKeyMismatch, reason.StopKind())
}

func TestTaskWithoutPrimaryKeyInheritsBatchKey(t *testing.T) {
	b := &Batch{}
	Apply(b, docTask(1, "movies", strPtr("id"), true), 0)

	action, _ := Decide(b, docTask(2, "movies", nil, true), 0, IndexState{Exists: true}, Limits{})
	assert.Equal(t, Extend, action)
}

func TestIndexCreationNotAllowedAndIndexMissingRejects(t *testing.T) {
	b := &Batch{}
	action, reason := Decide(b, docTask(1, "movies", nil, false), 0, IndexState{Exists: false}, Limits{})
	// First task always begins regardless of creation permission; the
	// mismatch only blocks a *second* task from joining.
	assert.Equal(t, Begin, action)
	assert.Equal(t, types.StopUnspecified, reason.StopKind())

	Apply(b, docTask(1, "movies", nil, false), 0)
	action, reason = Decide(b, docTask(2, "movies", nil, false), 0, IndexState{Exists: false}, Limits{})
	assert.Equal(t, RejectAndFinalize, action)
	assert.Equal(t, types.StopIndexCreationMismatch, reason.StopKind())
}

func TestIndexCreationAllowedByEarlierTaskLetsOthersJoin(t *testing.T) {
	b := &Batch{}
	Apply(b, docTask(1, "movies", nil, true), 0)

	action, _ := Decide(b, docTask(2, "movies", nil, false), 0, IndexState{Exists: false}, Limits{})
	assert.Equal(t, Extend, action)
}

func TestReachedTaskLimit(t *testing.T) {
	b := &Batch{}
	Apply(b, docTask(1, "movies", nil, true), 0)

	action, reason := Decide(b, docTask(2, "movies", nil, true), 0, IndexState{Exists: true}, Limits{MaxTasks: 1})
	assert.Equal(t, Finalize, action)
	assert.Equal(t, types.StopReachedTaskLimit, reason.StopKind())
}

func TestReachedSizeLimit(t *testing.T) {
	b := &Batch{}
	Apply(b, docTask(1, "movies", nil, true), 900)

	action, reason := Decide(b, docTask(2, "movies", nil, true), 200, IndexState{Exists: true}, Limits{MaxSizeBytes: 1000})
	assert.Equal(t, Finalize, action)
	assert.Equal(t, types.StopReachedSizeLimit, reason.StopKind())
}

func TestSettingsExclusiveOfDocumentOps(t *testing.T) {
	b := &Batch{}
	Apply(b, docTask(1, "movies", nil, true), 0)

	action, reason := Decide(b, settingsTask(2, "movies"), 0, IndexState{Exists: true}, Limits{})
	assert.Equal(t, Finalize, action)
	assert.Equal(t, types.StopDocumentOperationWithSettings, reason.StopKind())
}

func TestDocumentOpsExclusiveOfSettings(t *testing.T) {
	b := &Batch{}
	Apply(b, settingsTask(1, "movies"), 0)

	action, reason := Decide(b, docTask(2, "movies", nil, true), 0, IndexState{Exists: true}, Limits{})
	assert.Equal(t, Finalize, action)
	assert.Equal(t, types.StopSettingsWithDocumentOperation, reason.StopKind())
}

func TestDeletionByFilterExclusiveOfDocumentOps(t *testing.T) {
	b := &Batch{}
	Apply(b, docTask(1, "movies", nil, true), 0)

	action, reason := Decide(b, filterDeleteTask(2, "movies"), 0, IndexState{Exists: true}, Limits{})
	assert.Equal(t, Finalize, action)
	assert.Equal(t, types.StopDocumentOperationWithDeletionByFilter, reason.StopKind())
}

func TestDocumentOpsExclusiveOfDeletionByFilter(t *testing.T) {
	b := &Batch{}
	Apply(b, filterDeleteTask(1, "movies"), 0)

	action, reason := Decide(b, docTask(2, "movies", nil, true), 0, IndexState{Exists: true}, Limits{})
	assert.Equal(t, Finalize, action)
	assert.Equal(t, types.StopDeletionByFilterWithDocumentOperation, reason.StopKind())
}

func TestIndexDeletionTerminatesAndRunsAlone(t *testing.T) {
	b := &Batch{}
	Apply(b, indexDeletionTask(1, "movies"), 0)

	action, reason := Decide(b, docTask(2, "movies", nil, true), 0, IndexState{Exists: true}, Limits{})
	assert.Equal(t, Finalize, action)
	assert.Equal(t, types.StopIndexDeletion, reason.StopKind())
}

func TestIndexDeletionFollowingTaskFinalizes(t *testing.T) {
	b := &Batch{}
	Apply(b, docTask(1, "movies", nil, true), 0)

	action, reason := Decide(b, indexDeletionTask(2, "movies"), 0, IndexState{Exists: true}, Limits{})
	assert.Equal(t, Finalize, action)
	assert.Equal(t, types.StopIndexDeletion, reason.StopKind())
}

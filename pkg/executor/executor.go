// Package executor implements the kind-specific batch handlers dispatched
// by the run loop's tick() (spec.md §4.6). Each handler receives the
// batch's member tasks (already narrowed to one kind-compatible group by
// the autobatcher) and applies them to the target index inside a single
// write transaction, or performs a global operation against the task
// store / index mapper directly.
package executor

import (
	"encoding/json"
	"os"

	"github.com/cuemby/stratum/pkg/config"
	"github.com/cuemby/stratum/pkg/engine"
	stratumerrors "github.com/cuemby/stratum/pkg/errors"
	"github.com/cuemby/stratum/pkg/indexmapper"
	"github.com/cuemby/stratum/pkg/log"
	"github.com/cuemby/stratum/pkg/processing"
	"github.com/cuemby/stratum/pkg/storage"
	"github.com/cuemby/stratum/pkg/types"
	"github.com/cuemby/stratum/pkg/versioning"
	"github.com/rs/zerolog"
)

// Executor dispatches a batch of same-kind-category tasks to the correct
// handler (spec.md §2 "Batch executor").
type Executor struct {
	store        storage.Store
	mapper       *indexmapper.Mapper
	engine       *engine.Engine
	processing   *processing.Set
	versionStore *versioning.Store
	opts         config.Options
	logger       zerolog.Logger
}

// New returns an Executor wired to the given collaborators. versionStore
// may be nil if upgrade-database tasks are never expected (e.g. tests).
func New(store storage.Store, mapper *indexmapper.Mapper, eng *engine.Engine, proc *processing.Set, opts config.Options, versionStore *versioning.Store) *Executor {
	return &Executor{
		store:        store,
		mapper:       mapper,
		engine:       eng,
		processing:   proc,
		versionStore: versionStore,
		opts:         opts,
		logger:       log.WithComponent("executor"),
	}
}

// ErrAborted is returned by a handler when must_stop was raised mid-batch;
// the caller rolls back the index transaction and marks the involved
// tasks canceled rather than committing partial work.
var ErrAborted = stratumerrors.Internal("batch aborted: must_stop raised", nil)

// Execute dispatches tasks (all belonging to the same batch) to the
// handler matching their kind. indexName is empty for global batches.
func (e *Executor) Execute(indexName string, tasks []*types.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	kind := tasks[0].Kind

	switch {
	case kind == types.KindTaskCancellation:
		return e.handleTaskCancellation(tasks)
	case kind == types.KindTaskDeletion:
		return e.handleTaskDeletion(tasks)
	case kind == types.KindDumpCreation:
		return e.handleDumpCreation(tasks)
	case kind == types.KindSnapshotCreation:
		return e.handleSnapshotCreation(tasks)
	case kind == types.KindUpgradeDatabase:
		return e.handleUpgradeDatabase(tasks)
	case kind == types.KindIndexSwap:
		return e.handleIndexSwap(tasks)
	case kind == types.KindIndexCreation:
		return e.handleIndexCreation(indexName, tasks)
	case kind == types.KindIndexUpdate:
		return e.handleIndexUpdate(indexName, tasks)
	case kind == types.KindIndexDeletion:
		return e.handleIndexDeletion(indexName, tasks)
	case kind == types.KindIndexCompaction:
		return e.handleIndexCompaction(indexName, tasks)
	case kind == types.KindSettingsUpdate:
		return e.handleSettingsUpdate(indexName, tasks)
	case kind.IsDocumentOp():
		return e.handleDocumentOps(indexName, tasks)
	default:
		return stratumerrors.Internal("unhandled task kind: "+string(kind), nil)
	}
}

func readContentFile(path string) ([]map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var docs []map[string]interface{}
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

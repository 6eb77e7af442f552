package types

// Kind tags the operation a task performs. The wire representation is the
// camelCase string in parentheses below; it doubles as the JSON value of a
// task's "type" field.
type Kind string

const (
	KindDocumentAdditionOrUpdate Kind = "documentAdditionOrUpdate"
	KindDocumentDeletion         Kind = "documentDeletion"
	KindDocumentDeletionByFilter Kind = "documentDeletionByFilter"
	KindDocumentClear            Kind = "documentClear"
	KindSettingsUpdate           Kind = "settingsUpdate"
	KindIndexCreation            Kind = "indexCreation"
	KindIndexUpdate              Kind = "indexUpdate"
	KindIndexDeletion            Kind = "indexDeletion"
	KindIndexSwap                Kind = "indexSwap"
	KindTaskCancellation         Kind = "taskCancelation"
	KindTaskDeletion             Kind = "taskDeletion"
	KindDumpCreation             Kind = "dumpCreation"
	KindSnapshotCreation         Kind = "snapshotCreation"
	KindUpgradeDatabase          Kind = "upgradeDatabase"
	KindIndexCompaction          Kind = "indexCompaction"
)

// IsDocumentOp reports whether tasks of this kind may batch together as
// document operations (autobatcher rule 2, spec.md §4.4).
func (k Kind) IsDocumentOp() bool {
	switch k {
	case KindDocumentAdditionOrUpdate, KindDocumentDeletion, KindDocumentDeletionByFilter, KindDocumentClear:
		return true
	default:
		return false
	}
}

// Content is implemented by every kind-specific payload a task carries.
// Only Content, not Details, is persisted verbatim inside the task row;
// Details is the post-execution summary derived from it.
type Content interface {
	Kind() Kind
	// IndexUIDs returns the index name(s) this content touches, in the
	// order they should be locked/opened. Global kinds return nil.
	IndexUIDs() []string
}

// IndexMethod is the merge strategy for a document-addition task.
type IndexMethod string

const (
	MethodReplace IndexMethod = "ReplaceDocuments"
	MethodUpdate  IndexMethod = "UpdateDocuments"
)

// DocumentAdditionOrUpdate stages a content-file of documents for indexing.
type DocumentAdditionOrUpdate struct {
	IndexUID           string      `json:"indexUid"`
	PrimaryKey         *string     `json:"primaryKey,omitempty"`
	Method             IndexMethod `json:"method"`
	ContentFile        string      `json:"contentFile"`
	DocumentsCount     int64       `json:"documentsCount"`
	AllowIndexCreation bool        `json:"allowIndexCreation"`
}

func (c *DocumentAdditionOrUpdate) Kind() Kind          { return KindDocumentAdditionOrUpdate }
func (c *DocumentAdditionOrUpdate) IndexUIDs() []string { return []string{c.IndexUID} }

// DocumentDeletion removes a fixed set of document ids.
type DocumentDeletion struct {
	IndexUID    string   `json:"indexUid"`
	DocumentIDs []string `json:"documentIds"`
}

func (c *DocumentDeletion) Kind() Kind          { return KindDocumentDeletion }
func (c *DocumentDeletion) IndexUIDs() []string { return []string{c.IndexUID} }

// DocumentDeletionByFilter removes documents matching a filter expression.
type DocumentDeletionByFilter struct {
	IndexUID string `json:"indexUid"`
	Filter   string `json:"filter"`
}

func (c *DocumentDeletionByFilter) Kind() Kind          { return KindDocumentDeletionByFilter }
func (c *DocumentDeletionByFilter) IndexUIDs() []string { return []string{c.IndexUID} }

// DocumentClear removes every document from an index.
type DocumentClear struct {
	IndexUID string `json:"indexUid"`
}

func (c *DocumentClear) Kind() Kind          { return KindDocumentClear }
func (c *DocumentClear) IndexUIDs() []string { return []string{c.IndexUID} }

// SettingsUpdate applies a partial settings patch to an index.
type SettingsUpdate struct {
	IndexUID           string         `json:"indexUid"`
	NewSettings        map[string]any `json:"newSettings"`
	IsDeletion         bool           `json:"isDeletion"`
	AllowIndexCreation bool           `json:"allowIndexCreation"`
}

func (c *SettingsUpdate) Kind() Kind          { return KindSettingsUpdate }
func (c *SettingsUpdate) IndexUIDs() []string { return []string{c.IndexUID} }

// IndexCreation creates a new, empty index.
type IndexCreation struct {
	IndexUID   string  `json:"indexUid"`
	PrimaryKey *string `json:"primaryKey,omitempty"`
}

func (c *IndexCreation) Kind() Kind          { return KindIndexCreation }
func (c *IndexCreation) IndexUIDs() []string { return []string{c.IndexUID} }

// IndexUpdate changes an index's primary key. It does not rename the
// index; renames go through IndexSwap.
type IndexUpdate struct {
	IndexUID   string  `json:"indexUid"`
	PrimaryKey *string `json:"primaryKey,omitempty"`
}

func (c *IndexUpdate) Kind() Kind          { return KindIndexUpdate }
func (c *IndexUpdate) IndexUIDs() []string { return []string{c.IndexUID} }

// IndexDeletion removes an index and schedules its files for cleanup.
type IndexDeletion struct {
	IndexUID string `json:"indexUid"`
}

func (c *IndexDeletion) Kind() Kind          { return KindIndexDeletion }
func (c *IndexDeletion) IndexUIDs() []string { return []string{c.IndexUID} }

// SwapPair names two indexes to exchange, optionally the rename variant
// where only the second side need pre-exist.
type SwapPair struct {
	Indexes [2]string `json:"indexes"`
	Rename  bool      `json:"rename"`
}

// IndexSwap exchanges one or more pairs of indexes transactionally. It is a
// global kind: it batches alone (spec.md §4.4 rule 1).
type IndexSwap struct {
	Swaps []SwapPair `json:"swaps"`
}

func (c *IndexSwap) Kind() Kind { return KindIndexSwap }
func (c *IndexSwap) IndexUIDs() []string {
	var uids []string
	for _, s := range c.Swaps {
		uids = append(uids, s.Indexes[0], s.Indexes[1])
	}
	return uids
}

// CancellationQuery is the filter a task-cancellation task was registered
// with, kept for display purposes alongside the resolved Tasks bitmap.
type CancellationQuery struct {
	Raw string `json:"originalFilter"`
}

// TaskCancellation cancels every task matching Tasks that is still
// enqueued or processing. Global kind.
type TaskCancellation struct {
	Query CancellationQuery `json:"query"`
	Tasks []TaskID          `json:"tasks"`
}

func (c *TaskCancellation) Kind() Kind          { return KindTaskCancellation }
func (c *TaskCancellation) IndexUIDs() []string { return nil }

// TaskDeletion removes finished tasks matching Tasks. Global kind.
type TaskDeletion struct {
	Query CancellationQuery `json:"query"`
	Tasks []TaskID          `json:"tasks"`
}

func (c *TaskDeletion) Kind() Kind          { return KindTaskDeletion }
func (c *TaskDeletion) IndexUIDs() []string { return nil }

// DumpCreation serializes the whole queue and every index into a versioned
// archive. Global kind.
type DumpCreation struct {
	Keys        []map[string]any `json:"keys"`
	InstanceUID *string          `json:"instanceUid,omitempty"`
}

func (c *DumpCreation) Kind() Kind          { return KindDumpCreation }
func (c *DumpCreation) IndexUIDs() []string { return nil }

// SnapshotCreation copies the database directory to the snapshots path.
// Global kind.
type SnapshotCreation struct{}

func (c *SnapshotCreation) Kind() Kind          { return KindSnapshotCreation }
func (c *SnapshotCreation) IndexUIDs() []string { return nil }

// UpgradeDatabase runs schema migrations from From to the running version.
// Global kind; must run before any other task after a version bump.
type UpgradeDatabase struct {
	From [3]uint32 `json:"from"`
}

func (c *UpgradeDatabase) Kind() Kind          { return KindUpgradeDatabase }
func (c *UpgradeDatabase) IndexUIDs() []string { return nil }

// IndexCompaction asks the engine to compact a single index's on-disk
// storage; the bbolt engine only syncs the file and reclaims no space.
type IndexCompaction struct {
	IndexUID string `json:"indexUid"`
}

func (c *IndexCompaction) Kind() Kind          { return KindIndexCompaction }
func (c *IndexCompaction) IndexUIDs() []string { return []string{c.IndexUID} }

package types

// Details is the kind-specific structured summary attached to a task. It is
// updated pre-execution with provisional counts and finalized post-execution
// (spec.md §3). Unlike Content, a single flat struct covers every kind —
// only the fields relevant to the task's kind are populated on the wire.
type Details struct {
	// Document operations.
	ReceivedDocuments *int64  `json:"receivedDocuments,omitempty"`
	IndexedDocuments  *int64  `json:"indexedDocuments,omitempty"`
	DeletedDocuments  *int64  `json:"deletedDocuments,omitempty"`
	ProvidedIDs       *int64  `json:"providedIds,omitempty"`
	OriginalFilter    *string `json:"originalFilter,omitempty"`

	// Settings.
	Settings map[string]any `json:"settings,omitempty"`

	// Index create/update/delete.
	PrimaryKey  *string `json:"primaryKey,omitempty"`
	NewIndexUID *string `json:"newIndexUid,omitempty"`
	OldIndexUID *string `json:"oldIndexUid,omitempty"`

	// Index swap.
	Swaps []SwapPair `json:"swaps,omitempty"`

	// Task cancellation / deletion.
	MatchedTasks  *int64 `json:"matchedTasks,omitempty"`
	CanceledTasks *int64 `json:"canceledTasks,omitempty"`
	DeletedTasks  *int64 `json:"deletedTasks,omitempty"`

	// Dump creation.
	DumpUID *string `json:"dumpUid,omitempty"`

	// Database upgrade.
	UpgradeFrom *[3]uint32 `json:"upgradeFrom,omitempty"`
	UpgradeTo   *[3]uint32 `json:"upgradeTo,omitempty"`

	// Index compaction.
	PreCompactionSize  *int64 `json:"preCompactionSize,omitempty"`
	PostCompactionSize *int64 `json:"postCompactionSize,omitempty"`
}

// ToFailed zeroes out counters that describe in-progress work, keeping only
// the fields that still make sense once a task has failed (e.g. the filter
// or primary key it was attempted with). Mirrors the behavior expected at
// the batch executor's commit step when a task ends in status failed.
func (d *Details) ToFailed() *Details {
	if d == nil {
		return nil
	}
	failed := *d
	zero := int64(0)
	if failed.IndexedDocuments != nil {
		failed.IndexedDocuments = &zero
	}
	if failed.DeletedDocuments != nil {
		failed.DeletedDocuments = &zero
	}
	if failed.CanceledTasks != nil {
		failed.CanceledTasks = &zero
	}
	if failed.DeletedTasks != nil {
		failed.DeletedTasks = &zero
	}
	return &failed
}

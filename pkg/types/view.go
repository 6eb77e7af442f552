package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// taskWire is the on-disk/storage envelope for a Task: the concrete Content
// is stashed as a raw message keyed by kind so it can be decoded back into
// the right concrete struct.
type taskWire struct {
	UID            TaskID          `json:"uid"`
	BatchUID       *BatchID        `json:"batchUid,omitempty"`
	IndexUID       *string         `json:"indexUid,omitempty"`
	Status         Status          `json:"status"`
	Kind           Kind            `json:"type"`
	Content        json.RawMessage `json:"content"`
	Details        *Details        `json:"details,omitempty"`
	Error          *ResponseError  `json:"error,omitempty"`
	CanceledBy     *TaskID         `json:"canceledBy,omitempty"`
	EnqueuedAt     time.Time       `json:"enqueuedAt"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	FinishedAt     *time.Time      `json:"finishedAt,omitempty"`
	CustomMetadata *string         `json:"customMetadata,omitempty"`
	Network        *string         `json:"network,omitempty"`
}

// MarshalJSON flattens Content's concrete fields alongside the rest of the
// task for storage. This is the format the task store persists, not the
// public HTTP wire format (see View).
func (t *Task) MarshalJSON() ([]byte, error) {
	var raw json.RawMessage
	var err error
	if t.Content != nil {
		raw, err = json.Marshal(t.Content)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(taskWire{
		UID: t.UID, BatchUID: t.BatchUID, IndexUID: t.IndexUID, Status: t.Status, Kind: t.Kind,
		Content: raw, Details: t.Details, Error: t.Error, CanceledBy: t.CanceledBy,
		EnqueuedAt: t.EnqueuedAt, StartedAt: t.StartedAt, FinishedAt: t.FinishedAt,
		CustomMetadata: t.CustomMetadata, Network: t.Network,
	})
}

// UnmarshalJSON restores a Task, decoding Content into the concrete struct
// matching its persisted Kind.
func (t *Task) UnmarshalJSON(data []byte) error {
	var w taskWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t.UID, t.BatchUID, t.IndexUID = w.UID, w.BatchUID, w.IndexUID
	t.Status, t.Kind = w.Status, w.Kind
	t.Details, t.Error, t.CanceledBy = w.Details, w.Error, w.CanceledBy
	t.EnqueuedAt, t.StartedAt, t.FinishedAt = w.EnqueuedAt, w.StartedAt, w.FinishedAt
	t.CustomMetadata, t.Network = w.CustomMetadata, w.Network

	if len(w.Content) == 0 {
		return nil
	}
	content, err := decodeContent(w.Kind, w.Content)
	if err != nil {
		return fmt.Errorf("task %d: %w", t.UID, err)
	}
	t.Content = content
	return nil
}

// DecodeContent decodes a task-register request body into the concrete
// Content struct for kind. Used by the API layer to turn a wire request into
// the Content a Task is registered with; the storage envelope uses the
// unexported decodeContent below instead.
func DecodeContent(kind Kind, raw json.RawMessage) (Content, error) {
	return decodeContent(kind, raw)
}

func decodeContent(kind Kind, raw json.RawMessage) (Content, error) {
	var c Content
	switch kind {
	case KindDocumentAdditionOrUpdate:
		c = &DocumentAdditionOrUpdate{}
	case KindDocumentDeletion:
		c = &DocumentDeletion{}
	case KindDocumentDeletionByFilter:
		c = &DocumentDeletionByFilter{}
	case KindDocumentClear:
		c = &DocumentClear{}
	case KindSettingsUpdate:
		c = &SettingsUpdate{}
	case KindIndexCreation:
		c = &IndexCreation{}
	case KindIndexUpdate:
		c = &IndexUpdate{}
	case KindIndexDeletion:
		c = &IndexDeletion{}
	case KindIndexSwap:
		c = &IndexSwap{}
	case KindTaskCancellation:
		c = &TaskCancellation{}
	case KindTaskDeletion:
		c = &TaskDeletion{}
	case KindDumpCreation:
		c = &DumpCreation{}
	case KindSnapshotCreation:
		c = &SnapshotCreation{}
	case KindUpgradeDatabase:
		c = &UpgradeDatabase{}
	case KindIndexCompaction:
		c = &IndexCompaction{}
	default:
		return nil, fmt.Errorf("unknown task kind %q", kind)
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, err
	}
	return c, nil
}

// View is the public HTTP/webhook representation of a Task (spec.md §6),
// distinct from the storage envelope: it drops Content entirely and adds
// the derived ISO-8601 Duration field.
type View struct {
	UID        TaskID         `json:"uid"`
	BatchUID   *BatchID       `json:"batchUid,omitempty"`
	IndexUID   *string        `json:"indexUid,omitempty"`
	Status     Status         `json:"status"`
	Kind       Kind           `json:"type"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
	StartedAt  *time.Time     `json:"startedAt,omitempty"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
	Duration   *string        `json:"duration,omitempty"`
	Details    *Details       `json:"details,omitempty"`
	Error      *ResponseError `json:"error,omitempty"`
	CanceledBy *TaskID        `json:"canceledBy,omitempty"`
}

// View renders a Task into its public wire representation.
func (t *Task) View() View {
	v := View{
		UID: t.UID, BatchUID: t.BatchUID, IndexUID: t.IndexUID, Status: t.Status, Kind: t.Kind,
		EnqueuedAt: t.EnqueuedAt, StartedAt: t.StartedAt, FinishedAt: t.FinishedAt,
		Details: t.Details, Error: t.Error, CanceledBy: t.CanceledBy,
	}
	if d := t.Duration(); d != nil {
		s := FormatDuration(*d)
		v.Duration = &s
	}
	return v
}

// FormatDuration renders d as an ISO-8601 duration of the form
// "PT{seconds}.{nanos}S", matching the wire format used by task views.
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	nanos := int64(d % time.Second)
	return fmt.Sprintf("PT%d.%09dS", secs, nanos)
}

// RegisterResponse is returned synchronously from register (spec.md §6).
type RegisterResponse struct {
	TaskUID    TaskID    `json:"taskUid"`
	IndexUID   *string   `json:"indexUid,omitempty"`
	Status     Status    `json:"status"`
	Kind       Kind      `json:"type"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

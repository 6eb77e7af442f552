package engine

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"sync"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketDocuments = []byte("documents")
	bucketSettings  = []byte("settings")
	bucketMeta      = []byte("meta")

	metaKeyPrimaryKey   = []byte("primary_key")
	metaKeySettingsBlob = []byte("blob")
)

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// boltIndex is the reference Index implementation: one bbolt file per
// index uuid, documents stored as raw JSON keyed by their primary-key
// value, settings as a single JSON blob.
type boltIndex struct {
	uid string
	db  *bolt.DB

	mu sync.RWMutex
	pk string
}

func (idx *boltIndex) UID() string { return idx.uid }

func (idx *boltIndex) Update(fn func(*bolt.Tx) error) error {
	return idx.db.Update(fn)
}

func (idx *boltIndex) View(fn func(*bolt.Tx) error) error {
	return idx.db.View(fn)
}

func (idx *boltIndex) PrimaryKey() (string, bool) {
	idx.mu.RLock()
	if idx.pk != "" {
		defer idx.mu.RUnlock()
		return idx.pk, true
	}
	idx.mu.RUnlock()

	var pk string
	_ = idx.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(metaKeyPrimaryKey); v != nil {
			pk = string(v)
		}
		return nil
	})
	if pk == "" {
		return "", false
	}
	idx.mu.Lock()
	idx.pk = pk
	idx.mu.Unlock()
	return pk, true
}

func (idx *boltIndex) SetPrimaryKey(pk string) error {
	if existing, ok := idx.PrimaryKey(); ok && existing != pk {
		return &PrimaryKeyError{Existing: existing, Requested: pk}
	}
	if err := idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(metaKeyPrimaryKey, []byte(pk))
	}); err != nil {
		return err
	}
	idx.mu.Lock()
	idx.pk = pk
	idx.mu.Unlock()
	return nil
}

func (idx *boltIndex) Stats() (Stats, error) {
	var st Stats
	st.FieldDistribution = make(map[string]uint64)
	err := idx.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		return b.ForEach(func(k, v []byte) error {
			st.NumberOfDocuments++
			var doc map[string]json.RawMessage
			if json.Unmarshal(v, &doc) == nil {
				for field := range doc {
					st.FieldDistribution[field]++
				}
			}
			return nil
		})
	})
	return st, err
}

func (idx *boltIndex) AddOrUpdateDocuments(docs []map[string]interface{}, pk string) (int, error) {
	var n int
	err := idx.db.Update(func(tx *bolt.Tx) error {
		var err error
		n, err = ApplyAddOrUpdateTx(tx, docs, pk)
		return err
	})
	if err != nil {
		return 0, err
	}
	if err := idx.SetPrimaryKey(pk); err != nil {
		return n, err
	}
	return n, nil
}

func (idx *boltIndex) DeleteDocuments(ids []string) (int, error) {
	var n int
	err := idx.db.Update(func(tx *bolt.Tx) error {
		var err error
		n, err = ApplyDeleteTx(tx, ids)
		return err
	})
	return n, err
}

func (idx *boltIndex) DeleteDocumentsByFilter(filter string) (int, error) {
	var n int
	err := idx.db.Update(func(tx *bolt.Tx) error {
		var err error
		n, err = ApplyDeleteByFilterTx(tx, filter)
		return err
	})
	return n, err
}

func (idx *boltIndex) ClearDocuments() (int, error) {
	var n int
	err := idx.db.Update(func(tx *bolt.Tx) error {
		var err error
		n, err = ApplyClearTx(tx)
		return err
	})
	return n, err
}

// ApplyAddOrUpdateTx upserts docs keyed by pk inside an already-open write
// transaction. Exposed so the executor can coalesce a whole batch's worth
// of document operations into one index transaction (spec.md §4.6 step 3)
// instead of one transaction per task.
func ApplyAddOrUpdateTx(tx *bolt.Tx, docs []map[string]interface{}, pk string) (int, error) {
	b := tx.Bucket(bucketDocuments)
	n := 0
	for _, doc := range docs {
		raw, ok := doc[pk]
		if !ok {
			return n, &PrimaryKeyError{Reason: "document missing primary key field " + pk}
		}
		key, err := json.Marshal(raw)
		if err != nil {
			return n, err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return n, err
		}
		if err := b.Put(key, data); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ApplyDeleteTx removes documents by primary-key value inside tx.
func ApplyDeleteTx(tx *bolt.Tx, ids []string) (int, error) {
	b := tx.Bucket(bucketDocuments)
	n := 0
	for _, id := range ids {
		key, err := json.Marshal(id)
		if err != nil {
			return n, err
		}
		if b.Get(key) == nil {
			continue
		}
		if err := b.Delete(key); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ApplyDeleteByFilterTx removes documents matching filter inside tx.
func ApplyDeleteByFilterTx(tx *bolt.Tx, filter string) (int, error) {
	field, value, negate, err := parseEqualityFilter(filter)
	if err != nil {
		return 0, err
	}
	b := tx.Bucket(bucketDocuments)
	c := b.Cursor()
	var toDelete [][]byte
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var doc map[string]interface{}
		if json.Unmarshal(v, &doc) != nil {
			continue
		}
		matches := matchesEquality(doc, field, value)
		if matches != negate {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
	}
	n := 0
	for _, k := range toDelete {
		if err := b.Delete(k); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ApplyClearTx removes every document inside tx, returning how many were
// removed.
func ApplyClearTx(tx *bolt.Tx) (int, error) {
	old := tx.Bucket(bucketDocuments)
	n := old.Stats().KeyN
	if err := tx.DeleteBucket(bucketDocuments); err != nil {
		return 0, err
	}
	if _, err := tx.CreateBucket(bucketDocuments); err != nil {
		return 0, err
	}
	return n, nil
}

// PrimaryKeyTx reads the index's primary key inside an already-open
// transaction, and SetPrimaryKeyTx sets it, for callers that already hold
// a transaction via Index.Update.
func PrimaryKeyTx(tx *bolt.Tx) (string, bool) {
	v := tx.Bucket(bucketMeta).Get(metaKeyPrimaryKey)
	if v == nil {
		return "", false
	}
	return string(v), true
}

func SetPrimaryKeyTx(tx *bolt.Tx, pk string) error {
	return tx.Bucket(bucketMeta).Put(metaKeyPrimaryKey, []byte(pk))
}

// SnapshotTx reads every document (newline-delimited JSON) and the settings
// blob inside an already-open read transaction, for the dump archiver
// (spec.md §4.6 "Dump creation").
func SnapshotTx(tx *bolt.Tx) (docsJSONL []byte, settingsJSON []byte, err error) {
	var buf bytes.Buffer
	c := tx.Bucket(bucketDocuments).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		buf.Write(v)
		buf.WriteByte('\n')
	}
	settings, err := SettingsTx(tx)
	if err != nil {
		return nil, nil, err
	}
	settingsJSON, err = json.Marshal(settings)
	if err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), settingsJSON, nil
}

// SettingsTx reads the index's merged settings blob inside an already-open
// transaction.
func SettingsTx(tx *bolt.Tx) (map[string]any, error) {
	settings := map[string]any{}
	if raw := tx.Bucket(bucketSettings).Get(metaKeySettingsBlob); raw != nil {
		if err := json.Unmarshal(raw, &settings); err != nil {
			return nil, err
		}
	}
	return settings, nil
}

// ApplySettingsTx overwrites the index's settings blob inside tx.
func ApplySettingsTx(tx *bolt.Tx, settings map[string]any) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketSettings).Put(metaKeySettingsBlob, data)
}

func (idx *boltIndex) Compact() error {
	return idx.db.Sync()
}

func (idx *boltIndex) Close() error {
	return idx.db.Close()
}

// PrimaryKeyError reports that a document's primary key conflicts with the
// index's existing one, or that no primary key could be inferred.
type PrimaryKeyError struct {
	Existing  string
	Requested string
	Reason    string
}

func (e *PrimaryKeyError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "primary key mismatch: index uses " + e.Existing + ", got " + e.Requested
}

// parseEqualityFilter accepts "field = value", "field != value", and a
// bare "field" (matches any document where the field is present).
func parseEqualityFilter(filter string) (field, value string, negate bool, err error) {
	filter = strings.TrimSpace(filter)
	if idx := strings.Index(filter, "!="); idx >= 0 {
		return strings.TrimSpace(filter[:idx]), strings.Trim(strings.TrimSpace(filter[idx+2:]), `"'`), true, nil
	}
	if idx := strings.Index(filter, "="); idx >= 0 {
		return strings.TrimSpace(filter[:idx]), strings.Trim(strings.TrimSpace(filter[idx+1:]), `"'`), false, nil
	}
	return strings.TrimSpace(filter), "", false, nil
}

func matchesEquality(doc map[string]interface{}, field, value string) bool {
	v, ok := doc[field]
	if !ok {
		return false
	}
	if value == "" {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == value
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return false
		}
		return strings.Trim(string(data), `"`) == value
	}
}

// InferPrimaryKey derives a primary key from the first document's fields
// when none was specified, using the engine's own heuristic: a top-level
// field named "id" (case-insensitive) is preferred, otherwise a field whose
// name ends in "_id". Fields are visited in map order, so which field is
// picked when several match is not defined.
func InferPrimaryKey(doc map[string]interface{}) (string, bool) {
	for field := range doc {
		if strings.EqualFold(field, "id") {
			return field, true
		}
	}
	for field := range doc {
		if strings.HasSuffix(strings.ToLower(field), "_id") {
			return field, true
		}
	}
	return "", false
}

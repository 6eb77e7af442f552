// Package engine is the scheduler's view of the embedded search-index
// engine: a black box exposing a write-transaction and a read-only handle
// per index. Query-side execution, ranking, tokenization, and the on-disk
// payload format are out of scope (spec.md §1 Non-goals); this package only
// needs to let the executor apply document and settings writes atomically
// and read back enough state to answer Stats().
package engine

import (
	"fmt"
	"os"

	bolt "go.etcd.io/bbolt"
)

// Stats is the subset of per-index state the scheduler needs: enough to
// populate task Details and the index entry's stats snapshot (spec.md §3).
type Stats struct {
	NumberOfDocuments uint64
	IsIndexing        bool
	FieldDistribution map[string]uint64
}

// Index is one open handle onto a single index's storage. The scheduler
// talks to an index exclusively through this interface; everything else
// about how documents are laid out, tokenized, or ranked is the engine's
// business alone.
type Index interface {
	// UID is the index's stable identifier, independent of its current
	// name (an index can be renamed via IndexSwap without UID changing).
	UID() string

	// Update opens a write transaction and runs fn inside it. The
	// transaction commits iff fn returns nil.
	Update(fn func(*bolt.Tx) error) error

	// View opens a read-only transaction and runs fn inside it.
	View(fn func(*bolt.Tx) error) error

	// PrimaryKey returns the index's current primary key, if one has been
	// set (an index has no primary key until an index creation or index
	// update names one, or its first successful document addition sets
	// one).
	PrimaryKey() (string, bool)

	// SetPrimaryKey fixes the index's primary key. Returns an error if
	// one is already set to a different value.
	SetPrimaryKey(pk string) error

	// Stats reports the index's current document count and field
	// distribution, read under a fresh read transaction.
	Stats() (Stats, error)

	// AddOrUpdateDocuments upserts docs keyed by pk (inferred beforehand
	// by the caller if the batch didn't specify one). Returns the number
	// of documents written.
	AddOrUpdateDocuments(docs []map[string]interface{}, pk string) (int, error)

	// DeleteDocuments removes documents by primary-key value.
	DeleteDocuments(ids []string) (int, error)

	// DeleteDocumentsByFilter removes every document matching filter, a
	// minimal "field = value" / "field != value" equality expression
	// (the query-side filter language is out of scope, spec.md §1).
	DeleteDocumentsByFilter(filter string) (int, error)

	// ClearDocuments removes every document, leaving settings untouched.
	ClearDocuments() (int, error)

	// Compact flushes the index's storage to disk. The bbolt
	// implementation only syncs the file; it does not rewrite it and
	// reclaims no space.
	Compact() error

	// Close releases the underlying file handle. Safe to call at any
	// time; a subsequent Open reacquires a handle from the same uuid.
	Close() error
}

// Engine opens and deletes on-disk index handles rooted at a single
// indexes/ directory, one bbolt file per index uuid (spec.md §6 persisted
// state layout).
type Engine struct {
	root string
}

// New returns an Engine rooted at dir (typically <data-dir>/indexes).
func New(dir string) *Engine {
	return &Engine{root: dir}
}

// Open opens (creating if absent) the bbolt-backed index identified by uid.
func (e *Engine) Open(uid string) (Index, error) {
	path := e.path(uid)
	if err := os.MkdirAll(e.root, 0o755); err != nil {
		return nil, fmt.Errorf("engine: open index %s: %w", uid, err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 0})
	if err != nil {
		return nil, fmt.Errorf("engine: open index %s: %w", uid, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketDocuments, bucketSettings, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("engine: init index %s: %w", uid, err)
	}
	return &boltIndex{uid: uid, db: db}, nil
}

// Delete removes an index's on-disk file. Called after the index-deletion
// task's transaction commits (spec.md §4.6).
func (e *Engine) Delete(uid string) error {
	return removeFile(e.path(uid))
}

func (e *Engine) path(uid string) string {
	return e.root + "/" + uid + ".bolt"
}

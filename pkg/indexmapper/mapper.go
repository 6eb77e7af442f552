// Package indexmapper holds the bounded LRU of open index handles
// described in spec.md §4.2: index(name) opens lazily, evicting the
// least-recently-used handle when the LRU is at capacity, and
// try_for_each_index walks every index without holding them all open at
// once.
package indexmapper

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/stratum/pkg/engine"
	"github.com/cuemby/stratum/pkg/log"
	"github.com/rs/zerolog"
)

// Entry is the name -> (uuid, timestamps, stats snapshot) mapping
// described in spec.md §3 "Index entry". The Mapper keeps entries in
// memory only; they are not persisted and do not survive a restart.
type Entry struct {
	Name      string
	UID       string
	CreatedAt time.Time
	UpdatedAt time.Time
	Stats     engine.Stats
}

type openHandle struct {
	name string
	idx  engine.Index
}

// Mapper is the index mapper. It owns the name -> entry table and a
// bounded LRU of open engine.Index handles; it never holds more than
// capacity indexes open simultaneously.
type Mapper struct {
	eng      *engine.Engine
	capacity int

	mu      sync.Mutex
	entries map[string]*Entry
	open    map[string]*list.Element // name -> lru element
	lru     *list.List               // front = most-recently-used
	logger  zerolog.Logger
}

// New returns a Mapper backed by eng, holding at most capacity index
// handles open at once. capacity comes from config.Options.IndexCount.
func New(eng *engine.Engine, capacity int) *Mapper {
	if capacity < 1 {
		capacity = 1
	}
	return &Mapper{
		eng:      eng,
		capacity: capacity,
		entries:  make(map[string]*Entry),
		open:     make(map[string]*list.Element),
		lru:      list.New(),
		logger:   log.WithComponent("indexmapper"),
	}
}

// Register adds a new name -> uid mapping without opening a handle.
// Returns an *AlreadyExistsError if name is already mapped.
func (m *Mapper) Register(name, uid string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[name]; ok {
		return nil, &AlreadyExistsError{Name: name}
	}
	now := time.Now().UTC()
	e := &Entry{Name: name, UID: uid, CreatedAt: now, UpdatedAt: now}
	m.entries[name] = e
	return e, nil
}

// Exists reports whether name is currently mapped to an index.
func (m *Mapper) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[name]
	return ok
}

// Entry returns the current entry for name, if any.
func (m *Mapper) Entry(name string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	return e, ok
}

// Names returns every currently registered index name.
func (m *Mapper) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.entries))
	for n := range m.entries {
		names = append(names, n)
	}
	return names
}

// Index returns an open handle for name, opening it lazily and evicting
// the least-recently-used handle if the LRU is already at capacity.
func (m *Mapper) Index(name string) (engine.Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}

	if el, ok := m.open[name]; ok {
		m.lru.MoveToFront(el)
		return el.Value.(*openHandle).idx, nil
	}

	if m.lru.Len() >= m.capacity {
		if err := m.evictOldest(); err != nil {
			return nil, err
		}
	}

	idx, err := m.eng.Open(entry.UID)
	if err != nil {
		return nil, fmt.Errorf("indexmapper: open %s: %w", name, err)
	}
	el := m.lru.PushFront(&openHandle{name: name, idx: idx})
	m.open[name] = el
	return idx, nil
}

// evictOldest closes and unmaps the least-recently-used open handle.
// Must be called with m.mu held.
func (m *Mapper) evictOldest() error {
	back := m.lru.Back()
	if back == nil {
		return nil
	}
	h := back.Value.(*openHandle)
	m.lru.Remove(back)
	delete(m.open, h.name)
	if err := h.idx.Close(); err != nil {
		m.logger.Warn().Err(err).Str("index", h.name).Msg("failed closing evicted index handle")
	}
	return nil
}

// Rename updates the name -> entry mapping for an IndexSwap, moving any
// currently open handle under its new name. The handle itself (and its
// uid) is untouched; only the mapping's key changes.
func (m *Mapper) Rename(oldName, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[oldName]
	if !ok {
		return &NotFoundError{Name: oldName}
	}
	delete(m.entries, oldName)
	entry.Name = newName
	entry.UpdatedAt = time.Now().UTC()
	m.entries[newName] = entry

	if el, ok := m.open[oldName]; ok {
		delete(m.open, oldName)
		el.Value.(*openHandle).name = newName
		m.open[newName] = el
	}
	return nil
}

// Delete removes the mapping for name and closes any open handle,
// returning the index's uid so the caller can schedule its on-disk files
// for removal once the enclosing transaction has committed (spec.md
// §4.6 "Index creation / update / deletion").
func (m *Mapper) Delete(name string) (uid string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[name]
	if !ok {
		return "", &NotFoundError{Name: name}
	}
	if el, ok := m.open[name]; ok {
		h := el.Value.(*openHandle)
		m.lru.Remove(el)
		delete(m.open, name)
		if cerr := h.idx.Close(); cerr != nil {
			m.logger.Warn().Err(cerr).Str("index", name).Msg("failed closing index before delete")
		}
	}
	delete(m.entries, name)
	return entry.UID, nil
}

// TryForEachIndex walks every registered index, opening each lazily and
// respecting the LRU bound rather than holding them all open at once
// (spec.md §4.2's stated discipline: each open handle reserves a large
// address-space region, so iterating the whole index set must not defeat
// the LRU's purpose).
func (m *Mapper) TryForEachIndex(f func(name string, idx engine.Index) error) error {
	for _, name := range m.Names() {
		idx, err := m.Index(name)
		if err != nil {
			return err
		}
		if err := f(name, idx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every currently open handle. Called during shutdown.
func (m *Mapper) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for el := m.lru.Front(); el != nil; el = el.Next() {
		if err := el.Value.(*openHandle).idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.lru.Init()
	m.open = make(map[string]*list.Element)
	return firstErr
}

// NotFoundError reports that name has no index mapping.
type NotFoundError struct{ Name string }

func (e *NotFoundError) Error() string { return "index not found: " + e.Name }

// AlreadyExistsError reports that name is already mapped.
type AlreadyExistsError struct{ Name string }

func (e *AlreadyExistsError) Error() string { return "index already exists: " + e.Name }

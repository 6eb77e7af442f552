package indexmapper

import (
	"fmt"
	"testing"

	"github.com/cuemby/stratum/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMapper(t *testing.T, capacity int) *Mapper {
	t.Helper()
	eng := engine.New(t.TempDir())
	return New(eng, capacity)
}

func TestRegisterAndIndex(t *testing.T) {
	m := newTestMapper(t, 2)

	_, err := m.Register("movies", "uid-1")
	require.NoError(t, err)
	assert.True(t, m.Exists("movies"))

	idx, err := m.Index("movies")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", idx.UID())
}

func TestRegisterDuplicate(t *testing.T) {
	m := newTestMapper(t, 2)
	_, err := m.Register("movies", "uid-1")
	require.NoError(t, err)

	_, err = m.Register("movies", "uid-2")
	require.Error(t, err)
	var already *AlreadyExistsError
	assert.ErrorAs(t, err, &already)
}

func TestIndexNotFound(t *testing.T) {
	m := newTestMapper(t, 2)
	_, err := m.Index("missing")
	require.Error(t, err)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestLRUEviction(t *testing.T) {
	m := newTestMapper(t, 2)
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("idx-%d", i)
		_, err := m.Register(name, name)
		require.NoError(t, err)
	}

	_, err := m.Index("idx-0")
	require.NoError(t, err)
	_, err = m.Index("idx-1")
	require.NoError(t, err)

	assert.Len(t, m.open, 2)

	// Opening a third handle evicts idx-0, the least-recently-used.
	_, err = m.Index("idx-2")
	require.NoError(t, err)
	assert.Len(t, m.open, 2)
	_, stillOpen := m.open["idx-0"]
	assert.False(t, stillOpen)
}

func TestRename(t *testing.T) {
	m := newTestMapper(t, 2)
	_, err := m.Register("old-name", "uid-1")
	require.NoError(t, err)
	_, err = m.Index("old-name")
	require.NoError(t, err)

	require.NoError(t, m.Rename("old-name", "new-name"))
	assert.False(t, m.Exists("old-name"))
	assert.True(t, m.Exists("new-name"))

	idx, err := m.Index("new-name")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", idx.UID())
}

func TestDeleteReturnsUID(t *testing.T) {
	m := newTestMapper(t, 2)
	_, err := m.Register("movies", "uid-1")
	require.NoError(t, err)
	_, err = m.Index("movies")
	require.NoError(t, err)

	uid, err := m.Delete("movies")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", uid)
	assert.False(t, m.Exists("movies"))
}

func TestTryForEachIndex(t *testing.T) {
	m := newTestMapper(t, 1)
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("idx-%d", i)
		_, err := m.Register(name, name)
		require.NoError(t, err)
	}

	var visited []string
	err := m.TryForEachIndex(func(name string, idx engine.Index) error {
		visited = append(visited, name)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, visited, 3)
	// Capacity of 1 must never be exceeded mid-iteration.
	assert.LessOrEqual(t, len(m.open), 1)
}

func TestProbeBudgetDichotomicSearch(t *testing.T) {
	const limit = int64(500 << 20) // pretend only 500MiB is viable
	budget := ProbeBudget(64<<20, 2<<30, 10, func(size int64) bool {
		return size <= limit
	})
	assert.LessOrEqual(t, budget.MapSizeBytes, limit)
	assert.Greater(t, budget.MapSizeBytes, int64(0))
}

func TestGrowMapSize(t *testing.T) {
	size, ok := GrowMapSize(64<<20, 0)
	assert.True(t, ok)
	assert.Greater(t, size, int64(64<<20))

	_, ok = GrowMapSize(64<<20, maxGrowthAttempts)
	assert.False(t, ok)
}

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddOrUpdateDocumentsAndStats(t *testing.T) {
	eng := New(t.TempDir())
	idx, err := eng.Open("idx-1")
	require.NoError(t, err)
	defer idx.Close()

	n, err := idx.AddOrUpdateDocuments([]map[string]interface{}{
		{"id": "a", "title": "first"},
		{"id": "b", "title": "second"},
	}, "id")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pk, ok := idx.PrimaryKey()
	assert.True(t, ok)
	assert.Equal(t, "id", pk)

	stats, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.NumberOfDocuments)
	assert.Contains(t, stats.FieldDistribution, "title")
}

func TestSetPrimaryKeyConflict(t *testing.T) {
	eng := New(t.TempDir())
	idx, err := eng.Open("idx-1")
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.SetPrimaryKey("id"))
	err = idx.SetPrimaryKey("uuid")
	require.Error(t, err)
	var pkErr *PrimaryKeyError
	assert.ErrorAs(t, err, &pkErr)
}

func TestDeleteDocuments(t *testing.T) {
	eng := New(t.TempDir())
	idx, err := eng.Open("idx-1")
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.AddOrUpdateDocuments([]map[string]interface{}{
		{"id": "a"}, {"id": "b"}, {"id": "c"},
	}, "id")
	require.NoError(t, err)

	n, err := idx.DeleteDocuments([]string{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.NumberOfDocuments)
}

func TestDeleteDocumentsByFilter(t *testing.T) {
	eng := New(t.TempDir())
	idx, err := eng.Open("idx-1")
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.AddOrUpdateDocuments([]map[string]interface{}{
		{"id": "a", "status": "draft"},
		{"id": "b", "status": "published"},
		{"id": "c", "status": "draft"},
	}, "id")
	require.NoError(t, err)

	n, err := idx.DeleteDocumentsByFilter(`status = draft`)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.NumberOfDocuments)
}

func TestClearDocuments(t *testing.T) {
	eng := New(t.TempDir())
	idx, err := eng.Open("idx-1")
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.AddOrUpdateDocuments([]map[string]interface{}{{"id": "a"}, {"id": "b"}}, "id")
	require.NoError(t, err)

	n, err := idx.ClearDocuments()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stats.NumberOfDocuments)
}

func TestInferPrimaryKey(t *testing.T) {
	pk, ok := InferPrimaryKey(map[string]interface{}{"id": "x", "name": "y"})
	assert.True(t, ok)
	assert.Equal(t, "id", pk)

	pk, ok = InferPrimaryKey(map[string]interface{}{"movie_id": "x"})
	assert.True(t, ok)
	assert.Equal(t, "movie_id", pk)

	_, ok = InferPrimaryKey(map[string]interface{}{"title": "x"})
	assert.False(t, ok)
}

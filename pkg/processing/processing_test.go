package processing

import (
	"testing"

	"github.com/cuemby/stratum/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartAndContains(t *testing.T) {
	s := New()
	s.Start(1, []types.TaskID{10, 11, 12})

	assert.True(t, s.Contains(10))
	assert.True(t, s.Contains(12))
	assert.False(t, s.Contains(99))

	uids, batchUID := s.Snapshot()
	assert.ElementsMatch(t, []types.TaskID{10, 11, 12}, uids)
	require.NotNil(t, batchUID)
	assert.Equal(t, types.BatchID(1), *batchUID)
}

func TestClearResetsEverything(t *testing.T) {
	s := New()
	s.Start(1, []types.TaskID{10})
	s.RaiseStopIfProcessing([]types.TaskID{10})
	assert.True(t, s.MustStop())

	s.Clear()
	assert.False(t, s.Contains(10))
	assert.False(t, s.MustStop())
	uids, batchUID := s.Snapshot()
	assert.Empty(t, uids)
	assert.Nil(t, batchUID)
}

func TestRaiseStopIfProcessingOnlyWhenIntersecting(t *testing.T) {
	s := New()
	s.Start(1, []types.TaskID{10, 11})

	raised := s.RaiseStopIfProcessing([]types.TaskID{99, 100})
	assert.False(t, raised)
	assert.False(t, s.MustStop())

	raised = s.RaiseStopIfProcessing([]types.TaskID{100, 11})
	assert.True(t, raised)
	assert.True(t, s.MustStop())
}

func TestStartClearsStaleMustStop(t *testing.T) {
	s := New()
	s.Start(1, []types.TaskID{10})
	s.RaiseStopIfProcessing([]types.TaskID{10})
	require.True(t, s.MustStop())

	s.Start(2, []types.TaskID{20})
	assert.False(t, s.MustStop())
	assert.False(t, s.Contains(10))
	assert.True(t, s.Contains(20))
}

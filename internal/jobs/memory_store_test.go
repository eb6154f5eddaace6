package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/cisclient/internal/cis"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.CreateJob(&Job{Index: 0, Files: []string{"Input/a.pdf"}}))
	require.Error(t, s.CreateJob(&Job{Index: 0}), "duplicate index")

	for _, st := range []State{StateSubmitting, StatePolling} {
		require.NoError(t, s.UpdateState(0, st))
	}
	id := uuid.New()
	require.NoError(t, s.SetJobID(0, id))
	require.NoError(t, s.SaveStatus(0, cis.JobStatus{Status: "CompletedSuccessful", TotalQueueTimeInSec: 1.5, TotalProcessingTimeInSec: 2}))
	for _, st := range []State{StateSucceeded, StateDownloading, StateReleasing, StateDone} {
		require.NoError(t, s.UpdateState(0, st))
	}
	done := time.Now()
	require.NoError(t, s.SaveResult(0, "Output/x/result.zip", done))

	j, err := s.GetJob(0)
	require.NoError(t, err)
	assert.Equal(t, StateDone, j.State)
	assert.Equal(t, id, j.JobID)
	assert.Equal(t, "CompletedSuccessful", j.Status)
	assert.Equal(t, 1500*time.Millisecond, j.QueueTime)
	assert.Equal(t, 2*time.Second, j.ProcessingTime)
	assert.Equal(t, "Output/x/result.zip", j.OutputPath)
	require.NotNil(t, j.StartedAt)
	require.NotNil(t, j.CompletedAt)
	assert.GreaterOrEqual(t, j.Duration(), time.Duration(0))
}

func TestMemoryStore_RejectsInvalidTransition(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.CreateJob(&Job{Index: 1}))
	err := s.UpdateState(1, StateDownloading)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "new -> downloading")
}

func TestMemoryStore_SaveErrorFromAnyState(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.CreateJob(&Job{Index: 2}))
	cause := errors.New("boom")
	require.NoError(t, s.SaveError(2, cause, time.Now()))
	j, err := s.GetJob(2)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, j.State)
	assert.ErrorIs(t, j.Err, cause)
}

func TestMemoryStore_NotFoundAndOrdering(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetJob(7)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateState(7, StateSubmitting), ErrNotFound)

	for _, i := range []int{2, 0, 1} {
		require.NoError(t, s.CreateJob(&Job{Index: i}))
	}
	list := s.List()
	require.Len(t, list, 3)
	for i, j := range list {
		assert.Equal(t, i, j.Index)
	}
}

func TestMemoryStore_SnapshotsAreCopies(t *testing.T) {
	s := NewMemoryStore()
	files := []string{"a"}
	require.NoError(t, s.CreateJob(&Job{Index: 0, Files: files}))
	files[0] = "mutated"
	j, _ := s.GetJob(0)
	assert.Equal(t, "a", j.Files[0])
}

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----------------------------------------------------------------------------
// Job lifecycle Tests
// ----------------------------------------------------------------------------

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from JobStatus
		to   JobStatus
		want bool
	}{
		{StatusPending, StatusPreviewed, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusRunning, false},
		{StatusPreviewed, StatusRunning, true},
		{StatusPreviewed, StatusFailed, true},
		{StatusPreviewed, StatusCompleted, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusPartial, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusPreviewed, false},
		{StatusCompleted, StatusRunning, false},
		{StatusPartial, StatusCompleted, false},
		{StatusFailed, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestImportJobTransition(t *testing.T) {
	job := &ImportJob{ID: "job-1", Status: StatusPending}

	require.NoError(t, job.Transition(StatusPreviewed))
	require.NoError(t, job.Transition(StatusRunning))
	require.NoError(t, job.Transition(StatusPartial))
	assert.True(t, job.Status.Terminal())

	err := job.Transition(StatusRunning)
	var te *InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StatusPartial, te.From)
	assert.Equal(t, StatusRunning, te.To)
	assert.Equal(t, "job-1", te.JobID)
	assert.Equal(t, StatusPartial, job.Status, "failed transition must not change status")
}

func TestJobStatusValid(t *testing.T) {
	for _, s := range []JobStatus{StatusPending, StatusPreviewed, StatusRunning, StatusCompleted, StatusPartial, StatusFailed} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, JobStatus("done").Valid())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusPreviewed.Terminal())
}

func TestFinalStatus(t *testing.T) {
	tests := []struct {
		name     string
		imported int
		errored  int
		aborted  bool
		want     JobStatus
	}{
		{name: "all imported", imported: 5, want: StatusCompleted},
		{name: "empty file", want: StatusCompleted},
		{name: "some errors", imported: 2, errored: 1, want: StatusPartial},
		{name: "only errors", errored: 3, want: StatusFailed},
		{name: "aborted after progress", imported: 4, aborted: true, want: StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FinalStatus(tt.imported, tt.errored, tt.aborted))
		})
	}
}

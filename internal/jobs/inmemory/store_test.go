package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/statement-converter/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSaveAndGetCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	job := &jobs.ConversionJob{JobID: "j1", SessionID: "s1", Status: jobs.JobStatusPending}
	require.NoError(t, s.SaveJob(ctx, job))

	job.Status = jobs.JobStatusFailed
	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, got.Status)

	got.Status = jobs.JobStatusCompleted
	again, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, again.Status)
}

func TestStoreErrors(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	assert.Error(t, s.SaveJob(ctx, &jobs.ConversionJob{}))

	_, err := s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)

	err = s.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, "x")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestStoreListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, j := range []jobs.ConversionJob{
		{JobID: "a", SessionID: "s1", UserID: "u1", Status: jobs.JobStatusCompleted},
		{JobID: "b", SessionID: "s1", UserID: "u1", Status: jobs.JobStatusFailed},
		{JobID: "c", SessionID: "s2", UserID: "u2", Status: jobs.JobStatusCompleted},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveJob(ctx, &j))
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all newest first", jobs.JobFilter{}, []string{"c", "b", "a"}},
		{"by session", jobs.JobFilter{SessionID: "s1"}, []string{"b", "a"}},
		{"by user", jobs.JobFilter{UserID: "u2"}, []string{"c"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusCompleted}, []string{"c", "a"}},
		{"limit", jobs.JobFilter{Limit: 1}, []string{"c"}},
		{"offset", jobs.JobFilter{Offset: 1, Limit: 1}, []string{"b"}},
		{"offset past end", jobs.JobFilter{Offset: 5}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			require.NoError(t, err)
			ids := []string{}
			for _, j := range got {
				ids = append(ids, j.JobID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStoreUpdateJobStatus(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.SaveJob(ctx, &jobs.ConversionJob{JobID: "j1"}))

	require.NoError(t, s.UpdateJobStatus(ctx, "j1", jobs.JobStatusFailed, "nope"))

	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, got.Status)
	assert.Equal(t, "nope", got.Error)
}

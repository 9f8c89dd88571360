package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/progress-engine/internal/models"
)

func TestMemoryRepositorySetAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	require.NoError(t, repo.SetCompletion(ctx, models.CompletionRecord{UserID: "u1", ToolID: "seo", StepID: "s1", Completed: true}))
	require.NoError(t, repo.SetCompletion(ctx, models.CompletionRecord{UserID: "u1", ToolID: "seo", StepID: "s2", Completed: true}))
	require.NoError(t, repo.SetCompletion(ctx, models.CompletionRecord{UserID: "u2", ToolID: "seo", StepID: "s3", Completed: true}))

	refs, err := repo.ListCompleted(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.StepRef{{ToolID: "seo", StepID: "s1"}, {ToolID: "seo", StepID: "s2"}}, refs)

	// unmarking keeps the row flagged false
	require.NoError(t, repo.SetCompletion(ctx, models.CompletionRecord{UserID: "u1", ToolID: "seo", StepID: "s1", Completed: false}))
	refs, err = repo.ListCompleted(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []models.StepRef{{ToolID: "seo", StepID: "s2"}}, refs)

	rec, ok := repo.Get("u1", models.StepRef{ToolID: "seo", StepID: "s1"})
	require.True(t, ok)
	assert.False(t, rec.Completed)
	assert.Nil(t, rec.CompletedAt)

	refs, err = repo.ListCompleted(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestMemoryRepositoryKeepsFirstCompletionTime(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	ref := models.StepRef{ToolID: "seo", StepID: "s1"}

	first := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetCompletion(ctx, models.CompletionRecord{UserID: "u1", ToolID: ref.ToolID, StepID: ref.StepID, Completed: true, UpdatedAt: first}))
	require.NoError(t, repo.SetCompletion(ctx, models.CompletionRecord{UserID: "u1", ToolID: ref.ToolID, StepID: ref.StepID, Completed: true, UpdatedAt: first.Add(time.Hour)}))

	rec, ok := repo.Get("u1", ref)
	require.True(t, ok)
	require.NotNil(t, rec.CompletedAt)
	assert.Equal(t, first, *rec.CompletedAt)
	assert.Equal(t, first.Add(time.Hour), rec.UpdatedAt)
}

func TestMemoryRepositoryHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := NewMemoryRepository()
	_, err := repo.ListCompleted(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)
}

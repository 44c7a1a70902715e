package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-grader/internal/models"
)

func TestActivityLogRepositoryListsEntityTrail(t *testing.T) {
	db := setupTestDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()

	entries := []models.ActivityLog{
		{ActorID: "teacher-1", Action: "submission.processing_failed", EntityType: "submission", EntityID: "sub-1"},
		{ActorID: "teacher-1", Action: "submission.processed", EntityType: "submission", EntityID: "sub-1"},
		{ActorID: "system", Action: "seed.guides", EntityType: "submission", EntityID: "sub-1"},
		{ActorID: "teacher-1", Action: "submission.processed", EntityType: "submission", EntityID: "sub-2"},
	}
	for i := range entries {
		require.NoError(t, repo.Create(ctx, &entries[i]))
	}

	list, total, err := repo.List(ctx, ActivityLogQuery{EntityType: "submission", EntityID: "sub-1", ActionPrefix: "submission.", PageSize: 1})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, list, 1)
	require.Equal(t, "submission.processed", list[0].Action)

	list, total, err = repo.List(ctx, ActivityLogQuery{EntityType: "submission", EntityID: "sub-1", Page: 2, PageSize: 1, ActionPrefix: "submission."})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, list, 1)
	require.Equal(t, "submission.processing_failed", list[0].Action)

	list, total, err = repo.List(ctx, ActivityLogQuery{EntityType: "submission", EntityID: "sub-1"})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, list, 3)
}

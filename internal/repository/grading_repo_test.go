package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-grader/internal/models"
)

func TestGradingRepositoryReplaceResultsIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradingRepository(db)
	mappings := NewMappingRepository(db)
	ctx := context.Background()

	for run := 0; run < 2; run++ {
		rows := []models.Mapping{
			{SubmissionID: "sub", GuideID: "guide", QuestionID: "1", StudentAnswer: "a", MaxScore: 10, Method: models.MappingMethodLLM},
			{SubmissionID: "sub", GuideID: "guide", QuestionID: "2", StudentAnswer: "b", MaxScore: 5, Method: models.MappingMethodLLM},
		}
		result := models.GradingResult{SubmissionID: "sub", GuideID: "guide", Score: 12, MaxScore: 15, Percentage: 80, Method: models.GradingMethodLLM}
		require.NoError(t, repo.ReplaceResults(ctx, "sub", "guide", rows, &result))
		require.NotEmpty(t, result.ID)
	}

	total, err := repo.CountResults(ctx, "sub", "guide")
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	stored, err := mappings.ListByScope(ctx, "sub", "guide")
	require.NoError(t, err)
	require.Len(t, stored, 2)

	result, err := repo.GetResult(ctx, "sub", "guide")
	require.NoError(t, err)
	require.Equal(t, 15.0, result.MaxScore)
}

func TestGradingRepositoryReplaceResultsRollsBack(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradingRepository(db)
	mappings := NewMappingRepository(db)
	ctx := context.Background()

	original := []models.Mapping{{SubmissionID: "sub", GuideID: "guide", QuestionID: "1", StudentAnswer: "a", MaxScore: 10, Method: models.MappingMethodLLM}}
	require.NoError(t, repo.ReplaceResults(ctx, "sub", "guide", original, &models.GradingResult{ID: "result-1", SubmissionID: "sub", GuideID: "guide", MaxScore: 10, Method: models.GradingMethodLLM}))

	// A colliding primary key forces the final insert to fail.
	replacement := []models.Mapping{{SubmissionID: "sub", GuideID: "guide", QuestionID: "1", StudentAnswer: "new", MaxScore: 10, Method: models.MappingMethodLLM}}
	require.NoError(t, db.Create(&models.GradingResult{ID: "taken", SubmissionID: "other", GuideID: "guide", Method: models.GradingMethodLLM}).Error)
	err := repo.ReplaceResults(ctx, "sub", "guide", replacement, &models.GradingResult{ID: "taken", SubmissionID: "sub", GuideID: "guide", MaxScore: 10, Method: models.GradingMethodLLM})
	require.Error(t, err)

	stored, err := mappings.ListByScope(ctx, "sub", "guide")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "a", stored[0].StudentAnswer)

	result, err := repo.GetResult(ctx, "sub", "guide")
	require.NoError(t, err)
	require.Equal(t, "result-1", result.ID)
}

func TestMappingRepositoryDeletes(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMappingRepository(db)
	ctx := context.Background()

	rows := []models.Mapping{
		{ID: "m1", SubmissionID: "sub", GuideID: "guide", QuestionID: "1", MaxScore: 1, Method: models.MappingMethodLLM},
		{ID: "m2", SubmissionID: "sub", GuideID: "guide", QuestionID: "2", MaxScore: 1, Method: models.MappingMethodLLM},
		{ID: "m3", SubmissionID: "sub", GuideID: "other", QuestionID: "1", MaxScore: 1, Method: models.MappingMethodLLM},
	}
	require.NoError(t, db.WithContext(ctx).Create(&rows).Error)

	removed, err := repo.DeleteByIDs(ctx, []string{"m1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	removed, err = repo.DeleteByScope(ctx, "sub", "guide")
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	remaining, err := repo.ListByScope(ctx, "sub", "other")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
}

func TestGuideRepositoryGetByIDNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGuideRepository(db)

	_, err := repo.GetByID(context.Background(), "missing")
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

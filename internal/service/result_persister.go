package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-exam-grader/internal/models"
	"github.com/noah-isme/gema-exam-grader/internal/repository"
)

// PersistInput is the graded state of one (submission, guide) pair.
type PersistInput struct {
	SubmissionID string
	GuideID      string
	Mappings     []models.Mapping
	Outcome      GradingOutcome
}

// ResultPersister replaces the stored results of a pair atomically.
type ResultPersister interface {
	Persist(ctx context.Context, input PersistInput) (string, error)
}

type resultPersister struct {
	repo   repository.GradingRepository
	logger zerolog.Logger
}

// NewResultPersister constructs the persister.
func NewResultPersister(repo repository.GradingRepository, logger zerolog.Logger) ResultPersister {
	return &resultPersister{
		repo:   repo,
		logger: logger.With().Str("component", "result_persister").Logger(),
	}
}

func (p *resultPersister) Persist(ctx context.Context, input PersistInput) (string, error) {
	detail, err := json.Marshal(input.Outcome.Grades)
	if err != nil {
		return "", fmt.Errorf("%w: encode grades: %w", ErrPersistence, err)
	}

	rows := make([]models.Mapping, 0, len(input.Mappings))
	for _, mapping := range input.Mappings {
		mapping.ID = uuid.NewString()
		mapping.SubmissionID = input.SubmissionID
		mapping.GuideID = input.GuideID
		rows = append(rows, mapping)
	}

	result := models.GradingResult{
		ID:               uuid.NewString(),
		SubmissionID:     input.SubmissionID,
		GuideID:          input.GuideID,
		Score:            input.Outcome.Score,
		MaxScore:         input.Outcome.MaxScore,
		Percentage:       input.Outcome.Percentage,
		Feedback:         input.Outcome.Feedback,
		DetailedFeedback: datatypes.JSON(detail),
		Method:           input.Outcome.Method,
	}

	if err := p.repo.ReplaceResults(ctx, input.SubmissionID, input.GuideID, rows, &result); err != nil {
		p.logger.Error().Err(err).
			Str("submission_id", input.SubmissionID).
			Str("guide_id", input.GuideID).
			Msg("failed to persist grading results")
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return result.ID, nil
}

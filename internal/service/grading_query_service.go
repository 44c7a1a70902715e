package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-grader/internal/dto"
	"github.com/noah-isme/gema-exam-grader/internal/models"
	"github.com/noah-isme/gema-exam-grader/internal/repository"
)

var (
	// ErrResultNotFound indicates no grading result is stored for the pair.
	ErrResultNotFound = errors.New("grading result not found")
	// ErrInvalidStatusFilter indicates an unknown processing status filter.
	ErrInvalidStatusFilter = errors.New("invalid processing status")
)

var listableStatuses = map[string]struct{}{
	models.ProcessingStatusPending:      {},
	models.ProcessingStatusProcessing:   {},
	models.ProcessingStatusOCRCompleted: {},
	models.ProcessingStatusCompleted:    {},
	models.ProcessingStatusFailed:       {},
}

// GradingQueryService reads stored grading outcomes.
type GradingQueryService interface {
	GetResult(ctx context.Context, submissionID, guideID, userID string) (dto.GradingResultResponse, error)
	// ListSubmissions returns the caller's submissions, optionally by status.
	ListSubmissions(ctx context.Context, userID, status string) ([]dto.SubmissionSummary, error)
}

type gradingQueryService struct {
	submissions repository.SubmissionRepository
	results     repository.GradingRepository
	mappings    repository.MappingRepository
	enforce     bool
	logger      zerolog.Logger
}

// NewGradingQueryService constructs the read side of grading.
func NewGradingQueryService(submissions repository.SubmissionRepository, results repository.GradingRepository, mappings repository.MappingRepository, enforceOwnership bool, logger zerolog.Logger) GradingQueryService {
	return &gradingQueryService{
		submissions: submissions,
		results:     results,
		mappings:    mappings,
		enforce:     enforceOwnership,
		logger:      logger.With().Str("component", "grading_query_service").Logger(),
	}
}

func (s *gradingQueryService) GetResult(ctx context.Context, submissionID, guideID, userID string) (dto.GradingResultResponse, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradingResultResponse{}, ErrSubmissionNotFound
		}
		return dto.GradingResultResponse{}, fmt.Errorf("load submission: %w", err)
	}
	if s.enforce && submission.UserID != "" && submission.UserID != userID {
		return dto.GradingResultResponse{}, ErrSubmissionNotFound
	}

	result, err := s.results.GetResult(ctx, submissionID, guideID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradingResultResponse{}, ErrResultNotFound
		}
		return dto.GradingResultResponse{}, fmt.Errorf("load grading result: %w", err)
	}

	mappings, err := s.mappings.ListByScope(ctx, submissionID, guideID)
	if err != nil {
		return dto.GradingResultResponse{}, fmt.Errorf("load mappings: %w", err)
	}

	return dto.NewGradingResultResponse(result, mappings), nil
}

func (s *gradingQueryService) ListSubmissions(ctx context.Context, userID, status string) ([]dto.SubmissionSummary, error) {
	filter := repository.SubmissionFilter{}
	if status = strings.ToLower(strings.TrimSpace(status)); status != "" {
		if _, ok := listableStatuses[status]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidStatusFilter, status)
		}
		filter.Status = &status
	}
	if s.enforce {
		filter.UserID = &userID
	}

	submissions, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return dto.NewSubmissionSummaries(submissions), nil
}

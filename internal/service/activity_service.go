package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-exam-grader/internal/models"
	"github.com/noah-isme/gema-exam-grader/internal/repository"
)

// ActivityEntry captures the details required to persist an audit entry.
type ActivityEntry struct {
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]interface{}
}

// ActivityRecorder defines behaviour for recording activity logs.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) (models.ActivityLog, error)
}

// ActivityService records and lists the processing audit trail.
type ActivityService interface {
	ActivityRecorder
	ListForSubmission(ctx context.Context, submissionID string, page, pageSize int) ([]models.ActivityLog, int64, error)
}

const (
	systemActor             = "system"
	defaultActivityPageSize = 20
	maxActivityPageSize     = 100
	maxActivityValueLength  = 500
)

type activityService struct {
	repo   repository.ActivityLogRepository
	logger zerolog.Logger
}

// NewActivityService constructs the activity log service.
func NewActivityService(repo repository.ActivityLogRepository, logger zerolog.Logger) ActivityService {
	return &activityService{
		repo:   repo,
		logger: logger.With().Str("component", "activity_service").Logger(),
	}
}

// Record stores one audit entry. Actions and entity types are lower-cased,
// credentials in metadata are masked and long strings are truncated so a
// model error body cannot bloat the trail.
func (s *activityService) Record(ctx context.Context, entry ActivityEntry) (models.ActivityLog, error) {
	action := strings.ToLower(strings.TrimSpace(entry.Action))
	entityType := strings.ToLower(strings.TrimSpace(entry.EntityType))
	switch {
	case action == "":
		return models.ActivityLog{}, fmt.Errorf("action is required")
	case entityType == "":
		return models.ActivityLog{}, fmt.Errorf("entity type is required")
	}

	actor := strings.TrimSpace(entry.ActorID)
	if actor == "" {
		actor = systemActor
	}
	model := models.ActivityLog{
		ActorID:    actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   strings.TrimSpace(entry.EntityID),
		Metadata:   sanitizeMetadata(entry.Metadata),
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Error().Err(err).Str("action", action).Str("entity_id", model.EntityID).Msg("failed to persist activity log")
		return models.ActivityLog{}, err
	}
	return model, nil
}

func (s *activityService) ListForSubmission(ctx context.Context, submissionID string, page, pageSize int) ([]models.ActivityLog, int64, error) {
	if pageSize <= 0 || pageSize > maxActivityPageSize {
		pageSize = defaultActivityPageSize
	}
	if page < 1 {
		page = 1
	}
	return s.repo.List(ctx, repository.ActivityLogQuery{
		EntityType:   "submission",
		EntityID:     submissionID,
		ActionPrefix: "submission.",
		Page:         page,
		PageSize:     pageSize,
	})
}

func sanitizeMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	sanitized := make(datatypes.JSONMap, len(metadata))
	for key, value := range metadata {
		if isSecretKey(key) {
			sanitized[key] = "***"
			continue
		}
		if text, ok := value.(string); ok && len(text) > maxActivityValueLength {
			value = text[:maxActivityValueLength] + "..."
		}
		sanitized[key] = value
	}
	return sanitized
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range []string{"api_key", "secret", "token", "password"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-grader/internal/models"
)

// ActivityLogQuery selects the audit trail of one entity.
type ActivityLogQuery struct {
	EntityType   string
	EntityID     string
	ActionPrefix string
	Page         int
	PageSize     int
}

// ActivityLogRepository persists the processing audit trail.
type ActivityLogRepository interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, query ActivityLogQuery) ([]models.ActivityLog, int64, error)
}

type activityLogRepository struct {
	db *gorm.DB
}

// NewActivityLogRepository constructs the activity log repository.
func NewActivityLogRepository(db *gorm.DB) ActivityLogRepository {
	return &activityLogRepository{db: db}
}

func (r *activityLogRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// List returns newest entries first together with the unpaginated total.
func (r *activityLogRepository) List(ctx context.Context, query ActivityLogQuery) ([]models.ActivityLog, int64, error) {
	scoped := r.db.WithContext(ctx).Model(&models.ActivityLog{}).
		Where("entity_type = ? AND entity_id = ?", query.EntityType, query.EntityID)
	if prefix := strings.TrimSpace(query.ActionPrefix); prefix != "" {
		scoped = scoped.Where("action LIKE ?", prefix+"%")
	}

	var total int64
	if err := scoped.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := query.Page
	if page <= 0 {
		page = 1
	}
	if query.PageSize > 0 {
		scoped = scoped.Offset((page - 1) * query.PageSize).Limit(query.PageSize)
	}

	var entries []models.ActivityLog
	if err := scoped.Order("created_at DESC, id DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

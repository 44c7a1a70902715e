package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-grader/internal/models"
)

// MappingRepository stores the answer mappings of a (submission, guide) pair.
type MappingRepository interface {
	ListByScope(ctx context.Context, submissionID, guideID string) ([]models.Mapping, error)
	DeleteByScope(ctx context.Context, submissionID, guideID string) (int64, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

type mappingRepository struct {
	db *gorm.DB
}

// NewMappingRepository constructs the mapping repository.
func NewMappingRepository(db *gorm.DB) MappingRepository {
	return &mappingRepository{db: db}
}

func (r *mappingRepository) ListByScope(ctx context.Context, submissionID, guideID string) ([]models.Mapping, error) {
	var mappings []models.Mapping
	err := r.db.WithContext(ctx).
		Where("submission_id = ? AND guide_id = ?", submissionID, guideID).
		Order("created_at ASC").
		Find(&mappings).Error
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

func (r *mappingRepository) DeleteByScope(ctx context.Context, submissionID, guideID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("submission_id = ? AND guide_id = ?", submissionID, guideID).
		Delete(&models.Mapping{})
	return result.RowsAffected, result.Error
}

func (r *mappingRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Mapping{})
	return result.RowsAffected, result.Error
}

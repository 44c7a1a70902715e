package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-grader/internal/models"
)

// GradingRepository persists grading outcomes.
type GradingRepository interface {
	// ReplaceResults swaps the stored mappings and summary of a (submission, guide)
	// pair in a single transaction.
	ReplaceResults(ctx context.Context, submissionID, guideID string, mappings []models.Mapping, result *models.GradingResult) error
	GetResult(ctx context.Context, submissionID, guideID string) (models.GradingResult, error)
	CountResults(ctx context.Context, submissionID, guideID string) (int64, error)
}

type gradingRepository struct {
	db *gorm.DB
}

// NewGradingRepository constructs the grading repository.
func NewGradingRepository(db *gorm.DB) GradingRepository {
	return &gradingRepository{db: db}
}

func (r *gradingRepository) ReplaceResults(ctx context.Context, submissionID, guideID string, mappings []models.Mapping, result *models.GradingResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := "submission_id = ? AND guide_id = ?"
		if err := tx.Where(scope, submissionID, guideID).Delete(&models.GradingResult{}).Error; err != nil {
			return err
		}
		if err := tx.Where(scope, submissionID, guideID).Delete(&models.Mapping{}).Error; err != nil {
			return err
		}
		if len(mappings) > 0 {
			if err := tx.Create(&mappings).Error; err != nil {
				return err
			}
		}
		return tx.Create(result).Error
	})
}

func (r *gradingRepository) GetResult(ctx context.Context, submissionID, guideID string) (models.GradingResult, error) {
	var result models.GradingResult
	err := r.db.WithContext(ctx).
		Where("submission_id = ? AND guide_id = ?", submissionID, guideID).
		Order("created_at DESC").
		First(&result).Error
	if err != nil {
		return models.GradingResult{}, err
	}
	return result, nil
}

func (r *gradingRepository) CountResults(ctx context.Context, submissionID, guideID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.GradingResult{}).
		Where("submission_id = ? AND guide_id = ?", submissionID, guideID).
		Count(&total).Error
	return total, err
}

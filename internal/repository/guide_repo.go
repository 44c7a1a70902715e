package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-exam-grader/internal/models"
)

// GuideRepository loads marking guides.
type GuideRepository interface {
	GetByID(ctx context.Context, id string) (models.MarkingGuide, error)
	Create(ctx context.Context, guide *models.MarkingGuide) error
	UpsertBatch(ctx context.Context, items []models.MarkingGuide) (int64, error)
}

type guideRepository struct {
	db *gorm.DB
}

// NewGuideRepository constructs the marking guide repository.
func NewGuideRepository(db *gorm.DB) GuideRepository {
	return &guideRepository{db: db}
}

func (r *guideRepository) GetByID(ctx context.Context, id string) (models.MarkingGuide, error) {
	var guide models.MarkingGuide
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&guide).Error; err != nil {
		return models.MarkingGuide{}, err
	}
	return guide, nil
}

func (r *guideRepository) Create(ctx context.Context, guide *models.MarkingGuide) error {
	return r.db.WithContext(ctx).Create(guide).Error
}

func (r *guideRepository) UpsertBatch(ctx context.Context, items []models.MarkingGuide) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "title", "content_text", "questions", "max_questions_to_answer", "total_marks", "updated_at"}),
	})

	result := tx.Create(&items)
	return result.RowsAffected, result.Error
}

package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-exam-grader/internal/models"
)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	UserID *string
	Status *string
	IDs    []string
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	GetByID(ctx context.Context, id string) (models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	UpsertBatch(ctx context.Context, items []models.Submission) (int64, error)
	SaveExtractedText(ctx context.Context, id, text string, confidence float64) error
	// TryMarkProcessing flips the status to processing unless a run already holds it.
	TryMarkProcessing(ctx context.Context, id string) (bool, error)
	FinalizeProcessing(ctx context.Context, id, status, processingError string) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.db.WithContext(ctx).Model(&models.Submission{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	if filter.Status != nil {
		query = query.Where("processing_status = ?", *filter.Status)
	}

	if len(filter.IDs) > 0 {
		query = query.Where("id IN ?", filter.IDs)
	}

	var submissions []models.Submission
	if err := query.Order("created_at DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) SaveExtractedText(ctx context.Context, id, text string, confidence float64) error {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content_text":   text,
			"ocr_confidence": confidence,
		}).Error
}

func (r *submissionRepository) TryMarkProcessing(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND processing_status <> ?", id, models.ProcessingStatusProcessing).
		Updates(map[string]interface{}{
			"processing_status": models.ProcessingStatusProcessing,
			"processing_error":  "",
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *submissionRepository) FinalizeProcessing(ctx context.Context, id, status, processingError string) error {
	updates := map[string]interface{}{
		"processing_status": status,
		"processing_error":  processingError,
	}
	if status == models.ProcessingStatusCompleted {
		updates["processed_at"] = time.Now().UTC()
	}

	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *submissionRepository) UpsertBatch(ctx context.Context, items []models.Submission) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "student_name", "filename", "file_path", "content_text", "updated_at"}),
	})

	result := tx.Create(&items)
	return result.RowsAffected, result.Error
}

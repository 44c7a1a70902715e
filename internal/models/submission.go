package models

import (
	"strings"
	"time"
)

// Submission processing states.
const (
	ProcessingStatusPending      = "pending"
	ProcessingStatusProcessing   = "processing"
	ProcessingStatusOCRCompleted = "ocr_completed"
	ProcessingStatusCompleted    = "completed"
	ProcessingStatusFailed       = "failed"
)

// Submission is a student's uploaded exam script.
type Submission struct {
	ID               string     `gorm:"primaryKey;size:64" json:"id"`
	UserID           string     `gorm:"size:64;index" json:"user_id"`
	StudentName      string     `gorm:"size:255" json:"student_name"`
	Filename         string     `gorm:"size:255" json:"filename"`
	FilePath         string     `gorm:"size:1024" json:"file_path"`
	ContentText      string     `gorm:"type:text" json:"content_text"`
	OCRConfidence    float64    `gorm:"default:0" json:"ocr_confidence"`
	ProcessingStatus string     `gorm:"size:32;not null;default:pending;index" json:"processing_status"`
	ProcessingError  string     `gorm:"type:text" json:"processing_error"`
	ProcessedAt      *time.Time `json:"processed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsProcessing reports whether a pipeline run currently holds the submission.
func (s Submission) IsProcessing() bool {
	return s.ProcessingStatus == ProcessingStatusProcessing
}

// HasText reports whether extracted text is already stored.
func (s Submission) HasText() bool {
	return strings.TrimSpace(s.ContentText) != ""
}

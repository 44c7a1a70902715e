package models

import (
	"time"

	"gorm.io/datatypes"
)

// Grading methods recorded on the summary row.
const (
	GradingMethodLLM      = "llm"
	GradingMethodFallback = "fallback"
)

// GradingResult is the single summary row for a (submission, guide) pair.
type GradingResult struct {
	ID               string         `gorm:"primaryKey;size:64" json:"id"`
	SubmissionID     string         `gorm:"size:64;not null;index:idx_result_scope" json:"submission_id"`
	GuideID          string         `gorm:"size:64;not null;index:idx_result_scope" json:"guide_id"`
	Score            float64        `gorm:"not null" json:"score"`
	MaxScore         float64        `gorm:"not null" json:"max_score"`
	Percentage       float64        `gorm:"not null" json:"percentage"`
	Feedback         string         `gorm:"type:text" json:"feedback"`
	DetailedFeedback datatypes.JSON `json:"detailed_feedback"`
	Method           string         `gorm:"size:32;not null" json:"method"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// QuestionGrade is one entry of GradingResult.DetailedFeedback.
type QuestionGrade struct {
	QuestionID   string  `json:"question_id"`
	QuestionText string  `json:"question_text"`
	Score        float64 `json:"score"`
	MaxScore     float64 `json:"max_score"`
	Feedback     string  `json:"feedback"`
}

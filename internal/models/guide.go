package models

import (
	"time"

	"gorm.io/datatypes"
)

// MarkingGuide is the marking scheme a submission is graded against.
type MarkingGuide struct {
	ID                   string         `gorm:"primaryKey;size:64" json:"id"`
	UserID               string         `gorm:"size:64;index" json:"user_id"`
	Title                string         `gorm:"size:255" json:"title"`
	ContentText          string         `gorm:"type:text" json:"content_text"`
	Questions            datatypes.JSON `json:"questions"`
	MaxQuestionsToAnswer *int           `json:"max_questions_to_answer"`
	TotalMarks           float64        `gorm:"default:0" json:"total_marks"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// QuestionSpecs decodes the stored question list.
func (g MarkingGuide) QuestionSpecs() ([]QuestionSpec, error) {
	return DecodeQuestions(g.Questions)
}

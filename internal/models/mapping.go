package models

import "time"

// Mapping methods.
const (
	MappingMethodLLM            = "llm"
	MappingMethodLLMRegenerated = "llm_regenerated"
	MappingMethodGuideDirect    = "guide_direct"
	MappingMethodManual         = "manual"
)

// Mapping links one guide question to the student's answer for it. MaxScore is
// always taken from the guide.
type Mapping struct {
	ID            string    `gorm:"primaryKey;size:64" json:"id"`
	SubmissionID  string    `gorm:"size:64;not null;index:idx_mapping_scope" json:"submission_id"`
	GuideID       string    `gorm:"size:64;not null;index:idx_mapping_scope" json:"guide_id"`
	QuestionID    string    `gorm:"size:64;not null" json:"question_id"`
	QuestionText  string    `gorm:"type:text" json:"question_text"`
	StudentAnswer string    `gorm:"type:text" json:"student_answer"`
	MaxScore      float64   `gorm:"not null" json:"max_score"`
	MatchScore    float64   `gorm:"default:0" json:"match_score"`
	MatchReason   string    `gorm:"type:text" json:"match_reason"`
	Method        string    `gorm:"size:32;not null" json:"method"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName keeps the mapping table name explicit.
func (Mapping) TableName() string {
	return "answer_mappings"
}

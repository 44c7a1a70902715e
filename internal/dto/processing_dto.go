package dto

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/noah-isme/gema-exam-grader/internal/models"
)

// Recognised processing options.
const (
	OptionUseCache = "use_cache"
	OptionForceOCR = "force_ocr"
)

// ProcessingRequest asks the orchestrator to grade one submission against one guide.
type ProcessingRequest struct {
	GuideID      string                 `json:"guide_id" validate:"required"`
	SubmissionID string                 `json:"submission_id" validate:"required"`
	UserID       string                 `json:"user_id" validate:"required"`
	Options      map[string]interface{} `json:"options,omitempty"`
}

// UseCache reports whether cached model responses may be reused. Defaults to true.
func (r ProcessingRequest) UseCache() bool {
	return boolOption(r.Options, OptionUseCache, true)
}

// ForceOCR reports whether stored text should be ignored and re-extracted.
func (r ProcessingRequest) ForceOCR() bool {
	return boolOption(r.Options, OptionForceOCR, false)
}

// Key identifies the (submission, guide) pair for locking.
func (r ProcessingRequest) Key() string {
	return r.SubmissionID + "_" + r.GuideID
}

func boolOption(options map[string]interface{}, key string, fallback bool) bool {
	value, ok := options[key]
	if !ok {
		return fallback
	}
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	case float64:
		return v != 0
	}
	return fallback
}

// ProcessSubmissionRequest is the HTTP body for processing one submission.
type ProcessSubmissionRequest struct {
	GuideID string                 `json:"guide_id" validate:"required"`
	Options map[string]interface{} `json:"options"`
}

// BatchProcessRequest grades several submissions against one guide.
type BatchProcessRequest struct {
	GuideID       string                 `json:"guide_id" validate:"required"`
	SubmissionIDs []string               `json:"submission_ids" validate:"required,min=1,max=100,dive,required"`
	Options       map[string]interface{} `json:"options"`
}

// ProcessingResponse is the outcome of one pipeline run.
type ProcessingResponse struct {
	Success        bool                   `json:"success"`
	ResultID       string                 `json:"result_id,omitempty"`
	Score          *float64               `json:"score,omitempty"`
	MaxScore       *float64               `json:"max_score,omitempty"`
	Percentage     *float64               `json:"percentage,omitempty"`
	Feedback       string                 `json:"feedback,omitempty"`
	Mappings       []MappingResponse      `json:"mappings,omitempty"`
	ProcessingTime float64                `json:"processing_time"`
	Error          string                 `json:"error,omitempty"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// ErrorKind returns the failure classification stored in metadata.
func (r ProcessingResponse) ErrorKind() string {
	if kind, ok := r.Metadata["error_kind"].(string); ok {
		return kind
	}
	return ""
}

// BatchProcessResponse aggregates per-submission outcomes.
type BatchProcessResponse struct {
	GuideID   string                        `json:"guide_id"`
	Total     int                           `json:"total"`
	Succeeded int                           `json:"succeeded"`
	Failed    int                           `json:"failed"`
	Results   map[string]ProcessingResponse `json:"results"`
}

// MappingResponse serialises a stored answer mapping.
type MappingResponse struct {
	ID            string  `json:"id,omitempty"`
	QuestionID    string  `json:"question_id"`
	QuestionText  string  `json:"question_text"`
	StudentAnswer string  `json:"student_answer"`
	MaxScore      float64 `json:"max_score"`
	MatchScore    float64 `json:"match_score"`
	MatchReason   string  `json:"match_reason,omitempty"`
	Method        string  `json:"method"`
}

// NewMappingResponse converts a mapping model.
func NewMappingResponse(m models.Mapping) MappingResponse {
	return MappingResponse{
		ID:            m.ID,
		QuestionID:    m.QuestionID,
		QuestionText:  m.QuestionText,
		StudentAnswer: m.StudentAnswer,
		MaxScore:      m.MaxScore,
		MatchScore:    m.MatchScore,
		MatchReason:   m.MatchReason,
		Method:        m.Method,
	}
}

// NewMappingResponseSlice converts a list of mappings.
func NewMappingResponseSlice(items []models.Mapping) []MappingResponse {
	responses := make([]MappingResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewMappingResponse(item))
	}
	return responses
}

// GradingResultResponse is the stored summary plus its mappings.
type GradingResultResponse struct {
	ResultID     string                 `json:"result_id"`
	SubmissionID string                 `json:"submission_id"`
	GuideID      string                 `json:"guide_id"`
	Score        float64                `json:"score"`
	MaxScore     float64                `json:"max_score"`
	Percentage   float64                `json:"percentage"`
	Feedback     string                 `json:"feedback"`
	Method       string                 `json:"method"`
	Grades       []models.QuestionGrade `json:"grades"`
	Mappings     []MappingResponse      `json:"mappings"`
	CreatedAt    time.Time              `json:"created_at"`
}

// NewGradingResultResponse builds the results payload. Undecodable detail is returned as no grades.
func NewGradingResultResponse(result models.GradingResult, mappings []models.Mapping) GradingResultResponse {
	grades := []models.QuestionGrade{}
	if len(result.DetailedFeedback) > 0 {
		_ = json.Unmarshal(result.DetailedFeedback, &grades)
	}

	return GradingResultResponse{
		ResultID:     result.ID,
		SubmissionID: result.SubmissionID,
		GuideID:      result.GuideID,
		Score:        result.Score,
		MaxScore:     result.MaxScore,
		Percentage:   result.Percentage,
		Feedback:     result.Feedback,
		Method:       result.Method,
		Grades:       grades,
		Mappings:     NewMappingResponseSlice(mappings),
		CreatedAt:    result.CreatedAt,
	}
}

// SubmissionSummary is the list view of a submission, without its text.
type SubmissionSummary struct {
	ID               string     `json:"id"`
	StudentName      string     `json:"student_name"`
	Filename         string     `json:"filename"`
	ProcessingStatus string     `json:"processing_status"`
	ProcessingError  string     `json:"processing_error,omitempty"`
	OCRConfidence    float64    `json:"ocr_confidence"`
	HasText          bool       `json:"has_text"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// NewSubmissionSummaries converts submissions for listing.
func NewSubmissionSummaries(items []models.Submission) []SubmissionSummary {
	summaries := make([]SubmissionSummary, 0, len(items))
	for _, s := range items {
		summaries = append(summaries, SubmissionSummary{
			ID:               s.ID,
			StudentName:      s.StudentName,
			Filename:         s.Filename,
			ProcessingStatus: s.ProcessingStatus,
			ProcessingError:  s.ProcessingError,
			OCRConfidence:    s.OCRConfidence,
			HasText:          s.HasText(),
			ProcessedAt:      s.ProcessedAt,
			CreatedAt:        s.CreatedAt,
		})
	}
	return summaries
}

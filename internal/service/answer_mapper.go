package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/gema-exam-grader/internal/models"
	"github.com/noah-isme/gema-exam-grader/internal/observability"
	"github.com/noah-isme/gema-exam-grader/pkg/ai"
)

const mappingTemperature float32 = 0.1

const unverifiedQuestionTag = "[unverified question id]"

const mappingSystemPrompt = `You map a student's exam answers onto the questions of a marking guide.
Locate the text the student wrote for each question. Never invent, complete or correct an answer.
Skip questions the student did not attempt. Respond with a single JSON object:
{"mappings": [{"question_id": "<guide question number, with sub-part letter when applicable>",
"question_text": "<question text>", "student_answer": "<verbatim answer>",
"match_score": <0..1 confidence that the answer belongs to the question>,
"match_reason": "<short reason>"}]}`

var mappingSchema = ai.MustCompileSchema("answer_mappings.json", `{
  "type": "object",
  "required": ["mappings"],
  "properties": {
    "mappings": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["question_id", "student_answer"],
        "properties": {
          "question_id": {"type": ["string", "integer"]},
          "question_text": {"type": "string"},
          "student_answer": {"type": "string"},
          "match_score": {"type": "number"},
          "match_reason": {"type": "string"}
        }
      }
    }
  }
}`)

// MappingRequest carries everything one mapping pass needs.
type MappingRequest struct {
	SubmissionID   string
	GuideID        string
	Questions      []models.QuestionSpec
	GuideText      string
	SubmissionText string
	UseCache       bool
	Method         string
}

// AnswerMapper locates the student's answer for each guide question.
type AnswerMapper interface {
	Map(ctx context.Context, req MappingRequest) ([]models.Mapping, error)
}

// MapperConfig tunes unknown question handling.
type MapperConfig struct {
	UnknownPolicy   string
	UnknownMaxScore float64
}

type answerMapper struct {
	model  ai.LanguageModel
	config MapperConfig
	logger zerolog.Logger
}

// NewAnswerMapper constructs an LLM backed answer mapper.
func NewAnswerMapper(model ai.LanguageModel, config MapperConfig, logger zerolog.Logger) AnswerMapper {
	if config.UnknownPolicy == "" {
		config.UnknownPolicy = UnknownQuestionFallback
	}
	if config.UnknownMaxScore <= 0 {
		config.UnknownMaxScore = DefaultUnknownMaxScore
	}
	return &answerMapper{
		model:  model,
		config: config,
		logger: logger.With().Str("component", "answer_mapper").Logger(),
	}
}

type mappedAnswer struct {
	QuestionID    flexibleID `json:"question_id"`
	QuestionText  string     `json:"question_text"`
	StudentAnswer string     `json:"student_answer"`
	MatchScore    float64    `json:"match_score"`
	MatchReason   string     `json:"match_reason"`
}

type mappingPayload struct {
	Mappings []mappedAnswer `json:"mappings"`
}

// flexibleID accepts question ids emitted as either strings or numbers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(strings.TrimSpace(s))
		return nil
	}
	*f = flexibleID(string(data))
	return nil
}

func (m *answerMapper) Map(ctx context.Context, req MappingRequest) ([]models.Mapping, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-exam-grader/internal/service/answer_mapper")
	ctx, span := tracer.Start(ctx, "grading.map_answers")
	span.SetAttributes(
		attribute.String("grading.submission_id", req.SubmissionID),
		attribute.String("grading.guide_id", req.GuideID),
		attribute.Bool("grading.use_cache", req.UseCache),
	)
	defer span.End()

	method := req.Method
	if method == "" {
		method = models.MappingMethodLLM
	}

	raw, err := m.model.Generate(ctx, ai.GenerateRequest{
		SystemPrompt: mappingSystemPrompt,
		UserPrompt:   buildMappingPrompt(req),
		Temperature:  mappingTemperature,
		UseCache:     req.UseCache,
		JSONMode:     true,
		Cacheable:    mappingSchema.Accepts,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm_failed")
		return nil, fmt.Errorf("%w: %w", ErrAnswerMapping, err)
	}

	var payload mappingPayload
	if err := mappingSchema.DecodeObject(raw, &payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse_failed")
		m.logger.Warn().Err(err).Str("submission_id", req.SubmissionID).Msg("mapping response unusable")
		return nil, fmt.Errorf("%w: %w", ErrAnswerMapping, err)
	}
	if len(payload.Mappings) == 0 {
		span.SetStatus(codes.Error, "no_mappings")
		return nil, fmt.Errorf("%w: model returned no mappings", ErrAnswerMapping)
	}

	mappings := make([]models.Mapping, 0, len(payload.Mappings))
	for _, entry := range payload.Mappings {
		mapping, keep := m.toMapping(req, method, entry)
		if keep {
			mappings = append(mappings, mapping)
		}
	}

	span.SetAttributes(attribute.Int("grading.mappings", len(mappings)))
	m.logger.Debug().
		Str("submission_id", req.SubmissionID).
		Str("guide_id", req.GuideID).
		Int("returned", len(payload.Mappings)).
		Int("kept", len(mappings)).
		Msg("answers mapped")
	return mappings, nil
}

func (m *answerMapper) toMapping(req MappingRequest, method string, entry mappedAnswer) (models.Mapping, bool) {
	rawID := strings.TrimSpace(string(entry.QuestionID))
	mapping := models.Mapping{
		SubmissionID:  req.SubmissionID,
		GuideID:       req.GuideID,
		QuestionID:    rawID,
		QuestionText:  strings.TrimSpace(entry.QuestionText),
		StudentAnswer: strings.TrimSpace(entry.StudentAnswer),
		MatchScore:    clamp(entry.MatchScore, 0, 1),
		MatchReason:   strings.TrimSpace(entry.MatchReason),
		Method:        method,
	}

	resolved, ok := ResolveQuestion(req.Questions, rawID)
	if ok && resolved.MaxScore > 0 {
		mapping.QuestionID = resolved.ID
		mapping.MaxScore = resolved.MaxScore
		if mapping.QuestionText == "" {
			mapping.QuestionText = resolved.Text
		}
		return mapping, true
	}

	observability.UnknownQuestionIDs().WithLabelValues(m.config.UnknownPolicy).Inc()
	if m.config.UnknownPolicy == UnknownQuestionReject {
		m.logger.Warn().Str("submission_id", req.SubmissionID).Str("question_id", rawID).Msg("dropping mapping for unknown question id")
		return models.Mapping{}, false
	}

	m.logger.Warn().Str("submission_id", req.SubmissionID).Str("question_id", rawID).Msg("unknown question id, using default max score")
	mapping.MaxScore = m.config.UnknownMaxScore
	mapping.MatchReason = strings.TrimSpace(mapping.MatchReason + " " + unverifiedQuestionTag)
	return mapping, true
}

func buildMappingPrompt(req MappingRequest) string {
	var b strings.Builder
	b.WriteString("MARKING GUIDE QUESTIONS:\n")
	b.WriteString(renderGuideStructure(req.Questions))
	if len(req.Questions) == 0 && strings.TrimSpace(req.GuideText) != "" {
		b.WriteString(req.GuideText)
		b.WriteString("\n")
	}
	b.WriteString("\nSTUDENT SUBMISSION:\n")
	b.WriteString(req.SubmissionText)
	b.WriteString("\n")
	return b.String()
}

func renderGuideStructure(questions []models.QuestionSpec) string {
	var b strings.Builder
	for _, question := range questions {
		switch q := question.(type) {
		case models.GroupedQuestion:
			fmt.Fprintf(&b, "Question %s (%g marks, answer each part): %s\n", q.Number, q.Marks, q.Text)
			number, _ := ParseQuestionID(q.Number)
			for _, part := range q.SubParts {
				letter := strings.TrimLeft(strings.ToLower(strings.Trim(part, "()., ")), "0123456789")
				fmt.Fprintf(&b, "  - %s%s: %g marks\n", number, letter, q.SubPartMarks(letter))
			}
			if q.Criteria != "" {
				fmt.Fprintf(&b, "  Criteria: %s\n", q.Criteria)
			}
		case models.SingleQuestion:
			fmt.Fprintf(&b, "Question %s (%g marks): %s\n", q.Number, q.Marks, q.Text)
		}
	}
	return b.String()
}

func clamp(value, low, high float64) float64 {
	switch {
	case value < low:
		return low
	case value > high:
		return high
	}
	return value
}

package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/gema-exam-grader/internal/models"
	"github.com/noah-isme/gema-exam-grader/internal/observability"
	"github.com/noah-isme/gema-exam-grader/pkg/ai"
)

const gradingTemperature float32 = 0.2

const (
	fallbackFeedback  = "Grading failed - partial credit given"
	missingFeedback   = "No grade returned"
	noMappingFeedback = "No answers could be matched to the marking guide"
)

const gradingSystemPrompt = `You are an experienced examiner grading a student's answers against a marking guide.
Award each answer a score between 0 and its max_score, following the marking criteria.
Respond with a single JSON object:
{"grades": [{"question_id": "<id as given>", "score": <number>, "feedback": "<one or two sentences>"}],
"overall_feedback": "<short summary for the student>"}`

var gradingSchema = ai.MustCompileSchema("grades.json", `{
  "type": "object",
  "required": ["grades"],
  "properties": {
    "grades": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["question_id", "score"],
        "properties": {
          "question_id": {"type": ["string", "integer"]},
          "score": {"type": "number"},
          "feedback": {"type": "string"}
        }
      }
    },
    "overall_feedback": {"type": "string"}
  }
}`)

// GradingRequest carries the validated mappings to grade.
type GradingRequest struct {
	SubmissionID string
	GuideID      string
	GuideText    string
	Mappings     []models.Mapping
	UseCache     bool
}

// GradingOutcome is the scored result of one grading pass.
type GradingOutcome struct {
	Grades     []models.QuestionGrade
	Score      float64
	MaxScore   float64
	Percentage float64
	Feedback   string
	Method     string
}

// GradingEngine scores mapped answers.
type GradingEngine interface {
	Grade(ctx context.Context, req GradingRequest) (GradingOutcome, error)
}

type gradingEngine struct {
	model     ai.LanguageModel
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewGradingEngine constructs an LLM backed grading engine.
func NewGradingEngine(model ai.LanguageModel, logger zerolog.Logger) GradingEngine {
	return &gradingEngine{
		model:     model,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "grading_engine").Logger(),
	}
}

type gradeEntry struct {
	QuestionID flexibleID `json:"question_id"`
	Score      float64    `json:"score"`
	Feedback   string     `json:"feedback"`
}

type gradingPayload struct {
	Grades          []gradeEntry `json:"grades"`
	OverallFeedback string       `json:"overall_feedback"`
}

func (e *gradingEngine) Grade(ctx context.Context, req GradingRequest) (GradingOutcome, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-exam-grader/internal/service/grading_engine")
	ctx, span := tracer.Start(ctx, "grading.grade")
	span.SetAttributes(
		attribute.String("grading.submission_id", req.SubmissionID),
		attribute.Int("grading.mappings", len(req.Mappings)),
	)
	defer span.End()

	if len(req.Mappings) == 0 {
		return GradingOutcome{Grades: []models.QuestionGrade{}, Feedback: noMappingFeedback, Method: models.GradingMethodLLM}, nil
	}

	raw, err := e.model.Generate(ctx, ai.GenerateRequest{
		SystemPrompt: gradingSystemPrompt,
		UserPrompt:   buildGradingPrompt(req),
		Temperature:  gradingTemperature,
		UseCache:     req.UseCache,
		JSONMode:     true,
		Cacheable:    gradingSchema.Accepts,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm_failed")
		return GradingOutcome{}, fmt.Errorf("%w: %w", ErrGrading, err)
	}

	var payload gradingPayload
	if err := gradingSchema.DecodeObject(raw, &payload); err != nil {
		if !errors.Is(err, ai.ErrNoJSONObject) && !errors.Is(err, ai.ErrResponseSchema) {
			return GradingOutcome{}, fmt.Errorf("%w: %w", ErrGrading, err)
		}
		span.SetAttributes(attribute.Bool("grading.fallback", true))
		observability.GradingFallbacks().Inc()
		e.logger.Warn().Err(err).Str("submission_id", req.SubmissionID).Msg("grading response unusable, awarding partial credit")
		return PartialCreditOutcome(req.Mappings), nil
	}

	outcome, err := e.score(req.Mappings, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown_question")
		return GradingOutcome{}, fmt.Errorf("%w: %w", ErrGrading, err)
	}
	span.SetAttributes(attribute.Float64("grading.percentage", outcome.Percentage))
	return outcome, nil
}

func (e *gradingEngine) score(mappings []models.Mapping, payload gradingPayload) (GradingOutcome, error) {
	index := make(map[string]int, len(mappings))
	for i, mapping := range mappings {
		index[questionKey(mapping.QuestionID)] = i
	}

	returned := make(map[int]gradeEntry, len(payload.Grades))
	for _, entry := range payload.Grades {
		position, ok := index[questionKey(string(entry.QuestionID))]
		if !ok {
			return GradingOutcome{}, fmt.Errorf("%w: %q", ErrUnknownGradedQuestion, string(entry.QuestionID))
		}
		if _, dup := returned[position]; !dup {
			returned[position] = entry
		}
	}

	grades := make([]models.QuestionGrade, 0, len(mappings))
	for i, mapping := range mappings {
		grade := models.QuestionGrade{
			QuestionID:   mapping.QuestionID,
			QuestionText: mapping.QuestionText,
			MaxScore:     mapping.MaxScore,
			Feedback:     missingFeedback,
		}
		if entry, ok := returned[i]; ok {
			grade.Score = clamp(entry.Score, 0, mapping.MaxScore)
			grade.Feedback = e.clean(entry.Feedback)
		}
		grades = append(grades, grade)
	}

	return summarize(grades, e.clean(payload.OverallFeedback), models.GradingMethodLLM), nil
}

func (e *gradingEngine) clean(text string) string {
	return strings.TrimSpace(html.UnescapeString(e.sanitizer.Sanitize(text)))
}

// PartialCreditOutcome awards half of each mapping's max score.
func PartialCreditOutcome(mappings []models.Mapping) GradingOutcome {
	grades := make([]models.QuestionGrade, 0, len(mappings))
	for _, mapping := range mappings {
		grades = append(grades, models.QuestionGrade{
			QuestionID:   mapping.QuestionID,
			QuestionText: mapping.QuestionText,
			Score:        mapping.MaxScore * 0.5,
			MaxScore:     mapping.MaxScore,
			Feedback:     fallbackFeedback,
		})
	}
	return summarize(grades, fallbackFeedback, models.GradingMethodFallback)
}

func summarize(grades []models.QuestionGrade, feedback, method string) GradingOutcome {
	outcome := GradingOutcome{Grades: grades, Feedback: feedback, Method: method}
	for _, grade := range grades {
		outcome.Score += grade.Score
		outcome.MaxScore += grade.MaxScore
	}
	if outcome.MaxScore > 0 {
		outcome.Percentage = outcome.Score / outcome.MaxScore * 100
	}
	return outcome
}

func questionKey(id string) string {
	number, letter := ParseQuestionID(id)
	return number + letter
}

func buildGradingPrompt(req GradingRequest) string {
	var b strings.Builder
	if strings.TrimSpace(req.GuideText) != "" {
		b.WriteString("MARKING GUIDE:\n")
		b.WriteString(req.GuideText)
		b.WriteString("\n\n")
	}
	b.WriteString("ANSWERS TO GRADE:\n")
	for _, mapping := range req.Mappings {
		fmt.Fprintf(&b, "- question_id: %s\n  max_score: %g\n  question: %s\n  answer: %s\n",
			mapping.QuestionID, mapping.MaxScore, mapping.QuestionText, mapping.StudentAnswer)
	}
	return b.String()
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	llmDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grader",
		Subsystem: "llm",
		Name:      "request_duration_seconds",
		Help:      "Duration of language model requests",
	}, []string{"provider", "model"})

	llmFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "llm",
		Name:      "request_failures_total",
		Help:      "Number of failed language model requests",
	}, []string{"provider", "model"})
)

// OpenAIConfig defines configuration options for the OpenAI model.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Logger    zerolog.Logger
}

// OpenAIModel implements LanguageModel against the OpenAI chat completion API.
type OpenAIModel struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIModel builds a new model client using the provided configuration.
func NewOpenAIModel(cfg OpenAIConfig) (*OpenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIModel{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-exam-grader/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "openai_model").Logger(),
	}, nil
}

func (m *OpenAIModel) Provider() string  { return "openai" }
func (m *OpenAIModel) ModelName() string { return m.cfg.Model }

// Generate sends the prompt pair to OpenAI and returns the first choice's content.
func (m *OpenAIModel) Generate(parent context.Context, req GenerateRequest) (string, error) {
	ctx, span := m.tracer.Start(parent, "openai.generate", trace.WithAttributes(
		attribute.String("model", m.cfg.Model),
		attribute.Bool("json_mode", req.JSONMode),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       m.cfg.Model,
		MaxTokens:   m.cfg.MaxTokens,
		Temperature: req.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
	}
	if req.JSONMode {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := m.client.CreateChatCompletion(ctx, request)
	llmDuration.WithLabelValues(m.Provider(), m.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		llmFailures.WithLabelValues(m.Provider(), m.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", classifyOpenAIError(fmt.Errorf("openai generate: %w", err))
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		llmFailures.WithLabelValues(m.Provider(), m.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(attribute.Int("usage.total_tokens", resp.Usage.TotalTokens))
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// HealthCheck lists models to confirm the key and endpoint are usable.
func (m *OpenAIModel) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := m.client.ListModels(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("openai health check failed")
		return false
	}
	return true
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return Permanent(err)
		}
	}
	return err
}

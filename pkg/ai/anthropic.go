package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AnthropicConfig configures the Anthropic Messages API client.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// AnthropicModel implements LanguageModel using the Anthropic Messages API.
type AnthropicModel struct {
	cfg    AnthropicConfig
	client anthropic.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewAnthropicModel constructs an Anthropic-backed model. Retries are left to
// RetryingModel, so the SDK's own retry loop is disabled.
func NewAnthropicModel(cfg AnthropicConfig) (*AnthropicModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicModel{
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
		tracer: otel.Tracer("github.com/noah-isme/gema-exam-grader/pkg/ai/anthropic"),
		logger: cfg.Logger.With().Str("component", "anthropic_model").Logger(),
	}, nil
}

func (m *AnthropicModel) Provider() string  { return "anthropic" }
func (m *AnthropicModel) ModelName() string { return m.cfg.Model }

// IsAvailable reports whether the client is configured; the Messages API has no
// free probe endpoint.
func (m *AnthropicModel) IsAvailable() bool {
	return m.cfg.APIKey != ""
}

func (m *AnthropicModel) Generate(parent context.Context, req GenerateRequest) (string, error) {
	ctx, span := m.tracer.Start(parent, "anthropic.generate", trace.WithAttributes(
		attribute.String("model", m.cfg.Model),
	))
	defer span.End()

	userPrompt := req.UserPrompt
	if req.JSONMode {
		userPrompt += "\n\nRespond with a single JSON object only."
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(m.cfg.Model),
		MaxTokens:   m.cfg.MaxTokens,
		Temperature: anthropic.Float(float64(req.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	start := time.Now()
	message, err := m.client.Messages.New(ctx, params)
	llmDuration.WithLabelValues(m.Provider(), m.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", m.fail(span, classifyAnthropicError(fmt.Errorf("calling anthropic API: %w", err)))
	}

	var builder strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}
	if builder.Len() == 0 {
		return "", m.fail(span, fmt.Errorf("empty response from anthropic (stop_reason: %s)", message.StopReason))
	}

	m.logger.Debug().
		Str("model", m.cfg.Model).
		Str("stop_reason", string(message.StopReason)).
		Dur("latency", time.Since(start)).
		Msg("anthropic completion received")
	return strings.TrimSpace(builder.String()), nil
}

func (m *AnthropicModel) fail(span trace.Span, err error) error {
	llmFailures.WithLabelValues(m.Provider(), m.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// classifyAnthropicError marks client errors other than rate limiting as
// permanent.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		if status >= http.StatusBadRequest && status < http.StatusInternalServerError && status != http.StatusTooManyRequests {
			return Permanent(err)
		}
	}
	return err
}

package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

const visionPrompt = `Transcribe all handwritten and printed text in this exam answer sheet exactly as written.
Preserve question numbers and line breaks. Do not correct spelling or add commentary.
Respond with JSON: {"text": "<transcription>", "confidence": <number between 0 and 1>}`

// OpenAIVisionExtractor transcribes images with a multimodal chat model.
type OpenAIVisionExtractor struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    zerolog.Logger
}

// OpenAIVisionConfig configures the multimodal transcription model.
type OpenAIVisionConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewOpenAIVisionExtractor builds a vision extractor. It returns nil when no API key is configured.
func NewOpenAIVisionExtractor(cfg OpenAIVisionConfig, logger zerolog.Logger) *OpenAIVisionExtractor {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &OpenAIVisionExtractor{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: maxTokens,
		logger:    logger.With().Str("component", "openai_vision").Logger(),
	}
}

func (e *OpenAIVisionExtractor) Extract(ctx context.Context, filePath string) (Result, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("read submission file: %w", err)
	}
	mime := mimetype.Detect(data).String()
	if !strings.HasPrefix(mime, "image/") {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mime)
	}

	dataURI := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: visionPrompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURI,
					Detail: openai.ImageURLDetailHigh,
				}},
			},
		}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("openai vision request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("openai vision returned no choices")
	}

	var payload struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		e.logger.Warn().Err(err).Msg("vision response was not json, using raw content")
		payload.Text = content
		payload.Confidence = 0.5
	}

	text := strings.TrimSpace(payload.Text)
	return Result{
		Success:    text != "",
		Text:       text,
		Confidence: clampConfidence(payload.Confidence),
		Provider:   "openai_vision",
		MimeType:   mime,
		Pages:      1,
	}, nil
}

// IsAvailable reports whether the extractor has a client.
func (e *OpenAIVisionExtractor) IsAvailable() bool {
	return e != nil && e.client != nil
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

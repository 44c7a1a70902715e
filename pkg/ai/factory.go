package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ProviderConfig selects and configures a LanguageModel provider.
type ProviderConfig struct {
	Provider        string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	AnthropicModel  string
	Retry           RetryPolicy
	Cache           CachePolicy
	Timeout         time.Duration
}

// NewLanguageModel builds the configured provider wrapped with cache and retry.
func NewLanguageModel(cfg ProviderConfig, cache *redis.Client, logger zerolog.Logger) (LanguageModel, error) {
	var base LanguageModel
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		model, err := NewOpenAIModel(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		base = model
	case "anthropic":
		model, err := NewAnthropicModel(AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.AnthropicModel,
			Timeout: cfg.Timeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		base = model
	default:
		return nil, fmt.Errorf("unknown language model provider: %s", cfg.Provider)
	}

	retrying := NewRetryingModel(base, cfg.Retry, logger)
	return NewCachedModel(retrying, cache, cfg.Cache, logger), nil
}

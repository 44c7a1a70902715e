package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachePolicy controls how long generated responses are reused.
type CachePolicy struct {
	TTL    time.Duration
	Prefix string
}

// CachedModel stores responses in Redis keyed by the prompt contents. Only
// requests with UseCache set are read from or written to the cache, and only
// outputs accepted by the request's Cacheable func are written.
type CachedModel struct {
	next   LanguageModel
	cache  *redis.Client
	policy CachePolicy
	logger zerolog.Logger
}

// NewCachedModel wraps next with a Redis response cache. A nil client disables caching.
func NewCachedModel(next LanguageModel, cache *redis.Client, policy CachePolicy, logger zerolog.Logger) *CachedModel {
	if policy.Prefix == "" {
		policy.Prefix = "grader:llm"
	}
	return &CachedModel{
		next:   next,
		cache:  cache,
		policy: policy,
		logger: logger.With().Str("component", "llm_cache").Logger(),
	}
}

func (m *CachedModel) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if m.cache == nil || !req.UseCache || m.policy.TTL <= 0 {
		return m.next.Generate(ctx, req)
	}

	key := m.cacheKey(req)
	cached, err := m.cache.Get(ctx, key).Result()
	switch {
	case err == nil:
		m.logger.Debug().Str("key", key).Msg("llm cache hit")
		return cached, nil
	case !errors.Is(err, redis.Nil):
		m.logger.Warn().Err(err).Msg("failed to read llm cache")
	}

	output, err := m.next.Generate(ctx, req)
	if err != nil {
		return "", err
	}

	if req.Cacheable != nil && !req.Cacheable(output) {
		m.logger.Debug().Str("key", key).Msg("llm output not cacheable")
		return output, nil
	}

	if err := m.cache.Set(ctx, key, output, m.policy.TTL).Err(); err != nil {
		m.logger.Warn().Err(err).Msg("failed to store llm cache")
	}
	return output, nil
}

// HealthCheck delegates to the wrapped model when it supports probing.
func (m *CachedModel) HealthCheck(ctx context.Context) bool {
	return probe(ctx, m.next)
}

func (m *CachedModel) cacheKey(req GenerateRequest) string {
	model := ""
	if info, ok := m.next.(ModelInfo); ok {
		model = info.Provider() + "/" + info.ModelName()
	}

	hash := sha256.New()
	_, _ = fmt.Fprintf(hash, "%s\x00", model)
	_, _ = fmt.Fprintf(hash, "%s\x00%s\x00%.3f\x00%t", req.SystemPrompt, req.UserPrompt, req.Temperature, req.JSONMode)
	return m.policy.Prefix + ":" + hex.EncodeToString(hash.Sum(nil))
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GRADER_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, "openai", cfg.AIProvider)
	require.Equal(t, 2, cfg.LLMRetries)
	require.Equal(t, time.Second, cfg.LLMRetryDelay)
	require.Equal(t, 15*time.Minute, cfg.LockTTL)
	require.Equal(t, "fallback", cfg.UnknownPolicy)
	require.Equal(t, 10.0, cfg.UnknownMaxScore)
	require.True(t, cfg.EnforceOwnership)
	require.False(t, cfg.SeedEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GRADER_JWT_SECRET", "secret")
	t.Setenv("GRADER_AI_PROVIDER", "Anthropic")
	t.Setenv("GRADER_OCR_PROVIDER", "gcp_vision")
	t.Setenv("GRADER_GRADING_UNKNOWN_POLICY", "reject")
	t.Setenv("GRADER_LOCK_TTL", "30s")
	t.Setenv("GRADER_APP_PORT", ":9000")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "anthropic", cfg.AIProvider)
	require.Equal(t, "gcp_vision", cfg.OCRProvider)
	require.Equal(t, "reject", cfg.UnknownPolicy)
	require.Equal(t, 30*time.Second, cfg.LockTTL)
	require.Equal(t, ":9000", cfg.HTTPAddress())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("GRADER_JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("GRADER_JWT_SECRET", "secret")
	t.Setenv("GRADER_OCR_PROVIDER", "tesseract")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("GRADER_OCR_PROVIDER", "text")
	t.Setenv("GRADER_LLM_TIMEOUT", "soon")
	_, err = Load()
	require.Error(t, err)
}

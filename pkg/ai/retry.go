package ai

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// RetryPolicy bounds how often a failing call is attempted.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Backoff doubles the delay after each failed attempt when set.
	Backoff bool
}

// DefaultRetryPolicy matches the service initialisation defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs fn until it succeeds, returns a permanent error, the context ends,
// or the attempts are exhausted. It returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return attempt, nil
		}
		if IsPermanent(err) || attempt == attempts {
			return attempt, err
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, ctx.Err()
			case <-timer.C:
			}
		}
		if p.Backoff {
			delay *= 2
		}
	}
	return attempts, err
}

// RetryingModel retries a LanguageModel according to a RetryPolicy.
type RetryingModel struct {
	next   LanguageModel
	policy RetryPolicy
	logger zerolog.Logger
}

// NewRetryingModel wraps next with policy.
func NewRetryingModel(next LanguageModel, policy RetryPolicy, logger zerolog.Logger) *RetryingModel {
	return &RetryingModel{
		next:   next,
		policy: policy,
		logger: logger.With().Str("component", "llm_retry").Logger(),
	}
}

func (m *RetryingModel) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var output string
	attempts, err := m.policy.Do(ctx, func(ctx context.Context) error {
		out, err := m.next.Generate(ctx, req)
		if err != nil {
			m.logger.Warn().Err(err).Msg("language model call failed")
			return err
		}
		output = out
		return nil
	})
	if err != nil {
		m.logger.Error().Err(err).Int("attempts", attempts).Msg("language model call exhausted retries")
		return "", err
	}
	return output, nil
}

// HealthCheck delegates to the wrapped model when it supports probing.
func (m *RetryingModel) HealthCheck(ctx context.Context) bool {
	return probe(ctx, m.next)
}

func probe(ctx context.Context, model LanguageModel) bool {
	switch checker := model.(type) {
	case interface{ HealthCheck(context.Context) bool }:
		return checker.HealthCheck(ctx)
	case interface{ IsAvailable() bool }:
		return checker.IsAvailable()
	default:
		return true
	}
}

func (m *RetryingModel) Provider() string {
	if info, ok := m.next.(ModelInfo); ok {
		return info.Provider()
	}
	return ""
}

func (m *RetryingModel) ModelName() string {
	if info, ok := m.next.(ModelInfo); ok {
		return info.ModelName()
	}
	return ""
}

package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type scriptedModel struct {
	outputs []string
	errs    []error
	calls   int
	last    GenerateRequest
}

func (m *scriptedModel) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	idx := m.calls
	m.calls++
	m.last = req
	if idx < len(m.errs) && m.errs[idx] != nil {
		return "", m.errs[idx]
	}
	if idx < len(m.outputs) {
		return m.outputs[idx], nil
	}
	return "", errors.New("no scripted output")
}

func TestRetryPolicyStopsAfterMaxAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}

	calls := 0
	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, 2, attempts)
	require.Equal(t, 2, calls)
}

func TestRetryPolicyDoesNotRetryPermanentErrors(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	_, err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errors.New("bad request"))
	})
	require.Error(t, err)
	require.True(t, IsPermanent(err))
	require.Equal(t, 1, calls)
}

func TestRetryPolicyHonoursContextCancellation(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := policy.Do(ctx, func(context.Context) error { return errors.New("fail") })
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetryingModelRecoversFromTransientFailure(t *testing.T) {
	next := &scriptedModel{
		errs:    []error{errors.New("timeout"), nil},
		outputs: []string{"", `{"ok": true}`},
	}
	model := NewRetryingModel(next, RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}, zerolog.Nop())

	out, err := model.Generate(context.Background(), GenerateRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	require.Equal(t, `{"ok": true}`, out)
	require.Equal(t, 2, next.calls)
}

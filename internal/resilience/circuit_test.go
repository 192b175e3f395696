package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     reset,
	})
	cb.nowFunc = func() time.Time { return now }
	return cb, &now
}

func failing(context.Context) error { return errors.New("disk I/O error") }
func passing(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := testBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.Error(t, cb.Execute(ctx, failing))
		assert.Equal(t, CircuitClosed, cb.State())
	}
	require.Error(t, cb.Execute(ctx, failing))
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := testBreaker(2, time.Minute)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	require.NoError(t, cb.Execute(ctx, passing))
	require.Error(t, cb.Execute(ctx, failing))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, now := testBreaker(1, 10*time.Second)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	assert.Equal(t, CircuitOpen, cb.State())

	*now = now.Add(10 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, passing))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb, now := testBreaker(1, 10*time.Second)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	*now = now.Add(11 * time.Second)

	require.Error(t, cb.Execute(ctx, failing))
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, passing), ErrCircuitOpen)
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Second,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	now := time.Now()
	cb.nowFunc = func() time.Time { return now }

	_ = cb.Execute(context.Background(), failing)
	now = now.Add(2 * time.Second)
	_ = cb.Execute(context.Background(), passing)

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	assert.Equal(t, 5, cb.cfg.FailureThreshold)
	assert.Equal(t, 30*time.Second, cb.cfg.ResetTimeout)
	assert.Equal(t, "unknown", CircuitState(9).String())

	cfg := FromCircuitConfig(2, 4)
	assert.Equal(t, 2, cfg.FailureThreshold)
	assert.Equal(t, 4*time.Second, cfg.ResetTimeout)
}

package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker("test")
	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreakerWithConfig("test", CircuitBreakerConfig{
		MaxFailures:          2,
		Timeout:              time.Minute,
		HalfOpenMaxSuccesses: 1,
	})

	boom := errors.New("provider down")
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := cb.Execute(ctx, func() (interface{}, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}

	_, err := cb.Execute(ctx, func() (interface{}, error) { return "late", nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerHonoursCancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := cb.Execute(ctx, func() (interface{}, error) {
		called = true
		return nil, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

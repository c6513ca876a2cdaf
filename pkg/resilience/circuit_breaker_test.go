package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBroker = errors.New("broker unreachable")

func testBreaker() *CircuitBreaker {
	cfg := DefaultCircuitBreakerConfig("test")
	cfg.FailureThreshold = 3
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxRequests = 1
	return NewCircuitBreaker(cfg, nil, nil)
}

func fail(context.Context) error    { return errBroker }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_TripsAndRecovers(t *testing.T) {
	cb := testBreaker()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Run(ctx, fail), errBroker)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	err := cb.Run(ctx, succeed)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "test")

	require.Eventually(t, func() bool {
		return cb.Run(ctx, succeed) == nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_CancellationIsNotAFailure(t *testing.T) {
	cb := testBreaker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		err := cb.Run(ctx, func(ctx context.Context) error { return ctx.Err() })
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, "test", cb.Name())
}

func TestCircuitBreaker_FailureRatio(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("ratio")
	cfg.FailureThreshold = 100
	cfg.MinRequestsToTrip = 4
	cb := NewCircuitBreaker(cfg, nil, nil)
	ctx := context.Background()

	for _, fn := range []func(context.Context) error{succeed, fail, succeed, fail} {
		_ = cb.Run(ctx, fn)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}

package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("unavailable")

func newTestBreaker(now *time.Time) *CircuitBreaker {
	cb := New(&Config{
		Name:             "test",
		MaxFailures:      3,
		Timeout:          10 * time.Second,
		HalfOpenMaxCalls: 1,
	})
	cb.now = func() time.Time { return *now }
	return cb
}

func fail() error { return errUnavailable }

func succeed() error { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cb := newTestBreaker(&now)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(fail), errUnavailable)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cb := newTestBreaker(&now)

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	require.NoError(t, cb.Execute(succeed))
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cb := newTestBreaker(&now)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail)
	}

	now = now.Add(10 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	// A failed trial call reopens the circuit.
	assert.ErrorIs(t, cb.Execute(fail), errUnavailable)
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(10 * time.Second)
	require.NoError(t, cb.Execute(succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenLimitsTrialCalls(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cb := newTestBreaker(&now)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail)
	}
	now = now.Add(time.Minute)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Execute(func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	// The first trial call is in flight; further calls are rejected.
	assert.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

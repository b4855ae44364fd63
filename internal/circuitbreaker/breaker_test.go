package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("backend down")

func trippyConfig() *Config {
	return &Config{
		Name:        "test",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	}
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := New(trippyConfig())
	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Do(func() error { return nil }))
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cb := New(trippyConfig())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Do(func() error { return errDown }), errDown)
	}
	assert.Equal(t, StateOpen, cb.State())

	// Open breaker fails fast without calling fn.
	called := false
	err := cb.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := New(trippyConfig())
	for i := 0; i < 3; i++ {
		cb.Do(func() error { return errDown })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	// A successful probe closes the breaker again.
	require.NoError(t, cb.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	cb := New(trippyConfig())
	for i := 0; i < 3; i++ {
		cb.Do(func() error { return errDown })
	}
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	cb.Do(func() error { return errDown })
	assert.Equal(t, StateOpen, cb.State())
}

func TestFailureRatio(t *testing.T) {
	c := Counts{}
	assert.Equal(t, 0.0, c.FailureRatio())
	c = Counts{Requests: 4, TotalFailures: 1}
	assert.Equal(t, 0.25, c.FailureRatio())
}

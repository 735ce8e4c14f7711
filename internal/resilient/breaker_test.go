package resilient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, OpenDuration: 50 * time.Millisecond, HalfOpenMaxCalls: 1}, nil)

	for i := 0; i < 2; i++ {
		require.True(t, b.Allow())
		b.RecordFailure()
	}
	assert.Equal(t, StateClosed, b.State())

	require.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	var transitions []BreakerState
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond, HalfOpenMaxCalls: 1}, func(from, to BreakerState) {
		transitions = append(transitions, to)
	})

	b.Allow()
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []BreakerState{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond, HalfOpenMaxCalls: 1}, nil)

	b.Allow()
	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	require.True(t, b.Allow())
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerCallRejectsWhenOpen(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, OpenDuration: time.Hour, HalfOpenMaxCalls: 1}, nil)
	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("boom") })

	err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

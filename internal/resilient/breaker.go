package resilient

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BreakerState is the circuit breaker's state.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// ErrBreakerOpen is returned when a call is rejected without attempting it.
var ErrBreakerOpen = errors.New("circuit breaker open")

// BreakerConfig tunes the trip/recovery thresholds.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures to trip OPEN
	OpenDuration     time.Duration // time before OPEN transitions to HALF_OPEN
	HalfOpenMaxCalls int           // trial calls allowed while HALF_OPEN
}

// DefaultBreakerConfig matches the spec's defaults for a venue client.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, OpenDuration: 30 * time.Second, HalfOpenMaxCalls: 1}
}

// Breaker is a mutex-guarded CLOSED/OPEN/HALF_OPEN state machine guarding
// calls to a single endpoint class.
type Breaker struct {
	mu              sync.Mutex
	cfg             BreakerConfig
	state           BreakerState
	consecutiveFail int
	openedAt        time.Time
	halfOpenCalls   int
	onTransition    func(from, to BreakerState)
}

// NewBreaker creates a breaker starting CLOSED.
func NewBreaker(cfg BreakerConfig, onTransition func(from, to BreakerState)) *Breaker {
	return &Breaker{cfg: cfg, state: StateClosed, onTransition: onTransition}
}

// Allow reports whether a call may proceed, transitioning OPEN->HALF_OPEN
// once the open duration has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.openedAt) >= b.cfg.OpenDuration {
			b.transition(StateHalfOpen)
			b.halfOpenCalls = 1
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenCalls < b.cfg.HalfOpenMaxCalls {
			b.halfOpenCalls++
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker from HALF_OPEN or clears the failure
// streak from CLOSED.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFail = 0
	if b.state == StateHalfOpen {
		b.transition(StateClosed)
		b.halfOpenCalls = 0
	}
}

// RecordFailure trips the breaker OPEN on threshold breach, or immediately
// re-opens it if a HALF_OPEN trial call failed.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.transition(StateOpen)
		b.openedAt = time.Now()
		return
	}

	b.consecutiveFail++
	if b.consecutiveFail >= b.cfg.FailureThreshold {
		b.transition(StateOpen)
		b.openedAt = time.Now()
	}
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	if b.onTransition != nil && from != to {
		b.onTransition(from, to)
	}
}

// State reports the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Call runs fn if the breaker allows it, recording the outcome.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if !b.Allow() {
		return ErrBreakerOpen
	}
	err := fn(ctx)
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

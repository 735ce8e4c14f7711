// Package advisor implements the advisor bus: a registry of best-effort
// scalar-score functions (sentiment, ML, risk-scoring plugins, or an
// adapted strategy's signal strength) combined by configurable weights.
// A weighted source-combination aggregator, narrowed from a multi-field AggregatedSignal
// down to a single [0,1] score per symbol since this bus exists only to
// widen or narrow the StrategyEngine's own signal, not replace it.
package advisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var errAdvisorPanicked = errors.New("advisor panicked")

// NeutralScore is returned for an advisor that errors, times out, or
// simply has no opinion. It must not move a combined score in either
// direction.
const NeutralScore = 0.5

// ScoreFunc is one advisor: given a symbol, it returns a score in
// [0, 1] where 0 is maximally bearish, 1 maximally bullish, and 0.5
// neutral.
type ScoreFunc func(ctx context.Context, symbol string) (float64, error)

// Advisor is one registered, weighted, independently-timed-out score
// source.
type Advisor struct {
	Name    string
	Weight  float64
	Fn      ScoreFunc
	Timeout time.Duration
	TTL     time.Duration
}

type cacheEntry struct {
	score     float64
	expiresAt time.Time
}

// Bus combines registered Advisors into one weighted score per symbol.
// Advisors never block or fail a caller: an error, timeout, or panic
// all degrade to NeutralScore for that advisor on that call.
type Bus struct {
	logger *zap.Logger

	mu       sync.Mutex
	advisors []Advisor
	cache    map[string]map[string]cacheEntry // advisor name -> symbol -> entry
}

// New creates an empty Bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{logger: logger.Named("advisor"), cache: make(map[string]map[string]cacheEntry)}
}

// Register adds an advisor. Zero Weight defaults to 1.0, zero Timeout
// to 2s, zero TTL to 30s.
func (b *Bus) Register(a Advisor) {
	if a.Weight == 0 {
		a.Weight = 1.0
	}
	if a.Timeout == 0 {
		a.Timeout = 2 * time.Second
	}
	if a.TTL == 0 {
		a.TTL = 30 * time.Second
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.advisors = append(b.advisors, a)
	b.cache[a.Name] = make(map[string]cacheEntry)
}

// Combined computes the weighted-average score across every registered
// advisor for symbol. Advisors are consulted one after another, so a
// caller is blocked for at most the sum of their timeouts.
func (b *Bus) Combined(ctx context.Context, symbol string) float64 {
	b.mu.Lock()
	advisors := append([]Advisor{}, b.advisors...)
	b.mu.Unlock()

	if len(advisors) == 0 {
		return NeutralScore
	}

	var weightedSum, totalWeight float64
	for _, a := range advisors {
		score := b.scoreOne(ctx, a, symbol)
		weightedSum += score * a.Weight
		totalWeight += a.Weight
	}
	if totalWeight == 0 {
		return NeutralScore
	}
	return weightedSum / totalWeight
}

func (b *Bus) scoreOne(ctx context.Context, a Advisor, symbol string) float64 {
	if cached, ok := b.cached(a.Name, symbol); ok {
		return cached
	}

	score := b.invoke(ctx, a, symbol)
	b.store(a.Name, symbol, score, a.TTL)
	return score
}

func (b *Bus) cached(advisorName, symbol string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.cache[advisorName][symbol]
	if !ok || time.Now().After(entry.expiresAt) {
		return 0, false
	}
	return entry.score, true
}

func (b *Bus) store(advisorName, symbol string, score float64, ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache[advisorName][symbol] = cacheEntry{score: score, expiresAt: time.Now().Add(ttl)}
}

func (b *Bus) invoke(ctx context.Context, a Advisor, symbol string) float64 {
	timeoutCtx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	result := make(chan float64, 1)
	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Warn("advisor panicked, falling back to neutral", zap.String("advisor", a.Name), zap.Any("panic", r))
				errCh <- errAdvisorPanicked
			}
		}()
		s, err := a.Fn(timeoutCtx, symbol)
		if err != nil {
			errCh <- err
			return
		}
		result <- s
	}()

	select {
	case s := <-result:
		return s
	case err := <-errCh:
		if err != errAdvisorPanicked {
			b.logger.Debug("advisor error, falling back to neutral", zap.String("advisor", a.Name), zap.Error(err))
		}
		return NeutralScore
	case <-timeoutCtx.Done():
		b.logger.Debug("advisor timed out, falling back to neutral", zap.String("advisor", a.Name))
		return NeutralScore
	}
}

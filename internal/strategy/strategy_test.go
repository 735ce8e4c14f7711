package strategy

import (
	"testing"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/engine"
	"github.com/atlas-desktop/trading-backend/internal/venue"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func bar(close, volume float64, offset time.Duration) venue.Bar {
	d := decimal.NewFromFloat(close)
	return venue.Bar{
		OpenTime: time.Now().Add(offset),
		Open:     d,
		High:     d,
		Low:      d,
		Close:    d,
		Volume:   decimal.NewFromFloat(volume),
	}
}

func TestRegistryCreatesOnlyWiredStrategies(t *testing.T) {
	r := NewStrategyRegistry(zap.NewNop())

	for _, name := range []string{"momentum", "breakout", "trend_following"} {
		s, ok := r.Create(name)
		assert.True(t, ok, name)
		assert.Equal(t, name, s.Name())
	}

	_, ok := r.Create("grid")
	assert.False(t, ok, "grid strategy should no longer be registered")
}

func TestMomentumHoldsBelowPeriod(t *testing.T) {
	s := NewMomentumStrategy(zap.NewNop())
	sig := s.OnBar("AAPL", bar(100, 1000, 0))
	assert.Equal(t, engine.ActionHold, sig.Action)
	assert.Equal(t, "insufficient data", sig.Reason)
}

func TestMomentumBuysOnStrongRise(t *testing.T) {
	s := NewMomentumStrategy(zap.NewNop())
	var sig engine.Signal
	for i := 0; i < 15; i++ {
		sig = s.OnBar("AAPL", bar(100+float64(i)*2, 1000, time.Duration(i)*time.Minute))
	}
	assert.Equal(t, engine.ActionBuy, sig.Action)
}

func TestMomentumSellsOnStrongDrop(t *testing.T) {
	s := NewMomentumStrategy(zap.NewNop())
	var sig engine.Signal
	for i := 0; i < 15; i++ {
		sig = s.OnBar("AAPL", bar(100-float64(i)*2, 1000, time.Duration(i)*time.Minute))
	}
	assert.Equal(t, engine.ActionSell, sig.Action)
}

func TestBreakoutRequiresVolumeConfirmation(t *testing.T) {
	s := NewBreakoutStrategy(zap.NewNop())
	var sig engine.Signal
	for i := 0; i < 21; i++ {
		sig = s.OnBar("AAPL", bar(100, 1000, time.Duration(i)*time.Minute))
	}
	// Breaks the range but without a volume spike: no confirmed breakout.
	sig = s.OnBar("AAPL", bar(110, 1000, 21*time.Minute))
	assert.Equal(t, engine.ActionHold, sig.Action)

	sig = s.OnBar("AAPL", bar(120, 5000, 22*time.Minute))
	assert.Equal(t, engine.ActionBuy, sig.Action)
}

func TestTrendFollowingCrossoverSignals(t *testing.T) {
	s := NewTrendFollowingStrategy(zap.NewNop())

	// Feed a falling sequence long enough to establish a bearish EMA
	// spread, then a sustained rise to force a bullish crossover.
	for i := 0; i < 30; i++ {
		s.OnBar("AAPL", bar(100-float64(i), 1000, time.Duration(i)*time.Minute))
	}

	// The Buy is emitted only on the bar where the crossover happens, so
	// keep the Buy signal if one is seen during the rise.
	var sig engine.Signal
	for i := 0; i < 30; i++ {
		got := s.OnBar("AAPL", bar(70+float64(i)*3, 1000, time.Duration(30+i)*time.Minute))
		if got.Action == engine.ActionBuy {
			sig = got
		}
	}
	assert.Equal(t, engine.ActionBuy, sig.Action)
}

func TestResetClearsBarBuffer(t *testing.T) {
	s := NewMomentumStrategy(zap.NewNop())
	for i := 0; i < 15; i++ {
		s.OnBar("AAPL", bar(100+float64(i), 1000, time.Duration(i)*time.Minute))
	}
	s.Reset()
	sig := s.OnBar("AAPL", bar(100, 1000, 0))
	assert.Equal(t, engine.ActionHold, sig.Action)
	assert.Equal(t, "insufficient data", sig.Reason)
}

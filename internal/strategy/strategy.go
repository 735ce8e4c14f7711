// Package strategy holds a small set of bar-driven signal generators
// that the advisor bus runs alongside the regime-dispatched StrategyEngine
// (internal/engine) as extra, best-effort scalar-score sources. Each one
// speaks the same Buy/Sell/Hold{reason} Signal as the StrategyEngine
// rather than its own parallel vocabulary.
package strategy

import (
	"sync"

	"github.com/atlas-desktop/trading-backend/internal/engine"
	"github.com/atlas-desktop/trading-backend/internal/venue"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Strategy is the capability the advisor bus needs from each bar-driven
// signal generator. Only OnBar is on the advisor's call path; there is no
// tick feed and no runtime-tunable parameter surface to expose here.
type Strategy interface {
	Name() string
	OnBar(symbol string, bar venue.Bar) engine.Signal
	Reset()
}

// StrategyRegistry manages the strategies available to register with the
// advisor bus.
type StrategyRegistry struct {
	logger     *zap.Logger
	strategies map[string]func() Strategy
	mu         sync.RWMutex
}

// NewStrategyRegistry creates a registry pre-populated with the three
// strategies the advisor bus actually wires up (see buildAdvisorBus in
// cmd/server): momentum, breakout, and trend_following.
func NewStrategyRegistry(logger *zap.Logger) *StrategyRegistry {
	r := &StrategyRegistry{
		logger:     logger,
		strategies: make(map[string]func() Strategy),
	}

	r.Register("momentum", func() Strategy { return NewMomentumStrategy(logger) })
	r.Register("breakout", func() Strategy { return NewBreakoutStrategy(logger) })
	r.Register("trend_following", func() Strategy { return NewTrendFollowingStrategy(logger) })

	return r
}

// Register registers a new strategy factory.
func (r *StrategyRegistry) Register(name string, factory func() Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[name] = factory
}

// Create creates a new strategy instance by name.
func (r *StrategyRegistry) Create(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.strategies[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// List returns all available strategy names.
func (r *StrategyRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	return names
}

// baseStrategy holds the rolling bar buffer every strategy below needs.
type baseStrategy struct {
	logger  *zap.Logger
	bars    []venue.Bar
	maxBars int
}

func (s *baseStrategy) addBar(bar venue.Bar) {
	s.bars = append(s.bars, bar)
	if len(s.bars) > s.maxBars {
		s.bars = s.bars[1:]
	}
}

func (s *baseStrategy) Reset() {
	s.bars = s.bars[:0]
}

func hold(symbol, reason string) engine.Signal {
	return engine.Signal{Symbol: symbol, Action: engine.ActionHold, Reason: reason}
}

// MomentumStrategy buys or sells when close-over-close momentum across a
// lookback period exceeds a threshold.
type MomentumStrategy struct {
	baseStrategy
	period    int
	threshold decimal.Decimal
}

// NewMomentumStrategy creates a momentum strategy.
func NewMomentumStrategy(logger *zap.Logger) *MomentumStrategy {
	return &MomentumStrategy{
		baseStrategy: baseStrategy{logger: logger, maxBars: 200},
		period:       14,
		threshold:    decimal.NewFromFloat(0.02),
	}
}

func (s *MomentumStrategy) Name() string { return "momentum" }

func (s *MomentumStrategy) OnBar(symbol string, bar venue.Bar) engine.Signal {
	s.addBar(bar)

	if len(s.bars) < s.period {
		return hold(symbol, "insufficient data")
	}

	current := s.bars[len(s.bars)-1].Close
	past := s.bars[len(s.bars)-s.period].Close
	if past.IsZero() {
		return hold(symbol, "insufficient data")
	}

	momentum := current.Sub(past).Div(past)
	switch {
	case momentum.GreaterThan(s.threshold):
		return engine.Signal{Symbol: symbol, Action: engine.ActionBuy, Reason: "strong positive momentum"}
	case momentum.LessThan(s.threshold.Neg()):
		return engine.Signal{Symbol: symbol, Action: engine.ActionSell, Reason: "strong negative momentum"}
	default:
		return hold(symbol, "momentum below threshold")
	}
}

// BreakoutStrategy buys or sells a break of the lookback-period high/low,
// confirmed by above-average volume.
type BreakoutStrategy struct {
	baseStrategy
	lookback   int
	minVolMult decimal.Decimal
}

// NewBreakoutStrategy creates a breakout strategy.
func NewBreakoutStrategy(logger *zap.Logger) *BreakoutStrategy {
	return &BreakoutStrategy{
		baseStrategy: baseStrategy{logger: logger, maxBars: 100},
		lookback:     20,
		minVolMult:   decimal.NewFromFloat(1.5),
	}
}

func (s *BreakoutStrategy) Name() string { return "breakout" }

func (s *BreakoutStrategy) OnBar(symbol string, bar venue.Bar) engine.Signal {
	s.addBar(bar)

	if len(s.bars) < s.lookback+1 {
		return hold(symbol, "insufficient data")
	}

	highest := decimal.Zero
	lowest := decimal.NewFromFloat(999999999)
	avgVolume := decimal.Zero

	for i := len(s.bars) - s.lookback - 1; i < len(s.bars)-1; i++ {
		if s.bars[i].High.GreaterThan(highest) {
			highest = s.bars[i].High
		}
		if s.bars[i].Low.LessThan(lowest) {
			lowest = s.bars[i].Low
		}
		avgVolume = avgVolume.Add(s.bars[i].Volume)
	}
	avgVolume = avgVolume.Div(decimal.NewFromInt(int64(s.lookback)))

	current := bar.Close
	hasVolumeConfirm := bar.Volume.GreaterThan(avgVolume.Mul(s.minVolMult))

	switch {
	case current.GreaterThan(highest) && hasVolumeConfirm:
		return engine.Signal{Symbol: symbol, Action: engine.ActionBuy, Reason: "bullish breakout with volume"}
	case current.LessThan(lowest) && hasVolumeConfirm:
		return engine.Signal{Symbol: symbol, Action: engine.ActionSell, Reason: "bearish breakout with volume"}
	default:
		return hold(symbol, "no confirmed breakout")
	}
}

// TrendFollowingStrategy signals on fast/slow EMA crossovers.
type TrendFollowingStrategy struct {
	baseStrategy
	fastPeriod int
	slowPeriod int
	fastEMA    decimal.Decimal
	slowEMA    decimal.Decimal
}

// NewTrendFollowingStrategy creates a trend-following strategy.
func NewTrendFollowingStrategy(logger *zap.Logger) *TrendFollowingStrategy {
	return &TrendFollowingStrategy{
		baseStrategy: baseStrategy{logger: logger, maxBars: 200},
		fastPeriod:   12,
		slowPeriod:   26,
	}
}

func (s *TrendFollowingStrategy) Name() string { return "trend_following" }

func (s *TrendFollowingStrategy) Reset() {
	s.baseStrategy.Reset()
	s.fastEMA = decimal.Zero
	s.slowEMA = decimal.Zero
}

func (s *TrendFollowingStrategy) OnBar(symbol string, bar venue.Bar) engine.Signal {
	s.addBar(bar)
	price := bar.Close

	if s.fastEMA.IsZero() {
		s.fastEMA = price
		s.slowEMA = price
		return hold(symbol, "insufficient data")
	}

	fastMult := decimal.NewFromFloat(2.0).Div(decimal.NewFromInt(int64(s.fastPeriod + 1)))
	slowMult := decimal.NewFromFloat(2.0).Div(decimal.NewFromInt(int64(s.slowPeriod + 1)))

	prevFastEMA := s.fastEMA
	prevSlowEMA := s.slowEMA

	s.fastEMA = price.Mul(fastMult).Add(s.fastEMA.Mul(decimal.NewFromInt(1).Sub(fastMult)))
	s.slowEMA = price.Mul(slowMult).Add(s.slowEMA.Mul(decimal.NewFromInt(1).Sub(slowMult)))

	if len(s.bars) < s.slowPeriod {
		return hold(symbol, "insufficient data")
	}

	wasBullish := prevFastEMA.GreaterThan(prevSlowEMA)
	isBullish := s.fastEMA.GreaterThan(s.slowEMA)

	switch {
	case !wasBullish && isBullish:
		return engine.Signal{Symbol: symbol, Action: engine.ActionBuy, Reason: "bullish EMA crossover"}
	case wasBullish && !isBullish:
		return engine.Signal{Symbol: symbol, Action: engine.ActionSell, Reason: "bearish EMA crossover"}
	default:
		return hold(symbol, "no EMA crossover")
	}
}

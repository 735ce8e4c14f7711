// Package engine implements StrategyEngine: a pure function from a
// symbol's regime, volatility state, and bar history to a trading Signal.
// Built on a classic RSI/MACD computation style, on top of internal/indicators instead of
// being threaded through a stateful Strategy struct.
package engine

import (
	"github.com/atlas-desktop/trading-backend/internal/indicators"
	"github.com/atlas-desktop/trading-backend/internal/regime"
	"github.com/atlas-desktop/trading-backend/internal/venue"
	"github.com/shopspring/decimal"
)

// Action is the tagged variant of a trading decision.
type Action string

const (
	ActionBuy  Action = "Buy"
	ActionSell Action = "Sell"
	ActionHold Action = "Hold"
)

// Signal is the StrategyEngine's pure output. Reason is a short
// diagnostic string that influences logging only, never execution.
type Signal struct {
	Symbol string
	Action Action
	Reason string
}

func hold(symbol, reason string) Signal { return Signal{Symbol: symbol, Action: ActionHold, Reason: reason} }

// Config tunes the RSI and MACD thresholds used by the sub-strategies.
type Config struct {
	RSIPeriod        int
	RSIOversold      decimal.Decimal
	RSIOverbought    decimal.Decimal
	MACDFast         int
	MACDSlow         int
	MACDSignal       int
	MACDBullThreshold decimal.Decimal // histogram threshold in a bull regime (easier entry, smaller)
	MACDBearThreshold decimal.Decimal // histogram threshold in a bear regime (harder entry, larger)
}

// DefaultConfig matches the spec's illustrative RSI(14)/MACD(12,26,9)
// thresholds.
func DefaultConfig() Config {
	return Config{
		RSIPeriod:         14,
		RSIOversold:       decimal.NewFromInt(30),
		RSIOverbought:     decimal.NewFromInt(70),
		MACDFast:          12,
		MACDSlow:          26,
		MACDSignal:        9,
		MACDBullThreshold: decimal.NewFromFloat(0.05),
		MACDBearThreshold: decimal.NewFromFloat(0.15),
	}
}

// Engine is the StrategyEngine.
type Engine struct {
	cfg Config
}

// New creates an Engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Signal computes the current trading signal for symbol given its regime,
// volatility state, and bar history. It is a pure function: it never
// mutates history, nor does it retain it.
func (e *Engine) Signal(symbol string, mr regime.MarketRegime, vs regime.VolatilityState, history []venue.Bar) Signal {
	closes := indicators.Closes(history)

	switch mr {
	case regime.RegimeRangeBound:
		return e.rsiMeanReversion(symbol, closes, vs)
	case regime.RegimeStrongBull, regime.RegimeStrongBear:
		return e.macdTrend(symbol, closes, mr, vs)
	case regime.RegimeHighVolatility:
		return e.macdTrendWidened(symbol, closes, vs)
	default:
		return hold(symbol, "neutral regime")
	}
}

// rsiMeanReversion buys when RSI drops below the lower threshold, sells
// above the upper threshold. Thresholds widen symmetrically under
// HIGH_VOLATILITY via rsiMeanReversionWidened instead, since that regime
// is dispatched to macdTrendWidened, not here.
func (e *Engine) rsiMeanReversion(symbol string, closes []decimal.Decimal, vs regime.VolatilityState) Signal {
	rsi := indicators.RSI(closes, e.cfg.RSIPeriod)
	if len(rsi) == 0 {
		return hold(symbol, "insufficient data")
	}
	last := rsi[len(rsi)-1]
	lower, upper := e.cfg.RSIOversold, e.cfg.RSIOverbought

	if last.LessThan(lower) {
		return Signal{Symbol: symbol, Action: ActionBuy, Reason: "RSI oversold"}
	}
	if last.GreaterThan(upper) {
		return Signal{Symbol: symbol, Action: ActionSell, Reason: "RSI overbought"}
	}
	return hold(symbol, "RSI in neutral band")
}

// widenRSI symmetrically widens the oversold/overbought thresholds toward
// the extremes under HIGH_VOLATILITY.
func widenRSI(lower, upper decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	widen := decimal.NewFromInt(10)
	return lower.Sub(widen), upper.Add(widen)
}

func (e *Engine) macdTrend(symbol string, closes []decimal.Decimal, mr regime.MarketRegime, vs regime.VolatilityState) Signal {
	result := indicators.MACD(closes, e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
	if result.MACD.IsZero() && result.Signal.IsZero() {
		return hold(symbol, "insufficient data")
	}

	threshold := e.cfg.MACDBullThreshold
	if mr == regime.RegimeStrongBear {
		threshold = e.cfg.MACDBearThreshold
	}

	if result.MACD.GreaterThan(result.Signal) && result.Histogram.Abs().GreaterThan(threshold) {
		return Signal{Symbol: symbol, Action: ActionBuy, Reason: "MACD bullish cross"}
	}
	if result.MACD.LessThan(result.Signal) {
		return Signal{Symbol: symbol, Action: ActionSell, Reason: "MACD bearish cross"}
	}
	return hold(symbol, "MACD inconclusive")
}

// macdTrendWidened widens the MACD histogram threshold 3x to suppress
// whipsaws under HIGH_VOLATILITY; falls back to RSI mean-reversion with
// symmetrically widened bands when MACD itself is inconclusive.
func (e *Engine) macdTrendWidened(symbol string, closes []decimal.Decimal, vs regime.VolatilityState) Signal {
	result := indicators.MACD(closes, e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
	if result.MACD.IsZero() && result.Signal.IsZero() {
		return e.rsiMeanReversionWidened(symbol, closes)
	}

	threshold := e.cfg.MACDBullThreshold.Mul(decimal.NewFromInt(3))
	if result.MACD.GreaterThan(result.Signal) && result.Histogram.Abs().GreaterThan(threshold) {
		return Signal{Symbol: symbol, Action: ActionBuy, Reason: "MACD bullish cross (widened)"}
	}
	if result.MACD.LessThan(result.Signal) && result.Histogram.Abs().GreaterThan(threshold) {
		return Signal{Symbol: symbol, Action: ActionSell, Reason: "MACD bearish cross (widened)"}
	}
	return e.rsiMeanReversionWidened(symbol, closes)
}

func (e *Engine) rsiMeanReversionWidened(symbol string, closes []decimal.Decimal) Signal {
	rsi := indicators.RSI(closes, e.cfg.RSIPeriod)
	if len(rsi) == 0 {
		return hold(symbol, "insufficient data")
	}
	last := rsi[len(rsi)-1]
	lower, upper := widenRSI(e.cfg.RSIOversold, e.cfg.RSIOverbought)

	if last.LessThan(lower) {
		return Signal{Symbol: symbol, Action: ActionBuy, Reason: "RSI oversold (widened)"}
	}
	if last.GreaterThan(upper) {
		return Signal{Symbol: symbol, Action: ActionSell, Reason: "RSI overbought (widened)"}
	}
	return hold(symbol, "RSI in neutral band (widened)")
}

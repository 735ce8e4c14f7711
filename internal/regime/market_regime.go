// Package regime classifies the current market regime and volatility
// state from trend-strength and volatility inputs. The confidence/
// duration/transition-logging texture follows an HMM-style regime
// detector, but the classification itself is a
// five-value tagged variant plus a hysteresis volatility state machine,
// not an HMM.
package regime

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// MarketRegime is the five-value tagged variant the StrategyEngine
// dispatches on.
type MarketRegime string

const (
	RegimeStrongBull     MarketRegime = "STRONG_BULL"
	RegimeStrongBear     MarketRegime = "STRONG_BEAR"
	RegimeRangeBound     MarketRegime = "RANGE_BOUND"
	RegimeHighVolatility MarketRegime = "HIGH_VOLATILITY"
	RegimeNeutral        MarketRegime = "NEUTRAL"
)

// VolatilityState is the four-value hysteresis tagged variant.
type VolatilityState string

const (
	VolLow     VolatilityState = "LOW"
	VolNormal  VolatilityState = "NORMAL"
	VolElevated VolatilityState = "ELEVATED"
	VolExtreme VolatilityState = "EXTREME"
)

// Config tunes the trend/volatility thresholds and volatility hysteresis
// band.
type Config struct {
	TrendStrongThreshold float64 // |trend| >= this => STRONG_BULL/STRONG_BEAR
	TrendRangeThreshold  float64 // |trend| <= this => RANGE_BOUND candidate
	VolHighThreshold     float64 // volatility input >= this*100 => HIGH_VOLATILITY regime (0.6 => 60)

	VolLowUpper      float64 // rising threshold LOW -> NORMAL
	VolNormalUpper   float64 // rising threshold NORMAL -> ELEVATED
	VolElevatedUpper float64 // rising threshold ELEVATED -> EXTREME
	Hysteresis       float64 // band width required to re-cross when falling
}

// DefaultConfig matches the spec's illustrative thresholds.
func DefaultConfig() Config {
	return Config{
		TrendStrongThreshold: 0.5,
		TrendRangeThreshold:  0.15,
		VolHighThreshold:     0.6,
		VolLowUpper:          15,
		VolNormalUpper:       25,
		VolElevatedUpper:     35,
		Hysteresis:           3,
	}
}

// State is the current classification, kept with the confidence/duration
// texture of a regime-detector state record.
type State struct {
	Regime     MarketRegime
	Volatility VolatilityState
	Confidence float64
	Duration   time.Duration
	StartedAt  time.Time
}

// Detector tracks regime/volatility-state transitions over time, applying
// hysteresis to the volatility classification (I5): a rising transition
// requires crossing the upper threshold by at least the hysteresis band,
// a falling transition requires re-crossing the lower band by the same
// margin, so no input near a bare threshold can flip the state back and
// forth.
type Detector struct {
	logger *zap.Logger
	cfg    Config

	mu      sync.Mutex
	current State
	volState VolatilityState
}

// NewDetector creates a detector starting in NEUTRAL/NORMAL.
func NewDetector(logger *zap.Logger, cfg Config) *Detector {
	return &Detector{
		logger:   logger.Named("regime"),
		cfg:      cfg,
		volState: VolNormal,
		current:  State{Regime: RegimeNeutral, Volatility: VolNormal, StartedAt: time.Now()},
	}
}

// Classify updates and returns the current State from a trend-strength
// input (-1..1, positive = bullish) and a volatility index input (e.g. a
// VIX-like level).
func (d *Detector) Classify(trend, volatilityIndex float64) State {
	d.mu.Lock()
	defer d.mu.Unlock()

	newVolState := d.applyHysteresis(volatilityIndex)
	newRegime := d.classifyRegime(trend, volatilityIndex, newVolState)
	confidence := confidenceFor(trend, volatilityIndex, d.cfg)

	if newRegime != d.current.Regime || newVolState != d.current.Volatility {
		d.logger.Info("regime transition",
			zap.String("from_regime", string(d.current.Regime)), zap.String("to_regime", string(newRegime)),
			zap.String("from_vol", string(d.current.Volatility)), zap.String("to_vol", string(newVolState)))
		d.current = State{Regime: newRegime, Volatility: newVolState, Confidence: confidence, StartedAt: time.Now()}
	} else {
		d.current.Confidence = confidence
	}
	d.current.Duration = time.Since(d.current.StartedAt)
	d.volState = newVolState
	return d.current
}

// classifyRegime picks the regime: HIGH_VOLATILITY takes precedence over
// trend classification per spec §4.5 (StrategyEngine widens MACD
// thresholds 3x under HIGH_VOLATILITY rather than trading trend normally).
func (d *Detector) classifyRegime(trend, volatilityIndex float64, volState VolatilityState) MarketRegime {
	if volState == VolExtreme || volatilityIndex >= d.cfg.VolHighThreshold*100 {
		return RegimeHighVolatility
	}
	switch {
	case trend >= d.cfg.TrendStrongThreshold:
		return RegimeStrongBull
	case trend <= -d.cfg.TrendStrongThreshold:
		return RegimeStrongBear
	case trend > -d.cfg.TrendRangeThreshold && trend < d.cfg.TrendRangeThreshold:
		return RegimeRangeBound
	default:
		return RegimeNeutral
	}
}

func confidenceFor(trend, volatilityIndex float64, cfg Config) float64 {
	abs := trend
	if abs < 0 {
		abs = -abs
	}
	c := abs / cfg.TrendStrongThreshold
	if c > 1 {
		c = 1
	}
	return c
}

// applyHysteresis implements the VolatilityState rising/falling hysteresis
// band described in spec I5: a rising transition needs the input to clear
// the upper threshold by at least cfg.Hysteresis; a falling transition
// needs the input to drop below that same threshold by at least
// cfg.Hysteresis. Inputs inside the band hold the previous state.
func (d *Detector) applyHysteresis(volatilityIndex float64) VolatilityState {
	cur := d.volState

	rise := func(threshold float64) bool { return volatilityIndex >= threshold+d.cfg.Hysteresis }
	fall := func(threshold float64) bool { return volatilityIndex <= threshold-d.cfg.Hysteresis }

	switch cur {
	case VolLow:
		if rise(d.cfg.VolLowUpper) {
			return VolNormal
		}
	case VolNormal:
		if rise(d.cfg.VolNormalUpper) {
			return VolElevated
		}
		if fall(d.cfg.VolLowUpper) {
			return VolLow
		}
	case VolElevated:
		if rise(d.cfg.VolElevatedUpper) {
			return VolExtreme
		}
		if fall(d.cfg.VolNormalUpper) {
			return VolNormal
		}
	case VolExtreme:
		if fall(d.cfg.VolElevatedUpper) {
			return VolElevated
		}
	}
	return cur
}

// Current returns the last classification without recomputing.
func (d *Detector) Current() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

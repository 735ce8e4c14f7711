package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClassifyStrongBull(t *testing.T) {
	d := NewDetector(zap.NewNop(), DefaultConfig())
	state := d.Classify(0.8, 18)
	assert.Equal(t, RegimeStrongBull, state.Regime)
}

func TestClassifyRangeBound(t *testing.T) {
	d := NewDetector(zap.NewNop(), DefaultConfig())
	state := d.Classify(0.05, 18)
	assert.Equal(t, RegimeRangeBound, state.Regime)
}

func TestHighVolatilityOverridesTrend(t *testing.T) {
	d := NewDetector(zap.NewNop(), DefaultConfig())
	for i := 0; i < 3; i++ {
		d.Classify(0.8, 65)
	}
	state := d.Current()
	assert.Equal(t, RegimeHighVolatility, state.Regime)
}

func TestVolatilityHysteresisNoOscillationAtThreshold(t *testing.T) {
	cfg := DefaultConfig()
	d := NewDetector(zap.NewNop(), cfg)

	// Push past LOW -> NORMAL definitively first.
	state := d.Classify(0, cfg.VolLowUpper+cfg.Hysteresis+1)
	require.Equal(t, VolNormal, state.Volatility)

	// Oscillate right at the rising threshold without clearing the band:
	// must never flip to ELEVATED.
	for i := 0; i < 5; i++ {
		state = d.Classify(0, cfg.VolNormalUpper)
		assert.Equal(t, VolNormal, state.Volatility)
		state = d.Classify(0, cfg.VolNormalUpper-1)
		assert.Equal(t, VolNormal, state.Volatility)
	}
}

func TestVolatilityHysteresisRisingRequiresFullBand(t *testing.T) {
	cfg := DefaultConfig()
	d := NewDetector(zap.NewNop(), cfg)
	d.Classify(0, cfg.VolLowUpper+cfg.Hysteresis+1) // reach NORMAL

	state := d.Classify(0, cfg.VolNormalUpper+cfg.Hysteresis+1)
	assert.Equal(t, VolElevated, state.Volatility)
}

package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierForBoundaries(t *testing.T) {
	cases := []struct {
		equity float64
		want   Tier
	}{
		{499, TierMicro},
		{500, TierSmall},
		{1999, TierSmall},
		{2000, TierMedium},
		{4999, TierMedium},
		{5000, TierStandard},
		{24999, TierStandard},
		{25000, TierPDT},
		{1_000_000, TierPDT},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, TierFor(decimal.NewFromFloat(c.equity)), "equity=%v", c.equity)
	}
}

func TestSizeRejectsNonPositiveRiskPerShare(t *testing.T) {
	tier := ParametersFor(TierStandard)
	result := Size(tier, decimal.NewFromInt(10000), decimal.NewFromInt(100), decimal.NewFromInt(100), decimal.NewFromInt(20))
	assert.False(t, result.Accepted)
}

func TestSizeCapsAtMaxPositionPercent(t *testing.T) {
	tier := ParametersFor(TierPDT) // maxPositionPercent 20%
	equity := decimal.NewFromInt(100000)
	price := decimal.NewFromInt(10)
	stop := decimal.NewFromFloat(9.99) // tiny risk-per-share, would otherwise oversize
	result := Size(tier, equity, price, stop, decimal.NewFromInt(20))
	require.True(t, result.Accepted)
	maxShares := equity.Mul(tier.MaxPositionPercent).Div(price)
	assert.True(t, result.Shares.LessThanOrEqual(maxShares))
}

func TestSizeDropsBelowMinPositionValue(t *testing.T) {
	tier := ParametersFor(TierMicro)
	result := Size(tier, decimal.NewFromInt(8), decimal.NewFromInt(1000), decimal.NewFromInt(999), decimal.NewFromInt(20))
	assert.False(t, result.Accepted)
}

func TestSizePrefersWholeShares(t *testing.T) {
	tier := ParametersFor(TierMicro) // preferWholeShares = true
	result := Size(tier, decimal.NewFromInt(10000), decimal.NewFromInt(47), decimal.NewFromInt(40), decimal.NewFromInt(20))
	require.True(t, result.Accepted)
	assert.True(t, result.Shares.Equal(result.Shares.Floor()))
}

func TestKellySizeClampsToRange(t *testing.T) {
	cfg := DefaultKellyConfig()
	equity := decimal.NewFromInt(10000)

	// Very high win rate should clamp to MaxPercent of deployable capital.
	size := KellySize(equity, decimal.NewFromFloat(0.95), decimal.NewFromInt(3), cfg)
	deployable := DeployableCapital(equity, cfg)
	assert.True(t, size.LessThanOrEqual(deployable.Mul(cfg.MaxPercent)))

	// Negative edge should clamp to MinPercent, never go negative.
	size = KellySize(equity, decimal.NewFromFloat(0.1), decimal.NewFromInt(1), cfg)
	assert.True(t, size.GreaterThanOrEqual(deployable.Mul(cfg.MinPercent)))
}

func TestStopTargetAppliesTierMultipliers(t *testing.T) {
	tier := ParametersFor(TierMicro) // SL 1.5x, TP 0.5x
	entry := decimal.NewFromInt(100)
	sl, tp := StopTarget(entry, decimal.NewFromFloat(0.02), decimal.NewFromFloat(0.02), tier)
	assert.True(t, sl.LessThan(entry))
	assert.True(t, tp.GreaterThan(entry))
	// SL multiplier > TP multiplier for MICRO => stop distance > target distance.
	assert.True(t, entry.Sub(sl).GreaterThan(tp.Sub(entry)))
}

func TestDrawdownGuardTripsAndDoesNotAutoReset(t *testing.T) {
	g := NewDrawdownGuard(decimal.NewFromFloat(0.20))

	g.Update(decimal.NewFromInt(10000))
	tripped := g.Update(decimal.NewFromInt(7500)) // 25% drawdown
	assert.True(t, tripped)

	// A subsequent equity recovery must NOT clear the trip automatically.
	g.Update(decimal.NewFromInt(10500))
	stillTripped, reason := g.Tripped()
	assert.True(t, stillTripped)
	assert.NotEmpty(t, reason)

	g.Reset()
	cleared, _ := g.Tripped()
	assert.False(t, cleared)
}

func TestDrawdownGuardPeakNeverDecreases(t *testing.T) {
	g := NewDrawdownGuard(decimal.NewFromFloat(0.50))
	g.Update(decimal.NewFromInt(10000))
	g.Update(decimal.NewFromInt(9000))
	assert.True(t, g.PeakEquity().Equal(decimal.NewFromInt(10000)))
}

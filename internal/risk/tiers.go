// Package risk implements RiskEngine: the capital tier table, the
// volatility-adjusted sizing algorithm, Kelly-mode sizing, stop/target
// derivation, and the drawdown guard. Uses a Kelly-criterion sizer with
// mutex-guarded state
// and internal/execution.RiskManager (violation/event shape, JSON-tagged
// RiskConfig idiom, kill-switch latch pattern reused here for the
// drawdown guard's no-auto-reset semantics).
package risk

import "github.com/shopspring/decimal"

// Tier is the capital tier tagged variant, selected solely by equity band.
type Tier string

const (
	TierMicro    Tier = "MICRO"
	TierSmall    Tier = "SMALL"
	TierMedium   Tier = "MEDIUM"
	TierStandard Tier = "STANDARD"
	TierPDT      Tier = "PDT"
)

// TierParameters is one row of the authoritative capital tier table.
type TierParameters struct {
	Tier               Tier
	MaxPositionPercent decimal.Decimal
	RiskPerTradePercent decimal.Decimal
	MaxPositions       int
	MinPositionValue   decimal.Decimal
	PreferWholeShares  bool
	SLMultiplier       decimal.Decimal
	TPMultiplier       decimal.Decimal
	HumanHint          string
}

func pct(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// tierTable is the capital tier table verbatim.
var tierTable = []TierParameters{
	{Tier: TierMicro, MaxPositionPercent: pct(0.50), RiskPerTradePercent: pct(0.005), MaxPositions: 2, MinPositionValue: decimal.NewFromInt(5), PreferWholeShares: true, SLMultiplier: pct(1.5), TPMultiplier: pct(0.5), HumanHint: "micro account: size small, protect capital"},
	{Tier: TierSmall, MaxPositionPercent: pct(0.35), RiskPerTradePercent: pct(0.01), MaxPositions: 3, MinPositionValue: decimal.NewFromInt(10), PreferWholeShares: true, SLMultiplier: pct(1.25), TPMultiplier: pct(0.75), HumanHint: "small account: diversify modestly"},
	{Tier: TierMedium, MaxPositionPercent: pct(0.30), RiskPerTradePercent: pct(0.015), MaxPositions: 4, MinPositionValue: decimal.NewFromInt(15), PreferWholeShares: true, SLMultiplier: pct(1.1), TPMultiplier: pct(0.9), HumanHint: "medium account: balanced risk"},
	{Tier: TierStandard, MaxPositionPercent: pct(0.25), RiskPerTradePercent: pct(0.02), MaxPositions: 5, MinPositionValue: decimal.NewFromInt(25), PreferWholeShares: false, SLMultiplier: pct(1.0), TPMultiplier: pct(1.0), HumanHint: "standard account: full risk budget"},
	{Tier: TierPDT, MaxPositionPercent: pct(0.20), RiskPerTradePercent: pct(0.02), MaxPositions: 8, MinPositionValue: decimal.NewFromInt(50), PreferWholeShares: false, SLMultiplier: pct(1.0), TPMultiplier: pct(1.0), HumanHint: "PDT-eligible: more positions, same per-trade risk"},
}

var tierBands = []struct {
	tier Tier
	max  decimal.Decimal // exclusive upper bound; zero Decimal means unbounded
}{
	{TierMicro, decimal.NewFromInt(500)},
	{TierSmall, decimal.NewFromInt(2000)},
	{TierMedium, decimal.NewFromInt(5000)},
	{TierStandard, decimal.NewFromInt(25000)},
	{TierPDT, decimal.Decimal{}},
}

// TierFor selects the capital tier solely from current equity.
func TierFor(equity decimal.Decimal) Tier {
	for _, band := range tierBands {
		if band.max.IsZero() || equity.LessThan(band.max) {
			return band.tier
		}
	}
	return TierPDT
}

// ParametersFor returns the parameter row for a tier.
func ParametersFor(t Tier) TierParameters {
	for _, row := range tierTable {
		if row.Tier == t {
			return row
		}
	}
	return tierTable[len(tierTable)-1]
}

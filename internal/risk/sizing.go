package risk

import "github.com/shopspring/decimal"

var (
	zero    = decimal.Zero
	one     = decimal.NewFromInt(1)
	twenty  = decimal.NewFromInt(20)
)

// SizeResult is the outcome of the sizing algorithm: either a concrete
// share count, or a rejection with a reason (never both).
type SizeResult struct {
	Shares   decimal.Decimal
	Accepted bool
	Reason   string
}

func reject(reason string) SizeResult { return SizeResult{Reason: reason} }

// Size implements the volatility-adjusted risk sizing algorithm, steps
// 1-7 exactly as specified:
//  1. reject on non-positive price/equity/riskPerShare
//  2. dollarRisk = equity * riskPerTradePercent * min(1, 20/max(20, v))
//  3. shares = dollarRisk / riskPerShare
//  4. cap shares to equity * maxPositionPercent / price
//  5. drop if shares*price < minPositionValue
//  6. prefer whole shares if the tier says so and the floor still clears
//     the minimum value
//  7. round to venue precision (left to the caller, which holds the
//     PrecisionTable — this function returns the pre-rounded share count)
func Size(tier TierParameters, equity, price, stopLossPrice, volatility decimal.Decimal) SizeResult {
	if price.LessThanOrEqual(zero) || equity.LessThanOrEqual(zero) {
		return reject("invalid price or equity")
	}
	riskPerShare := price.Sub(stopLossPrice)
	if riskPerShare.LessThanOrEqual(zero) {
		return reject("non-positive risk per share")
	}

	v := volatility
	if v.LessThan(twenty) {
		v = twenty
	}
	volDamping := twenty.Div(v)
	if volDamping.GreaterThan(one) {
		volDamping = one
	}
	dollarRisk := equity.Mul(tier.RiskPerTradePercent).Mul(volDamping)

	shares := dollarRisk.Div(riskPerShare)

	maxShares := equity.Mul(tier.MaxPositionPercent).Div(price)
	if shares.GreaterThan(maxShares) {
		shares = maxShares
	}

	if shares.Mul(price).LessThan(tier.MinPositionValue) {
		return reject("position value below tier minimum")
	}

	if tier.PreferWholeShares {
		floored := shares.Floor()
		if floored.Mul(price).GreaterThanOrEqual(tier.MinPositionValue) {
			shares = floored
		}
	}

	return SizeResult{Shares: shares, Accepted: true}
}

// KellyConfig tunes Kelly-mode sizing bounds.
type KellyConfig struct {
	KellyFraction  decimal.Decimal // fraction of full Kelly to actually size (e.g. 0.5 = half-Kelly)
	MinPercent     decimal.Decimal // clamp floor, e.g. 0.01
	MaxPercent     decimal.Decimal // clamp ceiling, e.g. 0.25
	ReservePercent decimal.Decimal // capital held back from deployableCapital
}

// DefaultKellyConfig matches the spec's illustrative clamps.
func DefaultKellyConfig() KellyConfig {
	return KellyConfig{
		KellyFraction:  decimal.NewFromFloat(0.5),
		MinPercent:     decimal.NewFromFloat(0.01),
		MaxPercent:     decimal.NewFromFloat(0.25),
		ReservePercent: decimal.NewFromFloat(0.10),
	}
}

// DeployableCapital is equity * (1 - reservePercent), the single formula
// used everywhere deployable capital is computed (Open Question
// resolution, see DESIGN.md).
func DeployableCapital(equity decimal.Decimal, cfg KellyConfig) decimal.Decimal {
	return equity.Mul(one.Sub(cfg.ReservePercent))
}

// KellySize computes a Kelly-mode position value from a symbol's cached
// win rate and a configured reward:risk ratio, clamped to
// [MinPercent, MaxPercent] of deployable capital.
//
// f* = winRate - (1-winRate)/rewardToRisk   (standard Kelly criterion)
func KellySize(equity decimal.Decimal, winRate decimal.Decimal, rewardToRisk decimal.Decimal, cfg KellyConfig) decimal.Decimal {
	if rewardToRisk.LessThanOrEqual(zero) {
		rewardToRisk = one
	}
	fStar := winRate.Sub(one.Sub(winRate).Div(rewardToRisk))
	if fStar.LessThan(zero) {
		fStar = zero
	}

	sizedFraction := fStar.Mul(cfg.KellyFraction)
	if sizedFraction.LessThan(cfg.MinPercent) {
		sizedFraction = cfg.MinPercent
	}
	if sizedFraction.GreaterThan(cfg.MaxPercent) {
		sizedFraction = cfg.MaxPercent
	}

	deployable := DeployableCapital(equity, cfg)
	return deployable.Mul(sizedFraction)
}

// StopTarget derives stopLoss and takeProfit prices from entry, the
// profile's base SL/TP percentages, and the tier's multipliers.
func StopTarget(entry, slPercent, tpPercent decimal.Decimal, tier TierParameters) (stopLoss, takeProfit decimal.Decimal) {
	effectiveSL := slPercent.Mul(tier.SLMultiplier)
	effectiveTP := tpPercent.Mul(tier.TPMultiplier)
	stopLoss = entry.Mul(one.Sub(effectiveSL))
	takeProfit = entry.Mul(one.Add(effectiveTP))
	return stopLoss, takeProfit
}

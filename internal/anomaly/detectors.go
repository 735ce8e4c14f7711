package anomaly

import (
	"github.com/shopspring/decimal"
)

// These dedicated detectors operate directly on decimal.Decimal series
// rather than converting every sample through float64 for gonum/stat,
// since none of them need a z-score — each is a fixed threshold rule
// from the spec.

// percentageChange is old-to-new percent change, decimal-native so a
// threshold comparison never round-trips through float64.
func percentageChange(old, new decimal.Decimal) decimal.Decimal {
	if old.IsZero() {
		return decimal.Zero
	}
	return new.Sub(old).Div(old).Mul(decimal.NewFromInt(100))
}

// mean is the arithmetic mean of a decimal series; zero for an empty one.
func mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// PriceMoveThresholdPercent is the adjacent-sample move that counts as
// a crash/spike.
var PriceMoveThresholdPercent = decimal.NewFromInt(5)

// VolumeSpikeMultiple is how far above the trailing average volume
// must rise to count as a spike.
var VolumeSpikeMultiple = decimal.NewFromInt(10)

// ErrorRateThreshold is the cycle-window error rate that counts as
// anomalous.
var ErrorRateThreshold = decimal.NewFromFloat(0.10)

// PriceMoveAnomaly reports whether the move from prev to curr is a
// crash or spike (absolute percentage change >= 5%).
func PriceMoveAnomaly(prev, curr decimal.Decimal) bool {
	if prev.IsZero() {
		return false
	}
	pct := percentageChange(prev, curr)
	return pct.Abs().GreaterThanOrEqual(PriceMoveThresholdPercent)
}

// VolumeSpikeAnomaly reports whether current volume is at least
// VolumeSpikeMultiple times the trailing average of history.
func VolumeSpikeAnomaly(history []decimal.Decimal, current decimal.Decimal) bool {
	if len(history) == 0 {
		return false
	}
	avg := mean(history)
	if avg.IsZero() {
		return false
	}
	return current.GreaterThanOrEqual(avg.Mul(VolumeSpikeMultiple))
}

// ErrorRateAnomaly reports whether errors/total over a cycle window
// meets or exceeds ErrorRateThreshold.
func ErrorRateAnomaly(errors, total int) bool {
	if total == 0 {
		return false
	}
	rate := decimal.NewFromInt(int64(errors)).Div(decimal.NewFromInt(int64(total)))
	return rate.GreaterThanOrEqual(ErrorRateThreshold)
}

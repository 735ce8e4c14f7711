// Package indicators computes technical indicators as pure functions over
// an ordered slice of venue.Bar: Wilder-smoothed RSI, EMA/SMA running
// calculators, MACD, and ATR, none of them threaded through a stateful
// strategy struct.
package indicators

import (
	"github.com/atlas-desktop/trading-backend/internal/venue"
	"github.com/shopspring/decimal"
)

// Closes extracts the close price series from bars.
func Closes(bars []venue.Bar) []decimal.Decimal {
	out := make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// SMA computes the simple moving average of the last period closes. It
// returns zero if fewer than period values are available.
func SMA(closes []decimal.Decimal, period int) decimal.Decimal {
	if len(closes) < period || period <= 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, c := range closes[len(closes)-period:] {
		sum = sum.Add(c)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

// EMA computes the exponential moving average series over closes with the
// given period, seeded by an SMA of the first period values.
func EMA(closes []decimal.Decimal, period int) []decimal.Decimal {
	if len(closes) < period || period <= 0 {
		return nil
	}
	out := make([]decimal.Decimal, 0, len(closes)-period+1)
	k := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1)))
	prev := SMA(closes[:period], period)
	out = append(out, prev)
	for _, c := range closes[period:] {
		prev = c.Sub(prev).Mul(k).Add(prev)
		out = append(out, prev)
	}
	return out
}

// RSI computes the Wilder-smoothed Relative Strength Index series from
// closes: the initial average gain/loss is a plain mean of the first
// period gains/losses, every subsequent average is the recursive
// smoothing avg = (avg*(period-1) + current) / period.
func RSI(closes []decimal.Decimal, period int) []decimal.Decimal {
	if len(closes) < period+1 || period <= 0 {
		return nil
	}

	gains := make([]decimal.Decimal, 0, len(closes)-1)
	losses := make([]decimal.Decimal, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		change := closes[i].Sub(closes[i-1])
		if change.GreaterThan(decimal.Zero) {
			gains = append(gains, change)
			losses = append(losses, decimal.Zero)
		} else {
			gains = append(gains, decimal.Zero)
			losses = append(losses, change.Abs())
		}
	}

	periodDec := decimal.NewFromInt(int64(period))
	sumGain, sumLoss := decimal.Zero, decimal.Zero
	for i := 0; i < period; i++ {
		sumGain = sumGain.Add(gains[i])
		sumLoss = sumLoss.Add(losses[i])
	}
	avgGain := sumGain.Div(periodDec)
	avgLoss := sumLoss.Div(periodDec)

	out := make([]decimal.Decimal, 0, len(gains)-period+1)
	out = append(out, rsiFromAverages(avgGain, avgLoss))

	for i := period; i < len(gains); i++ {
		avgGain = avgGain.Mul(periodDec.Sub(decimal.NewFromInt(1))).Add(gains[i]).Div(periodDec)
		avgLoss = avgLoss.Mul(periodDec.Sub(decimal.NewFromInt(1))).Add(losses[i]).Div(periodDec)
		out = append(out, rsiFromAverages(avgGain, avgLoss))
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss decimal.Decimal) decimal.Decimal {
	if avgGain.IsZero() && avgLoss.IsZero() {
		return decimal.NewFromInt(50)
	}
	if avgLoss.IsZero() {
		return decimal.NewFromInt(100)
	}
	rs := avgGain.Div(avgLoss)
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// MACDResult holds the MACD line, signal line, and histogram for the most
// recent bar.
type MACDResult struct {
	MACD      decimal.Decimal
	Signal    decimal.Decimal
	Histogram decimal.Decimal
}

// MACD computes the standard 12/26/9 (or custom) MACD over closes, using
// the EMA helper above for each leg. Returns the zero value if there is
// not enough history.
func MACD(closes []decimal.Decimal, fast, slow, signal int) MACDResult {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	if len(fastEMA) == 0 || len(slowEMA) == 0 {
		return MACDResult{}
	}

	offset := slow - fast
	if offset < 0 || len(fastEMA) <= offset {
		return MACDResult{}
	}
	aligned := fastEMA[offset:]
	n := len(slowEMA)
	if len(aligned) < n {
		n = len(aligned)
	}
	macdLine := make([]decimal.Decimal, n)
	for i := 0; i < n; i++ {
		macdLine[i] = aligned[len(aligned)-n+i].Sub(slowEMA[len(slowEMA)-n+i])
	}

	signalLine := EMA(macdLine, signal)
	if len(signalLine) == 0 {
		return MACDResult{MACD: macdLine[len(macdLine)-1]}
	}
	lastMACD := macdLine[len(macdLine)-1]
	lastSignal := signalLine[len(signalLine)-1]
	return MACDResult{MACD: lastMACD, Signal: lastSignal, Histogram: lastMACD.Sub(lastSignal)}
}

// ATR computes Wilder-smoothed Average True Range over bars.
func ATR(bars []venue.Bar, period int) decimal.Decimal {
	if len(bars) < period+1 || period <= 0 {
		return decimal.Zero
	}
	trs := make([]decimal.Decimal, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		hl := bars[i].High.Sub(bars[i].Low)
		hc := bars[i].High.Sub(bars[i-1].Close).Abs()
		lc := bars[i].Low.Sub(bars[i-1].Close).Abs()
		tr := hl
		if hc.GreaterThan(tr) {
			tr = hc
		}
		if lc.GreaterThan(tr) {
			tr = lc
		}
		trs = append(trs, tr)
	}

	periodDec := decimal.NewFromInt(int64(period))
	sum := decimal.Zero
	for i := 0; i < period; i++ {
		sum = sum.Add(trs[i])
	}
	atr := sum.Div(periodDec)
	for i := period; i < len(trs); i++ {
		atr = atr.Mul(periodDec.Sub(decimal.NewFromInt(1))).Add(trs[i]).Div(periodDec)
	}
	return atr
}

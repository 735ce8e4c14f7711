package indicators

import (
	"testing"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/venue"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func decimals(vals ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	closes := decimals(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15)
	rsi := RSI(closes, 14)
	assert.Len(t, rsi, 1)
	assert.True(t, rsi[0].Equal(decimal.NewFromInt(100)))
}

func TestRSIFlatSeriesIsMidpoint(t *testing.T) {
	closes := decimals(10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10)
	rsi := RSI(closes, 14)
	require := assert.New(t)
	require.Len(rsi, 1)
	require.True(rsi[0].Equal(decimal.NewFromInt(50)))
}

func TestSMABasic(t *testing.T) {
	closes := decimals(1, 2, 3, 4, 5)
	assert.True(t, SMA(closes, 5).Equal(decimal.NewFromInt(3)))
	assert.True(t, SMA(closes, 10).IsZero())
}

func TestEMASeeding(t *testing.T) {
	closes := decimals(1, 2, 3, 4, 5, 6)
	ema := EMA(closes, 3)
	require := assert.New(t)
	require.NotEmpty(ema)
	require.True(ema[0].Equal(SMA(closes[:3], 3)))
}

func TestATRNonNegative(t *testing.T) {
	now := time.Now()
	bars := []venue.Bar{
		{OpenTime: now, Open: decimal.NewFromInt(10), High: decimal.NewFromInt(12), Low: decimal.NewFromInt(9), Close: decimal.NewFromInt(11)},
		{OpenTime: now.Add(time.Minute), Open: decimal.NewFromInt(11), High: decimal.NewFromInt(13), Low: decimal.NewFromInt(10), Close: decimal.NewFromInt(12)},
		{OpenTime: now.Add(2 * time.Minute), Open: decimal.NewFromInt(12), High: decimal.NewFromInt(14), Low: decimal.NewFromInt(11), Close: decimal.NewFromInt(13)},
	}
	atr := ATR(bars, 2)
	assert.True(t, atr.GreaterThanOrEqual(decimal.Zero))
}

func TestMACDZeroValueWithInsufficientHistory(t *testing.T) {
	closes := decimals(1, 2, 3)
	result := MACD(closes, 12, 26, 9)
	assert.True(t, result.MACD.IsZero())
}

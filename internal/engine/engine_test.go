package engine

import (
	"testing"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/regime"
	"github.com/atlas-desktop/trading-backend/internal/venue"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func barsFromCloses(closes []float64) []venue.Bar {
	out := make([]venue.Bar, len(closes))
	now := time.Now()
	for i, c := range closes {
		d := decimal.NewFromFloat(c)
		out[i] = venue.Bar{OpenTime: now.Add(time.Duration(i) * time.Minute), Open: d, High: d, Low: d, Close: d, Volume: decimal.NewFromInt(100)}
	}
	return out
}

func TestInsufficientHistoryYieldsHold(t *testing.T) {
	e := New(DefaultConfig())
	sig := e.Signal("AAPL", regime.RegimeRangeBound, regime.VolNormal, barsFromCloses([]float64{1, 2, 3}))
	assert.Equal(t, ActionHold, sig.Action)
	assert.Equal(t, "insufficient data", sig.Reason)
}

func TestRangeBoundBuysOnOversoldRSI(t *testing.T) {
	e := New(DefaultConfig())
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 - float64(i) // strictly falling => RSI near 0
	}
	sig := e.Signal("AAPL", regime.RegimeRangeBound, regime.VolNormal, barsFromCloses(closes))
	assert.Equal(t, ActionBuy, sig.Action)
}

func TestStrongBullYieldsMACDSignal(t *testing.T) {
	e := New(DefaultConfig())
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)*2 // strong sustained uptrend
	}
	sig := e.Signal("AAPL", regime.RegimeStrongBull, regime.VolNormal, barsFromCloses(closes))
	assert.Contains(t, []Action{ActionBuy, ActionHold}, sig.Action)
}

func TestNeutralRegimeAlwaysHolds(t *testing.T) {
	e := New(DefaultConfig())
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	sig := e.Signal("AAPL", regime.RegimeNeutral, regime.VolNormal, barsFromCloses(closes))
	assert.Equal(t, ActionHold, sig.Action)
	assert.Equal(t, "neutral regime", sig.Reason)
}

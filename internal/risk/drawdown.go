package risk

import (
	"sync"

	"github.com/shopspring/decimal"
)

// DrawdownGuard tracks peakEquity (monotonically non-decreasing) and
// halts trading once the drawdown from peak exceeds maxDrawdown. It never
// auto-resets peakEquity on an anomalous drop — per spec, an operator
// must explicitly call Reset — so a genuine capital loss cannot be
// silently forgotten by the next equity uptick. A kill-switch latch whose
// tripped state survives until explicitly
// cleared).
type DrawdownGuard struct {
	mu           sync.Mutex
	maxDrawdown  decimal.Decimal
	peakEquity   decimal.Decimal
	tripped      bool
	tripReason   string
}

// NewDrawdownGuard creates a guard with the given maximum fractional
// drawdown (e.g. 0.20 for 20%).
func NewDrawdownGuard(maxDrawdown decimal.Decimal) *DrawdownGuard {
	return &DrawdownGuard{maxDrawdown: maxDrawdown}
}

// Update observes a new equity reading, advancing peakEquity if it is a
// new high, and tripping the guard if the drawdown from peak now exceeds
// maxDrawdown. Returns whether the guard is (now) tripped.
func (g *DrawdownGuard) Update(equity decimal.Decimal) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if equity.GreaterThan(g.peakEquity) {
		g.peakEquity = equity
	}
	if g.peakEquity.IsZero() {
		return g.tripped
	}

	drawdown := g.peakEquity.Sub(equity).Div(g.peakEquity)
	if drawdown.GreaterThan(g.maxDrawdown) && !g.tripped {
		g.tripped = true
		g.tripReason = "drawdown exceeded maximum"
	}
	return g.tripped
}

// Tripped reports the current latch state without taking a new reading.
func (g *DrawdownGuard) Tripped() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tripped, g.tripReason
}

// Reset clears the tripped latch. This is an explicit operator action;
// nothing in this package calls it automatically.
func (g *DrawdownGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tripped = false
	g.tripReason = ""
}

// PeakEquity returns the current tracked peak.
func (g *DrawdownGuard) PeakEquity() decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peakEquity
}

// Package lifecycle implements PositionLifecycle: the per-position state
// machine (Pending -> Open -> Closing -> Closed) and the immutable
// TradePosition value, a pure copy-on-write value rather than a mutable
// position record.
package lifecycle

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state machine's tagged variant.
type Status string

const (
	StatusPending Status = "Pending"
	StatusOpen    Status = "Open"
	StatusClosing Status = "Closing"
	StatusClosed  Status = "Closed"
)

// PartialExitLevel indexes the three optional partial-exit bits.
type PartialExitLevel int

const (
	PartialExitLevel1 PartialExitLevel = iota
	PartialExitLevel2
	PartialExitLevel3
)

// TradePosition is the immutable invariant bundle:
// stopLoss < entryPrice < takeProfit (long-only), highestSeenPrice never
// below entryPrice, partialExitsMask bits never cleared once set. Every
// method returns a new value; none mutates the receiver.
type TradePosition struct {
	ID               string
	Symbol           string
	Status           Status
	EntryPrice       decimal.Decimal
	Quantity         decimal.Decimal
	StopLoss         decimal.Decimal
	TakeProfit       decimal.Decimal
	EntryTime        time.Time
	HighestSeenPrice decimal.Decimal
	PartialExitsMask uint8
	EntryOrderID     string
	StopOrderID      string
	HasVenueBracket  bool
}

// NewPosition creates a TradePosition in the Pending state. Neither
// NewPosition nor Open checks the long-only invariant
// stopLoss < entryPrice < takeProfit or that quantity is positive; the
// values are stored as given.
func NewPosition(symbol string, quantity, stopLoss, takeProfit decimal.Decimal) TradePosition {
	return TradePosition{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Status:     StatusPending,
		Quantity:   quantity,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	}
}

// Open transitions Pending -> Open on a confirmed entry fill, establishing
// entryPrice and seeding highestSeenPrice at the entry price.
func (p TradePosition) Open(entryPrice decimal.Decimal, entryOrderID string, hasVenueBracket bool) TradePosition {
	next := p
	next.Status = StatusOpen
	next.EntryPrice = entryPrice
	next.HighestSeenPrice = entryPrice
	next.EntryTime = time.Now()
	next.EntryOrderID = entryOrderID
	next.HasVenueBracket = hasVenueBracket
	return next
}

// AdvanceTrailingStop updates highestSeenPrice to max(old, price) and
// recomputes the candidate stop as highestSeenPrice*(1-trailPercent),
// only ever moving the stop upward.
func (p TradePosition) AdvanceTrailingStop(price, trailPercent decimal.Decimal) TradePosition {
	next := p
	if price.GreaterThan(next.HighestSeenPrice) {
		next.HighestSeenPrice = price
	}
	candidate := next.HighestSeenPrice.Mul(decimal.NewFromInt(1).Sub(trailPercent))
	if candidate.GreaterThan(next.StopLoss) {
		next.StopLoss = candidate
	}
	return next
}

// TriggerReason names why an exit was triggered, for diagnostic logging
// only.
type TriggerReason string

const (
	TriggerStopHit        TriggerReason = "stop_hit"
	TriggerTargetHit       TriggerReason = "target_hit"
	TriggerSignalSell      TriggerReason = "signal_sell"
	TriggerEmergencyFlatten TriggerReason = "emergency_flatten"
)

// CheckExit evaluates the client-side safety trigger for a fractional
// position without a venue-side bracket: price <= stopLoss or
// price >= takeProfit. Returns (triggered, reason).
func (p TradePosition) CheckExit(price decimal.Decimal) (bool, TriggerReason) {
	if price.LessThanOrEqual(p.StopLoss) {
		return true, TriggerStopHit
	}
	if price.GreaterThanOrEqual(p.TakeProfit) {
		return true, TriggerTargetHit
	}
	return false, ""
}

// BeginClosing transitions Open -> Closing.
func (p TradePosition) BeginClosing() TradePosition {
	next := p
	next.Status = StatusClosing
	return next
}

// Close transitions Closing -> Closed on the exit fill.
func (p TradePosition) Close() TradePosition {
	next := p
	next.Status = StatusClosed
	return next
}

// MarkPartialExit sets the bit for level if not already set, reducing
// quantity by the given amount. A level is never re-triggered: calling
// this again for an already-set level is a no-op.
func (p TradePosition) MarkPartialExit(level PartialExitLevel, reduceBy decimal.Decimal) TradePosition {
	bit := uint8(1) << uint(level)
	if p.PartialExitsMask&bit != 0 {
		return p
	}
	next := p
	next.PartialExitsMask |= bit
	next.Quantity = next.Quantity.Sub(reduceBy)
	return next
}

// HasPartialExit reports whether level has already fired.
func (p TradePosition) HasPartialExit(level PartialExitLevel) bool {
	return p.PartialExitsMask&(uint8(1)<<uint(level)) != 0
}

// WithStopOrderID records the venue order id backing the current stop,
// used by server-side stop sync to target replaceOrder calls.
func (p TradePosition) WithStopOrderID(id string) TradePosition {
	next := p
	next.StopOrderID = id
	return next
}

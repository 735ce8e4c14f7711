package lifecycle

import (
	"context"
	"fmt"

	"github.com/atlas-desktop/trading-backend/internal/venue"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// slippageBuffer is the 0.1% limit-price buffer used for entries on
// venues without native bracket orders.
var slippageBuffer = decimal.NewFromFloat(0.001)

// MicroScaleConfig tunes the optional micro-scaling add-on schedule.
type MicroScaleConfig struct {
	Enabled       bool
	InitialFraction decimal.Decimal // e.g. 0.5 of the calculated size
	AddOnFractions []decimal.Decimal // e.g. [0.25, 0.25]
	AddOnTriggers  []decimal.Decimal // realized-profit% thresholds, e.g. [0.005, 0.01]
}

// PartialExitConfig tunes the optional three-level partial-exit schedule.
type PartialExitConfig struct {
	Enabled bool
	Levels  []decimal.Decimal // profit% thresholds for level 1,2,3
	Reduce  []decimal.Decimal // fraction of original quantity reduced per level
}

// Manager drives PositionLifecycle transitions against a venue client,
// handling bracket-order linking; it places real orders through the
// client and does not simulate fills.
type Manager struct {
	logger *zap.Logger
	client venue.BrokerClient
}

// New creates a Manager over client.
func New(logger *zap.Logger, client venue.BrokerClient) *Manager {
	return &Manager{logger: logger.Named("lifecycle"), client: client}
}

// OpenPosition places the entry order: a venue-native bracket when
// supported, otherwise a limit order with the slippage buffer plus
// client-side SL/TP tracking. The TradePosition is recorded only after
// the order is accepted by the venue.
func (m *Manager) OpenPosition(ctx context.Context, symbol string, qty, entryPrice, stopLoss, takeProfit decimal.Decimal) (TradePosition, error) {
	pos := NewPosition(symbol, qty, stopLoss, takeProfit)

	if m.client.SupportsBrackets() {
		orderID, err := m.client.PlaceBracket(ctx, symbol, qty, venue.SideBuy, takeProfit, stopLoss, nil)
		if err != nil {
			return TradePosition{}, fmt.Errorf("place bracket: %w", err)
		}
		return pos.Open(entryPrice, orderID, true), nil
	}

	limitPrice := entryPrice.Mul(decimal.NewFromInt(1).Add(slippageBuffer))
	orderID, err := m.client.PlaceOrder(ctx, symbol, qty, venue.SideBuy, venue.OrderTypeLimit, venue.TIFDay, &limitPrice)
	if err != nil {
		return TradePosition{}, fmt.Errorf("place limit entry: %w", err)
	}
	return pos.Open(entryPrice, orderID, false), nil
}

// AdvanceTrailingStop updates the in-memory stop and attempts to sync it
// to the venue via replaceOrder when it rises. A sync failure is logged
// but never blocks client-side protection (the CheckExit path still
// fires on the in-memory stop regardless of venue acknowledgement).
func (m *Manager) AdvanceTrailingStop(ctx context.Context, pos TradePosition, price, trailPercent decimal.Decimal) TradePosition {
	next := pos.AdvanceTrailingStop(price, trailPercent)
	if next.StopLoss.Equal(pos.StopLoss) {
		return next
	}
	if next.StopOrderID == "" {
		return next
	}
	newStop := next.StopLoss
	if err := m.client.ReplaceOrder(ctx, next.StopOrderID, nil, nil, &newStop); err != nil {
		m.logger.Warn("server-side stop sync failed, relying on client-side protection",
			zap.String("symbol", next.Symbol), zap.Error(err))
	}
	return next
}

// EvaluateExit runs the client-side safety trigger for positions without
// a venue-native bracket and, if triggered, submits the emergency market
// sell. Exit evaluation always precedes entry evaluation in the caller's
// per-cycle sequencing (spec ordering guarantee).
func (m *Manager) EvaluateExit(ctx context.Context, pos TradePosition, price decimal.Decimal) (TradePosition, bool, error) {
	if pos.HasVenueBracket {
		return pos, false, nil
	}
	triggered, reason := pos.CheckExit(price)
	if !triggered {
		return pos, false, nil
	}

	closing := pos.BeginClosing()
	m.logger.Info("emergency exit triggered", zap.String("symbol", pos.Symbol), zap.String("reason", string(reason)))
	if _, err := m.client.PlaceOrder(ctx, pos.Symbol, pos.Quantity, venue.SideSell, venue.OrderTypeMarket, venue.TIFIOC, nil); err != nil {
		return closing, false, fmt.Errorf("emergency exit: %w", err)
	}
	return closing.Close(), true, nil
}

// EvaluateSignalExit closes a position on an explicit Sell signal
// (distinct from the stop/target safety trigger), respecting the
// exit-before-entry ordering guarantee upstream.
func (m *Manager) EvaluateSignalExit(ctx context.Context, pos TradePosition) (TradePosition, error) {
	closing := pos.BeginClosing()
	if _, err := m.client.PlaceOrder(ctx, pos.Symbol, pos.Quantity, venue.SideSell, venue.OrderTypeMarket, venue.TIFDay, nil); err != nil {
		return closing, fmt.Errorf("signal exit: %w", err)
	}
	return closing.Close(), nil
}

// EvaluatePartialExits checks the configured profit-level thresholds
// against current unrealized profit% and fires any level not yet marked,
// in ascending order. A level never re-triggers (MarkPartialExit is
// idempotent per level).
func (m *Manager) EvaluatePartialExits(ctx context.Context, pos TradePosition, currentPrice decimal.Decimal, cfg PartialExitConfig) (TradePosition, error) {
	if !cfg.Enabled {
		return pos, nil
	}
	profitPct := currentPrice.Sub(pos.EntryPrice).Div(pos.EntryPrice)

	next := pos
	for i, threshold := range cfg.Levels {
		level := PartialExitLevel(i)
		if next.HasPartialExit(level) {
			continue
		}
		if profitPct.LessThan(threshold) {
			break
		}
		reduceBy := pos.Quantity.Mul(cfg.Reduce[i])
		if _, err := m.client.PlaceOrder(ctx, next.Symbol, reduceBy, venue.SideSell, venue.OrderTypeMarket, venue.TIFDay, nil); err != nil {
			return next, fmt.Errorf("partial exit level %d: %w", i, err)
		}
		next = next.MarkPartialExit(level, reduceBy)
	}
	return next, nil
}

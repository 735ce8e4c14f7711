package eventbus

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalEvent reports a StrategyEngine decision.
type SignalEvent struct {
	BaseEvent
	Symbol string
	Action string
	Reason string
}

// NewSignalEvent builds a SignalEvent stamped with now.
func NewSignalEvent(symbol, action, reason string) *SignalEvent {
	return &SignalEvent{BaseEvent: BaseEvent{Type: EventTypeSignal, Timestamp: time.Now()}, Symbol: symbol, Action: action, Reason: reason}
}

// OrderEvent reports an order placed or replaced with a venue.
type OrderEvent struct {
	BaseEvent
	Symbol   string
	Side     string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Status   string
}

// NewOrderEvent builds an OrderEvent stamped with now.
func NewOrderEvent(symbol, side string, quantity, price decimal.Decimal, status string) *OrderEvent {
	return &OrderEvent{BaseEvent: BaseEvent{Type: EventTypeOrder, Timestamp: time.Now()}, Symbol: symbol, Side: side, Quantity: quantity, Price: price, Status: status}
}

// FillEvent reports a closed round trip, mirroring journal.TradeRecord's
// shape for dashboard consumption without importing the journal package.
type FillEvent struct {
	BaseEvent
	Symbol string
	Side   string
	PnL    decimal.Decimal
	Reason string
}

// NewFillEvent builds a FillEvent stamped with now.
func NewFillEvent(symbol, side string, pnl decimal.Decimal, reason string) *FillEvent {
	return &FillEvent{BaseEvent: BaseEvent{Type: EventTypeFill, Timestamp: time.Now()}, Symbol: symbol, Side: side, PnL: pnl, Reason: reason}
}

// RiskAlertEvent reports a risk-control denial or warning.
type RiskAlertEvent struct {
	BaseEvent
	Severity string // info, warning, critical
	Symbol   string
	Message  string
}

// NewRiskAlertEvent builds a RiskAlertEvent stamped with now.
func NewRiskAlertEvent(severity, symbol, message string) *RiskAlertEvent {
	return &RiskAlertEvent{BaseEvent: BaseEvent{Type: EventTypeRiskAlert, Timestamp: time.Now()}, Severity: severity, Symbol: symbol, Message: message}
}

// DrawdownEvent reports a DrawdownGuard trip.
type DrawdownEvent struct {
	BaseEvent
	PeakEquity    decimal.Decimal
	CurrentEquity decimal.Decimal
	Reason        string
}

// NewDrawdownEvent builds a DrawdownEvent stamped with now.
func NewDrawdownEvent(peak, current decimal.Decimal, reason string) *DrawdownEvent {
	return &DrawdownEvent{BaseEvent: BaseEvent{Type: EventTypeDrawdown, Timestamp: time.Now()}, PeakEquity: peak, CurrentEquity: current, Reason: reason}
}

// HeartbeatMissEvent reports a Supervisor-detected silent component,
// published the moment the emergency protocol is armed.
type HeartbeatMissEvent struct {
	BaseEvent
	Component string
	LastBeat  time.Time
}

// NewHeartbeatMissEvent builds a HeartbeatMissEvent stamped with now.
func NewHeartbeatMissEvent(component string, lastBeat time.Time) *HeartbeatMissEvent {
	return &HeartbeatMissEvent{BaseEvent: BaseEvent{Type: EventTypeHeartbeatMiss, Timestamp: time.Now()}, Component: component, LastBeat: lastBeat}
}

// AnomalyEvent reports an AnomalyMonitor classification.
type AnomalyEvent struct {
	BaseEvent
	Metric         string
	Value          float64
	ZScore         float64
	Classification string // normal, warning, critical
}

// NewAnomalyEvent builds an AnomalyEvent stamped with now.
func NewAnomalyEvent(metric string, value, zscore float64, classification string) *AnomalyEvent {
	return &AnomalyEvent{BaseEvent: BaseEvent{Type: EventTypeAnomaly, Timestamp: time.Now()}, Metric: metric, Value: value, ZScore: zscore, Classification: classification}
}

// SafeModeEvent reports a SafeMode activation or recovery.
type SafeModeEvent struct {
	BaseEvent
	Active bool
	Reason string
}

// NewSafeModeEvent builds a SafeModeEvent stamped with now.
func NewSafeModeEvent(active bool, reason string) *SafeModeEvent {
	return &SafeModeEvent{BaseEvent: BaseEvent{Type: EventTypeSafeMode, Timestamp: time.Now()}, Active: active, Reason: reason}
}

// StatusEvent carries a periodic health/market snapshot for the
// external dashboard interface.
type StatusEvent struct {
	BaseEvent
	Profile     string
	Equity      decimal.Decimal
	OpenSymbols []string
	Message     string
}

// NewStatusEvent builds a StatusEvent stamped with now.
func NewStatusEvent(profile string, equity decimal.Decimal, openSymbols []string, message string) *StatusEvent {
	return &StatusEvent{BaseEvent: BaseEvent{Type: EventTypeStatus, Timestamp: time.Now()}, Profile: profile, Equity: equity, OpenSymbols: openSymbols, Message: message}
}

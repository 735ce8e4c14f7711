// Package venue defines the capability set every trading venue adapter
// satisfies, and the types that cross venue boundaries.
package venue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ErrorKind classifies a venue failure so callers can switch on it
// exhaustively instead of string-matching error text.
type ErrorKind string

const (
	ErrNetwork           ErrorKind = "Network"
	ErrAuth              ErrorKind = "Auth"
	ErrRateLimited       ErrorKind = "RateLimited"
	ErrInsufficientFunds ErrorKind = "InsufficientFunds"
	ErrMarketClosed      ErrorKind = "MarketClosed"
	ErrUnknown           ErrorKind = "Unknown"
)

// Error wraps a venue failure with its kind and the underlying cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Op + ": " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the resilient client should retry this error.
func (e *Error) Retryable() bool {
	return e.Kind == ErrNetwork
}

// NewError builds a venue error of a given kind.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Side is buy or sell.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is market or limit.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// TimeInForce controls order lifetime semantics.
type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
	TIFIOC TimeInForce = "ioc"
)

// OrderStatus reports the venue-side lifecycle state of a placed order.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "new"
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusPartial  OrderStatus = "partial"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusRejected OrderStatus = "rejected"
)

// Bar is an immutable OHLCV record. All indicator computation is a pure
// function over an ordered slice of Bar.
type Bar struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// Account is a venue-reported account snapshot.
type Account struct {
	Equity      decimal.Decimal
	BuyingPower decimal.Decimal
	Cash        decimal.Decimal
	Status      string
}

// ExternalPosition is a venue-reported open position, distinct from the
// engine's own immutable TradePosition value (internal/lifecycle).
type ExternalPosition struct {
	Symbol       string
	Side         Side
	Quantity     decimal.Decimal
	EntryPrice   decimal.Decimal
	CurrentPrice decimal.Decimal
}

// Order is a venue-reported order snapshot.
type Order struct {
	ID         string
	Symbol     string
	Side       Side
	Type       OrderType
	Quantity   decimal.Decimal
	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal
	Status     OrderStatus
	FilledQty  decimal.Decimal
	FilledAvg  decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// BrokerClient is the capability set every venue adapter satisfies.
// Variants (equity, crypto) are tagged implementations, not a base-struct
// hierarchy: callers hold a BrokerClient and never switch on concrete type.
type BrokerClient interface {
	Name() string
	Account(ctx context.Context) (Account, error)
	Positions(ctx context.Context) ([]ExternalPosition, error)
	LatestBar(ctx context.Context, symbol string) (*Bar, error)
	History(ctx context.Context, symbol string, n int) ([]Bar, error)
	PlaceOrder(ctx context.Context, symbol string, qty decimal.Decimal, side Side, typ OrderType, tif TimeInForce, limitPrice *decimal.Decimal) (string, error)
	PlaceBracket(ctx context.Context, symbol string, qty decimal.Decimal, side Side, takeProfit, stopLoss decimal.Decimal, limitPrice *decimal.Decimal) (string, error)
	OpenOrders(ctx context.Context, symbol string) ([]Order, error)
	ReplaceOrder(ctx context.Context, id string, newQty, newLimit, newStop *decimal.Decimal) error
	CancelAll(ctx context.Context, symbol string) error
	CloseAll(ctx context.Context) error
	// SupportsBrackets reports whether PlaceBracket is venue-native; when
	// false, PositionLifecycle falls back to a limit entry plus
	// client-side SL/TP tracking.
	SupportsBrackets() bool
}

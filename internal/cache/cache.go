// Package cache implements MarketDataCache: a single-writer, many-reader
// venue data cache with a hard TTL, rate-limit backoff, single-flight
// refresh collapsing, and pre-materialized derived views so read paths
// never perform venue I/O. Shaped as a TTL/metadata cache, generalized from file
// reads to live venue reads.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/venue"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Snapshot is the pre-materialized, read-only view served to callers.
// Fields are omitted (zero-valued with Stale flags) rather than the whole
// snapshot discarded when a sub-fetch partially fails.
type Snapshot struct {
	Account       venue.Account
	Positions     []venue.ExternalPosition
	RecentTrades  []venue.Order
	FetchedAt     time.Time
	AccountStale  bool
	PositionsStale bool
	TradesStale   bool
}

// Holding is a derived, priced view of one open position.
type Holding struct {
	Symbol        string
	Side          venue.Side
	Quantity      decimal.Decimal
	EntryPrice    decimal.Decimal
	CurrentPrice  decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// DeploymentSummary is a derived capital-at-risk view.
type DeploymentSummary struct {
	Equity         decimal.Decimal
	DeployedValue  decimal.Decimal
	DeployedPct    decimal.Decimal
	OpenPositions  int
}

// Validator sanity-checks bars before they are cached, adapted from the
// teacher's DataQualityValidator (duplicate/chronological/OHLC-consistency
// checks) rather than trusting venue data blindly.
type Validator interface {
	ValidateBars(bars []venue.Bar) []venue.Bar
}

// Config tunes TTL and backoff.
type Config struct {
	TTL            time.Duration
	RateLimitBackoff time.Duration
	InterCallSpacing time.Duration
}

// DefaultConfig matches the spec's named defaults.
func DefaultConfig() Config {
	return Config{TTL: 60 * time.Second, RateLimitBackoff: 120 * time.Second, InterCallSpacing: 200 * time.Millisecond}
}

// Cache is the MarketDataCache. One instance is owned per venue client;
// readers only ever see copies, never the internal snapshot pointer.
type Cache struct {
	logger    *zap.Logger
	client    venue.BrokerClient
	cfg       Config
	validator Validator

	mu            sync.RWMutex
	snapshot      Snapshot
	backoffUntil  time.Time
	bars          map[string][]venue.Bar

	group singleflight.Group
}

// New creates a MarketDataCache over client.
func New(logger *zap.Logger, client venue.BrokerClient, cfg Config, validator Validator) *Cache {
	return &Cache{
		logger:    logger.Named("cache." + client.Name()),
		client:    client,
		cfg:       cfg,
		validator: validator,
		bars:      make(map[string][]venue.Bar),
	}
}

// Refresh fetches a fresh snapshot if the TTL has elapsed and no rate-limit
// backoff is active, collapsing concurrent callers into one venue round
// trip (I8). A caller inside the TTL window, or inside an active backoff
// window, is served the existing (possibly stale) snapshot at no I/O cost.
func (c *Cache) Refresh(ctx context.Context) (Snapshot, error) {
	c.mu.RLock()
	fresh := time.Since(c.snapshot.FetchedAt) < c.cfg.TTL
	inBackoff := time.Now().Before(c.backoffUntil)
	current := c.snapshot
	c.mu.RUnlock()

	if fresh || inBackoff {
		return current, nil
	}

	v, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.doRefresh(ctx), nil
	})
	if err != nil {
		return current, err
	}
	return v.(Snapshot), nil
}

// doRefresh performs the batched balance → trade-balance → trade-history
// sequence with inter-call spacing, publishing a partial snapshot (rather
// than discarding everything) when a later sub-fetch fails with
// RateLimited.
func (c *Cache) doRefresh(ctx context.Context) Snapshot {
	snap := Snapshot{FetchedAt: time.Now()}

	account, err := c.client.Account(ctx)
	if err != nil {
		c.noteError(err)
		c.mu.RLock()
		snap.Account = c.snapshot.Account
		c.mu.RUnlock()
		snap.AccountStale = true
	} else {
		snap.Account = account
	}

	time.Sleep(c.cfg.InterCallSpacing)

	positions, err := c.client.Positions(ctx)
	if err != nil {
		c.noteError(err)
		c.mu.RLock()
		snap.Positions = c.snapshot.Positions
		c.mu.RUnlock()
		snap.PositionsStale = true
	} else {
		snap.Positions = positions
	}

	time.Sleep(c.cfg.InterCallSpacing)

	trades, err := c.client.OpenOrders(ctx, "")
	if err != nil {
		c.noteError(err)
		c.mu.RLock()
		snap.RecentTrades = c.snapshot.RecentTrades
		c.mu.RUnlock()
		snap.TradesStale = true
	} else {
		snap.RecentTrades = trades
	}

	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
	return snap
}

func (c *Cache) noteError(err error) {
	var verr *venue.Error
	if ok := venueErrorKind(err, &verr); ok && verr.Kind == venue.ErrRateLimited {
		c.mu.Lock()
		c.backoffUntil = time.Now().Add(c.cfg.RateLimitBackoff)
		c.mu.Unlock()
		c.logger.Warn("rate limited, entering backoff", zap.Duration("backoff", c.cfg.RateLimitBackoff))
	}
}

func venueErrorKind(err error, out **venue.Error) bool {
	if err == nil {
		return false
	}
	if v, ok := err.(*venue.Error); ok {
		*out = v
		return true
	}
	return false
}

// Bars returns cached bars for symbol, fetching and validating fresh ones
// from the venue if the TTL has elapsed.
func (c *Cache) Bars(ctx context.Context, symbol string, n int) ([]venue.Bar, error) {
	c.mu.RLock()
	cached, ok := c.bars[symbol]
	c.mu.RUnlock()
	if ok && len(cached) >= n {
		return cached[len(cached)-n:], nil
	}

	v, err, _ := c.group.Do("bars:"+symbol, func() (any, error) {
		bars, err := c.client.History(ctx, symbol, n)
		if err != nil {
			c.noteError(err)
			return nil, err
		}
		if c.validator != nil {
			bars = c.validator.ValidateBars(bars)
		}
		c.mu.Lock()
		c.bars[symbol] = bars
		c.mu.Unlock()
		return bars, nil
	})
	if err != nil {
		if ok {
			return cached, nil
		}
		return nil, err
	}
	return v.([]venue.Bar), nil
}

// Holdings derives a priced view of every open position using the most
// recently cached latest bar for each symbol.
func (c *Cache) Holdings() []Holding {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Holding, 0, len(c.snapshot.Positions))
	for _, p := range c.snapshot.Positions {
		current := p.CurrentPrice
		if bars, ok := c.bars[p.Symbol]; ok && len(bars) > 0 {
			current = bars[len(bars)-1].Close
		}
		pnl := current.Sub(p.EntryPrice).Mul(p.Quantity)
		if p.Side == venue.SideSell {
			pnl = p.EntryPrice.Sub(current).Mul(p.Quantity)
		}
		out = append(out, Holding{
			Symbol: p.Symbol, Side: p.Side, Quantity: p.Quantity,
			EntryPrice: p.EntryPrice, CurrentPrice: current, UnrealizedPnL: pnl,
		})
	}
	return out
}

// Deployment derives the capital-at-risk summary for the current snapshot.
func (c *Cache) Deployment() DeploymentSummary {
	holdings := c.Holdings()
	c.mu.RLock()
	equity := c.snapshot.Account.Equity
	c.mu.RUnlock()

	deployed := decimal.Zero
	for _, h := range holdings {
		deployed = deployed.Add(h.Quantity.Mul(h.CurrentPrice).Abs())
	}
	pct := decimal.Zero
	if !equity.IsZero() {
		pct = deployed.Div(equity).Mul(decimal.NewFromInt(100))
	}
	return DeploymentSummary{Equity: equity, DeployedValue: deployed, DeployedPct: pct, OpenPositions: len(holdings)}
}

// Snapshot returns a copy of the current cached snapshot without
// triggering a refresh.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

package resilient

import (
	"context"

	"github.com/atlas-desktop/trading-backend/internal/venue"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Client wraps a venue.BrokerClient with a per-endpoint-class rate
// limiter, circuit breaker, and jittered retry, instrumented with
// Prometheus. It satisfies venue.BrokerClient itself so callers upstream
// (internal/lifecycle, internal/cache) never see the difference between a
// raw adapter and a resilient one.
type Client struct {
	inner   venue.BrokerClient
	logger  *zap.Logger
	limits  *BucketSet
	breaker *Breaker
	retry   RetryConfig
	metrics *Metrics
}

// New wraps inner with the given limiter factory and breaker config.
func New(inner venue.BrokerClient, logger *zap.Logger, limiterFactory func() *RateLimiter, breakerCfg BreakerConfig, retryCfg RetryConfig, metrics *Metrics) *Client {
	name := inner.Name()
	c := &Client{
		inner:  inner,
		logger: logger.Named("resilient." + name),
		limits: NewBucketSet(limiterFactory),
		retry:  retryCfg,
		metrics: metrics,
	}
	c.breaker = NewBreaker(breakerCfg, func(from, to BreakerState) {
		c.logger.Warn("circuit breaker transition", zap.String("from", string(from)), zap.String("to", string(to)))
		if metrics != nil {
			metrics.BreakerTransitions.WithLabelValues(name, "all", string(to)).Inc()
		}
	})
	return c
}

func (c *Client) Name() string           { return c.inner.Name() }
func (c *Client) SupportsBrackets() bool { return c.inner.SupportsBrackets() }

// call runs fn through the rate limiter, circuit breaker, and retry
// layers, recording Prometheus metrics along the way.
func call[T any](ctx context.Context, c *Client, endpoint string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := c.limits.Acquire(ctx, endpoint); err != nil {
		return zero, err
	}

	if c.metrics != nil {
		c.metrics.Inflight.WithLabelValues(c.Name(), endpoint).Inc()
		defer c.metrics.Inflight.WithLabelValues(c.Name(), endpoint).Dec()
	}

	if !c.breaker.Allow() {
		if c.metrics != nil {
			c.metrics.CallsTotal.WithLabelValues(c.Name(), endpoint, "breaker_open").Inc()
		}
		return zero, ErrBreakerOpen
	}

	attempts := 0
	result, err := Retry(ctx, c.retry, func(ctx context.Context) (T, error) {
		if attempts > 0 && c.metrics != nil {
			c.metrics.RetriesTotal.WithLabelValues(c.Name(), endpoint).Inc()
		}
		attempts++
		return fn(ctx)
	})

	if err != nil {
		c.breaker.RecordFailure()
		if c.metrics != nil {
			c.metrics.CallsTotal.WithLabelValues(c.Name(), endpoint, "error").Inc()
		}
		return zero, err
	}
	c.breaker.RecordSuccess()
	if c.metrics != nil {
		c.metrics.CallsTotal.WithLabelValues(c.Name(), endpoint, "ok").Inc()
	}
	return result, nil
}

func (c *Client) Account(ctx context.Context) (venue.Account, error) {
	return call(ctx, c, "account", c.inner.Account)
}

func (c *Client) Positions(ctx context.Context) ([]venue.ExternalPosition, error) {
	return call(ctx, c, "positions", c.inner.Positions)
}

func (c *Client) LatestBar(ctx context.Context, symbol string) (*venue.Bar, error) {
	return call(ctx, c, "market_data", func(ctx context.Context) (*venue.Bar, error) {
		return c.inner.LatestBar(ctx, symbol)
	})
}

func (c *Client) History(ctx context.Context, symbol string, n int) ([]venue.Bar, error) {
	return call(ctx, c, "market_data", func(ctx context.Context) ([]venue.Bar, error) {
		return c.inner.History(ctx, symbol, n)
	})
}

func (c *Client) PlaceOrder(ctx context.Context, symbol string, qty decimal.Decimal, side venue.Side, typ venue.OrderType, tif venue.TimeInForce, limitPrice *decimal.Decimal) (string, error) {
	return call(ctx, c, "orders", func(ctx context.Context) (string, error) {
		return c.inner.PlaceOrder(ctx, symbol, qty, side, typ, tif, limitPrice)
	})
}

func (c *Client) PlaceBracket(ctx context.Context, symbol string, qty decimal.Decimal, side venue.Side, takeProfit, stopLoss decimal.Decimal, limitPrice *decimal.Decimal) (string, error) {
	return call(ctx, c, "orders", func(ctx context.Context) (string, error) {
		return c.inner.PlaceBracket(ctx, symbol, qty, side, takeProfit, stopLoss, limitPrice)
	})
}

func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]venue.Order, error) {
	return call(ctx, c, "orders", func(ctx context.Context) ([]venue.Order, error) {
		return c.inner.OpenOrders(ctx, symbol)
	})
}

func (c *Client) ReplaceOrder(ctx context.Context, id string, newQty, newLimit, newStop *decimal.Decimal) error {
	_, err := call(ctx, c, "orders", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.inner.ReplaceOrder(ctx, id, newQty, newLimit, newStop)
	})
	return err
}

func (c *Client) CancelAll(ctx context.Context, symbol string) error {
	_, err := call(ctx, c, "orders", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.inner.CancelAll(ctx, symbol)
	})
	return err
}

func (c *Client) CloseAll(ctx context.Context) error {
	_, err := call(ctx, c, "orders", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.inner.CloseAll(ctx)
	})
	return err
}

var _ venue.BrokerClient = (*Client)(nil)

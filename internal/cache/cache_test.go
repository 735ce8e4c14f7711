package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/venue"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClient struct {
	venue.BrokerClient
	accountCalls int32
	failTrades   bool
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Account(ctx context.Context) (venue.Account, error) {
	atomic.AddInt32(&f.accountCalls, 1)
	return venue.Account{Equity: decimal.NewFromInt(10000)}, nil
}

func (f *fakeClient) Positions(ctx context.Context) ([]venue.ExternalPosition, error) {
	return []venue.ExternalPosition{{Symbol: "AAPL", Quantity: decimal.NewFromInt(10), EntryPrice: decimal.NewFromInt(100), CurrentPrice: decimal.NewFromInt(110)}}, nil
}

func (f *fakeClient) OpenOrders(ctx context.Context, symbol string) ([]venue.Order, error) {
	if f.failTrades {
		return nil, venue.NewError(venue.ErrRateLimited, "OpenOrders", nil)
	}
	return nil, nil
}

func TestRefreshCollapsesConcurrentCallers(t *testing.T) {
	fc := &fakeClient{}
	c := New(zap.NewNop(), fc, Config{TTL: time.Minute, RateLimitBackoff: time.Minute}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Refresh(context.Background())
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fc.accountCalls))
}

func TestRefreshPublishesPartialSnapshotOnSubFetchFailure(t *testing.T) {
	fc := &fakeClient{failTrades: true}
	c := New(zap.NewNop(), fc, Config{TTL: time.Minute, RateLimitBackoff: time.Minute}, nil)

	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.AccountStale)
	assert.False(t, snap.PositionsStale)
	assert.True(t, snap.TradesStale)
	assert.True(t, snap.Account.Equity.Equal(decimal.NewFromInt(10000)))
}

func TestHoldingsComputesUnrealizedPnL(t *testing.T) {
	fc := &fakeClient{}
	c := New(zap.NewNop(), fc, Config{TTL: time.Minute, RateLimitBackoff: time.Minute}, nil)
	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	holdings := c.Holdings()
	require.Len(t, holdings, 1)
	assert.True(t, holdings[0].UnrealizedPnL.Equal(decimal.NewFromInt(100)))
}

func TestBarValidatorDropsMalformedBars(t *testing.T) {
	v := NewBarValidator(zap.NewNop())
	now := time.Now()
	bars := []venue.Bar{
		{OpenTime: now, Open: decimal.NewFromInt(10), High: decimal.NewFromInt(12), Low: decimal.NewFromInt(9), Close: decimal.NewFromInt(11)},
		{OpenTime: now.Add(time.Minute), Open: decimal.NewFromInt(10), High: decimal.NewFromInt(5), Low: decimal.NewFromInt(9), Close: decimal.NewFromInt(11)}, // high < low
		{OpenTime: now.Add(2 * time.Minute), Open: decimal.NewFromInt(10), High: decimal.NewFromInt(12), Low: decimal.NewFromInt(9), Close: decimal.NewFromInt(11)},
	}
	out := v.ValidateBars(bars)
	assert.Len(t, out, 2)
}

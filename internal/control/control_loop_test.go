package control

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/advisor"
	"github.com/atlas-desktop/trading-backend/internal/cache"
	"github.com/atlas-desktop/trading-backend/internal/config"
	"github.com/atlas-desktop/trading-backend/internal/engine"
	"github.com/atlas-desktop/trading-backend/internal/eventbus"
	"github.com/atlas-desktop/trading-backend/internal/journal"
	"github.com/atlas-desktop/trading-backend/internal/lifecycle"
	"github.com/atlas-desktop/trading-backend/internal/pdt"
	"github.com/atlas-desktop/trading-backend/internal/regime"
	"github.com/atlas-desktop/trading-backend/internal/risk"
	"github.com/atlas-desktop/trading-backend/internal/venue"
	"github.com/atlas-desktop/trading-backend/internal/workers"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeHeartbeat struct{ beats int }

func (f *fakeHeartbeat) Beat(string) { f.beats++ }

type fakeClient struct {
	name      string
	equity    decimal.Decimal
	bars      []venue.Bar
	positions []venue.ExternalPosition
	orders    int
}

func (c *fakeClient) Name() string { return c.name }
func (c *fakeClient) Account(ctx context.Context) (venue.Account, error) {
	return venue.Account{Equity: c.equity, BuyingPower: c.equity, Cash: c.equity, Status: "ACTIVE"}, nil
}
func (c *fakeClient) Positions(ctx context.Context) ([]venue.ExternalPosition, error) {
	return c.positions, nil
}
func (c *fakeClient) LatestBar(ctx context.Context, symbol string) (*venue.Bar, error) {
	b := c.bars[len(c.bars)-1]
	return &b, nil
}
func (c *fakeClient) History(ctx context.Context, symbol string, n int) ([]venue.Bar, error) {
	return c.bars, nil
}
func (c *fakeClient) PlaceOrder(ctx context.Context, symbol string, qty decimal.Decimal, side venue.Side, typ venue.OrderType, tif venue.TimeInForce, limitPrice *decimal.Decimal) (string, error) {
	c.orders++
	return "ord-1", nil
}
func (c *fakeClient) PlaceBracket(ctx context.Context, symbol string, qty decimal.Decimal, side venue.Side, tp, sl decimal.Decimal, limitPrice *decimal.Decimal) (string, error) {
	c.orders++
	return "ord-1", nil
}
func (c *fakeClient) OpenOrders(ctx context.Context, symbol string) ([]venue.Order, error) {
	return nil, nil
}
func (c *fakeClient) ReplaceOrder(ctx context.Context, id string, newQty, newLimit, newStop *decimal.Decimal) error {
	return nil
}
func (c *fakeClient) CancelAll(ctx context.Context, symbol string) error { return nil }
func (c *fakeClient) CloseAll(ctx context.Context) error                { return nil }
func (c *fakeClient) SupportsBrackets() bool                            { return false }

var _ venue.BrokerClient = (*fakeClient)(nil)

func flatBars(n int, price float64) []venue.Bar {
	bars := make([]venue.Bar, n)
	now := time.Now().Add(-time.Duration(n) * time.Minute)
	for i := 0; i < n; i++ {
		p := decimal.NewFromFloat(price)
		bars[i] = venue.Bar{OpenTime: now.Add(time.Duration(i) * time.Minute), Open: p, High: p, Low: p, Close: p, Volume: decimal.NewFromInt(1000)}
	}
	return bars
}

func newTestLoop(t *testing.T, client *fakeClient) (*ControlLoop, *fakeHeartbeat) {
	t.Helper()
	logger := zap.NewNop()

	j, err := journal.Open(logger, t.TempDir()+"/journal.db")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	c := cache.New(logger, client, cache.DefaultConfig(), nil)
	eng := engine.New(engine.DefaultConfig())
	regimeDet := regime.NewDetector(logger, regime.DefaultConfig())
	lifecycleMgr := lifecycle.New(logger, client)
	pdtGuard := pdt.New(j, client.Name())
	drawdown := risk.NewDrawdownGuard(decimal.NewFromFloat(0.2))
	bus := eventbus.New(logger, eventbus.DefaultConfig())
	t.Cleanup(bus.Close)
	advisors := advisor.New(logger)
	pool := workers.NewPool(logger, workers.DefaultPoolConfig("test"))
	pool.Start()
	t.Cleanup(func() { pool.Stop() })
	hb := &fakeHeartbeat{}

	profile := config.ProfileConfig{
		Name: "test", Venue: "equity", Enabled: true, CycleInterval: time.Hour,
		TakeProfitPercent: decimal.NewFromFloat(0.05), StopLossPercent: decimal.NewFromFloat(0.02),
		TrailingStopPercent: decimal.NewFromFloat(0.015),
	}

	cl := New(logger, profile, Deps{
		Client: client, Cache: c, Engine: eng, RegimeDet: regimeDet, Lifecycle: lifecycleMgr,
		Journal: j, PDTGuard: pdtGuard, Drawdown: drawdown, Bus: bus, Advisors: advisors,
		Pool: pool, Heartbeat: hb, Universe: StaticUniverse{"AAPL"}, Kelly: risk.DefaultKellyConfig(),
	})
	return cl, hb
}

func TestRunCycleBeatsHeartbeatEvenWhenDrawdownTripped(t *testing.T) {
	client := &fakeClient{name: "equity-test", equity: decimal.NewFromInt(100), bars: flatBars(60, 10)}
	cl, hb := newTestLoop(t, client)

	cl.drawdown.Update(decimal.NewFromInt(1000))
	err := cl.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, hb.beats)
	require.Empty(t, cl.openSymbols(), "drawdown trip must skip entries entirely")
}

func TestRunCycleBeatsHeartbeatOnNormalPass(t *testing.T) {
	client := &fakeClient{name: "equity-test", equity: decimal.NewFromInt(10000), bars: flatBars(60, 10)}
	cl, hb := newTestLoop(t, client)

	err := cl.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, hb.beats)
}

func TestActiveSymbolsIncludesHeldPositionsBeyondUniverse(t *testing.T) {
	client := &fakeClient{name: "equity-test", equity: decimal.NewFromInt(10000), bars: flatBars(60, 10)}
	cl, _ := newTestLoop(t, client)

	cl.mu.Lock()
	cl.positions["MSFT"] = lifecycle.NewPosition("MSFT", decimal.NewFromInt(1), decimal.NewFromInt(9), decimal.NewFromInt(11))
	cl.mu.Unlock()

	symbols := cl.activeSymbols(regime.RegimeNeutral)
	require.Contains(t, symbols, "AAPL")
	require.Contains(t, symbols, "MSFT")
}

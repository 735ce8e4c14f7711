package pdt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/journal"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestGuard(t *testing.T) (*Guard, *journal.Journal) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(zap.NewNop(), path)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return New(j, "equity"), j
}

func appendDayTrade(t *testing.T, j *journal.Journal, symbol string, when time.Time) {
	t.Helper()
	require.NoError(t, j.Append(context.Background(), journal.TradeRecord{
		ID: uuid.NewString(), Symbol: symbol, Venue: "equity", Side: "buy",
		Quantity: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(100), ExitPrice: decimal.NewFromInt(101),
		EntryTime: when, ExitTime: when, PnL: decimal.NewFromInt(1),
	}))
}

func TestFourthDayTradeDeniedUnderThreshold(t *testing.T) {
	g, j := openTestGuard(t)
	now := time.Now()

	appendDayTrade(t, j, "AAPL", now)
	appendDayTrade(t, j, "GOOGL", now)
	appendDayTrade(t, j, "MSFT", now)

	allowed, err := g.AllowSell(context.Background(), decimal.NewFromInt(20000), "TSLA", true)
	require.NoError(t, err)
	require.False(t, allowed, "a fourth same-day round trip must be denied under $25k equity")
}

func TestOvernightSellNeverCounted(t *testing.T) {
	g, _ := openTestGuard(t)
	allowed, err := g.AllowSell(context.Background(), decimal.NewFromInt(20000), "TSLA", false)
	require.NoError(t, err)
	require.True(t, allowed, "an overnight position's sell is never a day trade")
}

func TestNoRestrictionAtOrAboveThreshold(t *testing.T) {
	g, j := openTestGuard(t)
	now := time.Now()
	appendDayTrade(t, j, "AAPL", now)
	appendDayTrade(t, j, "GOOGL", now)
	appendDayTrade(t, j, "MSFT", now)
	appendDayTrade(t, j, "NFLX", now)

	allowed, err := g.AllowSell(context.Background(), decimal.NewFromInt(30000), "TSLA", true)
	require.NoError(t, err)
	require.True(t, allowed, "equity at or above $25k has no PDT restriction")
}

func TestThirdDayTradeStillAllowed(t *testing.T) {
	g, j := openTestGuard(t)
	now := time.Now()
	appendDayTrade(t, j, "AAPL", now)
	appendDayTrade(t, j, "GOOGL", now)

	allowed, err := g.AllowSell(context.Background(), decimal.NewFromInt(20000), "MSFT", true)
	require.NoError(t, err)
	require.True(t, allowed)
}

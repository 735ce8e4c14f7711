package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(zap.NewNop(), path)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndGetRoundTripsPnL(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	entryTime := time.Now().Add(-time.Hour)
	exitTime := time.Now()
	pnl := decimal.NewFromFloat(123.45)

	record := TradeRecord{
		ID: uuid.NewString(), Symbol: "AAPL", Venue: "equity", Side: "buy",
		Quantity: decimal.NewFromInt(10), EntryPrice: decimal.NewFromInt(100), ExitPrice: decimal.NewFromFloat(112.345),
		EntryTime: entryTime, ExitTime: exitTime, PnL: pnl, Reason: "target_hit",
	}
	require.NoError(t, j.Append(ctx, record))

	got, err := j.Get(ctx, record.ID)
	require.NoError(t, err)
	require.True(t, got.PnL.Equal(pnl), "round-tripped PnL must equal the value computed at close time")
	require.Equal(t, record.Symbol, got.Symbol)
}

func TestTradesSinceFiltersByWindow(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	old := TradeRecord{ID: uuid.NewString(), Symbol: "AAPL", Venue: "equity", Quantity: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(1), ExitPrice: decimal.NewFromInt(1), EntryTime: time.Now().Add(-10 * 24 * time.Hour), ExitTime: time.Now().Add(-10 * 24 * time.Hour), PnL: decimal.Zero}
	recent := TradeRecord{ID: uuid.NewString(), Symbol: "AAPL", Venue: "equity", Quantity: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(1), ExitPrice: decimal.NewFromInt(1), EntryTime: time.Now(), ExitTime: time.Now(), PnL: decimal.Zero}
	require.NoError(t, j.Append(ctx, old))
	require.NoError(t, j.Append(ctx, recent))

	trades, err := j.TradesSince(ctx, "equity", time.Now().Add(-5*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, recent.ID, trades[0].ID)
}

func TestSymbolStatisticsComputesWinRate(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for _, pnl := range []float64{10, -5, 20, -2} {
		require.NoError(t, j.Append(ctx, TradeRecord{
			ID: uuid.NewString(), Symbol: "AAPL", Venue: "equity",
			Quantity: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(100), ExitPrice: decimal.NewFromInt(100),
			EntryTime: time.Now(), ExitTime: time.Now(), PnL: decimal.NewFromFloat(pnl),
		}))
	}

	stats, err := j.SymbolStatistics(ctx, "equity", "AAPL")
	require.NoError(t, err)
	require.Equal(t, 4, stats.TotalTrades)
	require.Equal(t, 2, stats.Wins)
	require.True(t, stats.WinRate.Equal(decimal.NewFromFloat(0.5)))
}

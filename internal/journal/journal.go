// Package journal implements the append-only trade Journal backing
// PDTGuard's day-trade counting and the Journal round-trip law (R1):
// persisting a position open then close and re-reading yields the same
// P&L the lifecycle computed. Structured as a load/save store with a
// metadata cache, but backed by
// modernc.org/sqlite for transactional, queryable, restart-durable
// storage instead of flat JSON files.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// TradeRecord is one closed round-trip, the unit the Journal persists.
type TradeRecord struct {
	ID         string
	Symbol     string
	Venue      string
	Side       string
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	EntryTime  time.Time
	ExitTime   time.Time
	PnL        decimal.Decimal
	Reason     string
}

// Journal is the append-only, sqlite-backed trade store.
type Journal struct {
	logger *zap.Logger
	db     *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and ensures
// the schema exists.
func Open(logger *zap.Logger, path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite: single writer, serialize via one connection

	j := &Journal{logger: logger.Named("journal"), db: db}
	if err := j.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			venue TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity TEXT NOT NULL,
			entry_price TEXT NOT NULL,
			exit_price TEXT NOT NULL,
			entry_time INTEGER NOT NULL,
			exit_time INTEGER NOT NULL,
			pnl TEXT NOT NULL,
			reason TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_symbol_exit ON trades(symbol, exit_time);
		CREATE INDEX IF NOT EXISTS idx_trades_venue_exit ON trades(venue, exit_time);
	`)
	return err
}

// Append persists a closed trade. The table is append-only: there is no
// Update or Delete in this package's surface.
func (j *Journal) Append(ctx context.Context, t TradeRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades (id, symbol, venue, side, quantity, entry_price, exit_price, entry_time, exit_time, pnl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, t.Venue, t.Side, t.Quantity.String(), t.EntryPrice.String(), t.ExitPrice.String(),
		t.EntryTime.Unix(), t.ExitTime.Unix(), t.PnL.String(), t.Reason)
	if err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	return nil
}

// Get fetches a single trade by ID, used by round-trip verification (R1).
func (j *Journal) Get(ctx context.Context, id string) (*TradeRecord, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, symbol, venue, side, quantity, entry_price, exit_price, entry_time, exit_time, pnl, reason
		FROM trades WHERE id = ?`, id)
	return scanTrade(row)
}

func scanTrade(row *sql.Row) (*TradeRecord, error) {
	var t TradeRecord
	var qty, entryPx, exitPx, pnl string
	var entryTs, exitTs int64
	if err := row.Scan(&t.ID, &t.Symbol, &t.Venue, &t.Side, &qty, &entryPx, &exitPx, &entryTs, &exitTs, &pnl, &t.Reason); err != nil {
		return nil, err
	}
	t.Quantity, _ = decimal.NewFromString(qty)
	t.EntryPrice, _ = decimal.NewFromString(entryPx)
	t.ExitPrice, _ = decimal.NewFromString(exitPx)
	t.PnL, _ = decimal.NewFromString(pnl)
	t.EntryTime = time.Unix(entryTs, 0).UTC()
	t.ExitTime = time.Unix(exitTs, 0).UTC()
	return &t, nil
}

// TradesSince returns all trades for venue exited at or after since, in
// chronological order. Used for statistics and for PDTGuard's rolling
// window query.
func (j *Journal) TradesSince(ctx context.Context, venueName string, since time.Time) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, symbol, venue, side, quantity, entry_price, exit_price, entry_time, exit_time, pnl, reason
		FROM trades WHERE venue = ? AND exit_time >= ? ORDER BY exit_time ASC`, venueName, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("query trades since: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var qty, entryPx, exitPx, pnl string
		var entryTs, exitTs int64
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Venue, &t.Side, &qty, &entryPx, &exitPx, &entryTs, &exitTs, &pnl, &t.Reason); err != nil {
			return nil, err
		}
		t.Quantity, _ = decimal.NewFromString(qty)
		t.EntryPrice, _ = decimal.NewFromString(entryPx)
		t.ExitPrice, _ = decimal.NewFromString(exitPx)
		t.PnL, _ = decimal.NewFromString(pnl)
		t.EntryTime = time.Unix(entryTs, 0).UTC()
		t.ExitTime = time.Unix(exitTs, 0).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// Statistics aggregates win rate and average win/loss for a symbol from
// its journalled trades, backing the SymbolStats data model entry.
type Statistics struct {
	Symbol      string
	TotalTrades int
	Wins        int
	WinRate     decimal.Decimal
	AvgWin      decimal.Decimal
	AvgLoss     decimal.Decimal
}

// SymbolStatistics computes Statistics for symbol on venueName from all
// journalled history.
func (j *Journal) SymbolStatistics(ctx context.Context, venueName, symbol string) (Statistics, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT pnl FROM trades WHERE venue = ? AND symbol = ?`, venueName, symbol)
	if err != nil {
		return Statistics{}, err
	}
	defer rows.Close()

	stats := Statistics{Symbol: symbol}
	sumWin, sumLoss := decimal.Zero, decimal.Zero
	lossCount := 0
	for rows.Next() {
		var pnlStr string
		if err := rows.Scan(&pnlStr); err != nil {
			return Statistics{}, err
		}
		pnl, _ := decimal.NewFromString(pnlStr)
		stats.TotalTrades++
		if pnl.GreaterThan(decimal.Zero) {
			stats.Wins++
			sumWin = sumWin.Add(pnl)
		} else if pnl.LessThan(decimal.Zero) {
			lossCount++
			sumLoss = sumLoss.Add(pnl)
		}
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = decimal.NewFromInt(int64(stats.Wins)).Div(decimal.NewFromInt(int64(stats.TotalTrades)))
	}
	if stats.Wins > 0 {
		stats.AvgWin = sumWin.Div(decimal.NewFromInt(int64(stats.Wins)))
	}
	if lossCount > 0 {
		stats.AvgLoss = sumLoss.Div(decimal.NewFromInt(int64(lossCount)))
	}
	return stats, rows.Err()
}

// Close releases the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Package pdt implements PDTGuard: Journal-backed day-trade counting over
// a rolling five-business-day window, denying a fourth same-day round
// trip once equity drops below the $25,000 pattern-day-trader threshold.
// The guard is deliberately stateless in memory — it consults the Journal
// on every check, per spec §4.6, so a restart cannot reset the count.
package pdt

import (
	"context"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/journal"
	"github.com/shopspring/decimal"
)

// Threshold is the equity level below which PDT day-trade limits apply.
var Threshold = decimal.NewFromInt(25000)

// MaxDayTrades is the number of day trades allowed in the rolling window
// before the guard denies a further one.
const MaxDayTrades = 3

// WindowBusinessDays is the rolling window width.
const WindowBusinessDays = 5

// Guard denies a day-trade-creating sell when it would exceed the PDT
// limit for a sub-$25k account.
type Guard struct {
	j         *journal.Journal
	venueName string
}

// New creates a Guard over journal j for venueName.
func New(j *journal.Journal, venueName string) *Guard {
	return &Guard{j: j, venueName: venueName}
}

// AllowSell reports whether selling symbol now would be permitted: either
// the account is at or above the PDT threshold (no restriction), or
// completing this sell as a day trade would not create a fourth day trade
// in the rolling window. The Guard has no enable/disable switch of its
// own: it applies this check on every call. Overnight positions —
// a sell whose matching buy is not from the current business day — never
// count against the limit, so this method only needs to check whether
// today's own buy on this symbol exists.
func (g *Guard) AllowSell(ctx context.Context, equity decimal.Decimal, symbol string, boughtToday bool) (bool, error) {
	if !boughtToday {
		return true, nil // overnight position; this sell is never a day trade
	}
	if equity.GreaterThanOrEqual(Threshold) {
		return true, nil
	}

	count, err := g.DayTradeCount(ctx)
	if err != nil {
		return false, err
	}
	return count < MaxDayTrades, nil
}

// DayTradeCount counts day trades (a buy and sell of the same symbol on
// the same business day) recorded in the Journal over the rolling
// five-business-day window ending now.
func (g *Guard) DayTradeCount(ctx context.Context) (int, error) {
	since := rollingWindowStart(time.Now(), WindowBusinessDays)
	trades, err := g.j.TradesSince(ctx, g.venueName, since)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, t := range trades {
		if isSameBusinessDay(t.EntryTime, t.ExitTime) {
			count++
		}
	}
	return count, nil
}

func isSameBusinessDay(entry, exit time.Time) bool {
	ey, em, ed := entry.Date()
	xy, xm, xd := exit.Date()
	return ey == xy && em == xm && ed == xd
}

// rollingWindowStart walks back n business days (skipping weekends) from
// now, returning midnight of that day.
func rollingWindowStart(now time.Time, businessDays int) time.Time {
	d := now
	remaining := businessDays
	for remaining > 0 {
		d = d.AddDate(0, 0, -1)
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			remaining--
		}
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}

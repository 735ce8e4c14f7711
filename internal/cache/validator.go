package cache

import (
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-backend/internal/venue"
)

// BarValidator filters malformed bars out of a venue history response
// before they enter the cache, running OHLC-consistency and
// chronological-order checks
// down to the subset relevant to a live cache: it drops bad bars rather
// than scoring and rejecting the whole batch, since a live feed cannot
// afford to discard an entire refresh over one malformed bar.
type BarValidator struct {
	logger *zap.Logger
}

// NewBarValidator creates a validator.
func NewBarValidator(logger *zap.Logger) *BarValidator {
	return &BarValidator{logger: logger}
}

// ValidateBars drops bars with non-positive prices, inverted high/low, or
// a close outside [low, high], and drops any bar not strictly after the
// previous kept bar's timestamp.
func (v *BarValidator) ValidateBars(bars []venue.Bar) []venue.Bar {
	out := make([]venue.Bar, 0, len(bars))
	var lastTime int64

	for i, b := range bars {
		if !b.Open.IsPositive() || !b.High.IsPositive() || !b.Low.IsPositive() || !b.Close.IsPositive() {
			v.logger.Warn("dropping bar with non-positive price", zap.Int("index", i))
			continue
		}
		if b.High.LessThan(b.Low) {
			v.logger.Warn("dropping bar with high < low", zap.Int("index", i))
			continue
		}
		if b.Close.GreaterThan(b.High) || b.Close.LessThan(b.Low) {
			v.logger.Warn("dropping bar with close outside high/low range", zap.Int("index", i))
			continue
		}
		ts := b.OpenTime.Unix()
		if ts <= lastTime {
			v.logger.Warn("dropping out-of-order or duplicate bar", zap.Int("index", i))
			continue
		}
		lastTime = ts
		out = append(out, b)
	}
	return out
}

var _ Validator = (*BarValidator)(nil)

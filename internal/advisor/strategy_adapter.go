package advisor

import (
	"context"
	"errors"

	"github.com/atlas-desktop/trading-backend/internal/engine"
	"github.com/atlas-desktop/trading-backend/internal/strategy"
	"github.com/atlas-desktop/trading-backend/internal/venue"
)

// BarSource supplies the most recent bar for a symbol, letting a
// strategy-adapter ScoreFunc feed the kept internal/strategy strategies
// without the advisor bus depending on MarketDataCache directly.
type BarSource interface {
	LatestBar(symbol string) (venue.Bar, bool)
}

// FromStrategy adapts one of the kept internal/strategy strategies
// (momentum, breakout, trend_following) into an advisor ScoreFunc: its
// Buy/Sell/Hold signal becomes a fixed offset from the neutral score on
// the side of the action, matching the same tagged Signal the
// StrategyEngine itself produces.
func FromStrategy(s strategy.Strategy, bars BarSource) ScoreFunc {
	return func(ctx context.Context, symbol string) (float64, error) {
		bar, ok := bars.LatestBar(symbol)
		if !ok {
			return 0, errors.New("no bar available for " + symbol)
		}

		sig := s.OnBar(symbol, bar)
		switch sig.Action {
		case engine.ActionBuy:
			return NeutralScore + 0.25, nil
		case engine.ActionSell:
			return NeutralScore - 0.25, nil
		default:
			return NeutralScore, nil
		}
	}
}

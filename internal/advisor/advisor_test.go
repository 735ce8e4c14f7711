package advisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCombinedWithNoAdvisorsIsNeutral(t *testing.T) {
	b := New(zap.NewNop())
	require.Equal(t, NeutralScore, b.Combined(context.Background(), "AAPL"))
}

func TestCombinedWeightsAdvisorsCorrectly(t *testing.T) {
	b := New(zap.NewNop())
	b.Register(Advisor{Name: "bullish", Weight: 1, Fn: func(ctx context.Context, symbol string) (float64, error) {
		return 1.0, nil
	}})
	b.Register(Advisor{Name: "bearish", Weight: 1, Fn: func(ctx context.Context, symbol string) (float64, error) {
		return 0.0, nil
	}})

	got := b.Combined(context.Background(), "AAPL")
	require.InDelta(t, 0.5, got, 0.001)
}

func TestErroringAdvisorFallsBackToNeutral(t *testing.T) {
	b := New(zap.NewNop())
	b.Register(Advisor{Name: "broken", Weight: 1, Fn: func(ctx context.Context, symbol string) (float64, error) {
		return 0, errors.New("upstream down")
	}})

	got := b.Combined(context.Background(), "AAPL")
	require.Equal(t, NeutralScore, got)
}

func TestTimingOutAdvisorFallsBackToNeutral(t *testing.T) {
	b := New(zap.NewNop())
	b.Register(Advisor{Name: "slow", Weight: 1, Timeout: 10 * time.Millisecond, Fn: func(ctx context.Context, symbol string) (float64, error) {
		time.Sleep(100 * time.Millisecond)
		return 1.0, nil
	}})

	got := b.Combined(context.Background(), "AAPL")
	require.Equal(t, NeutralScore, got)
}

func TestPanickingAdvisorFallsBackToNeutral(t *testing.T) {
	b := New(zap.NewNop())
	b.Register(Advisor{Name: "panicky", Weight: 1, Fn: func(ctx context.Context, symbol string) (float64, error) {
		panic("boom")
	}})

	got := b.Combined(context.Background(), "AAPL")
	require.Equal(t, NeutralScore, got)
}

func TestScoreIsCachedWithinTTL(t *testing.T) {
	b := New(zap.NewNop())
	calls := 0
	b.Register(Advisor{Name: "counted", Weight: 1, TTL: time.Minute, Fn: func(ctx context.Context, symbol string) (float64, error) {
		calls++
		return 0.9, nil
	}})

	b.Combined(context.Background(), "AAPL")
	b.Combined(context.Background(), "AAPL")
	require.Equal(t, 1, calls, "a second call within the TTL must reuse the cached score")
}

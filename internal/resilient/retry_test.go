package resilient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/venue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	result, err := Retry(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, venue.NewError(venue.ErrNetwork, "op", errors.New("transient"))
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryableKind(t *testing.T) {
	calls := 0
	cfg := DefaultRetryConfig()

	_, err := Retry(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, venue.NewError(venue.ErrAuth, "op", errors.New("bad key"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsMaxAttempts(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	_, err := Retry(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, venue.NewError(venue.ErrNetwork, "op", errors.New("down"))
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

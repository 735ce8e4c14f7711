package anomaly

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPriceMoveAnomalyTriggersAtFivePercent(t *testing.T) {
	require.True(t, PriceMoveAnomaly(decimal.NewFromInt(100), decimal.NewFromInt(95)))
	require.True(t, PriceMoveAnomaly(decimal.NewFromInt(100), decimal.NewFromInt(106)))
	require.False(t, PriceMoveAnomaly(decimal.NewFromInt(100), decimal.NewFromInt(103)))
}

func TestVolumeSpikeAnomalyTriggersAtTenX(t *testing.T) {
	history := []decimal.Decimal{decimal.NewFromInt(100), decimal.NewFromInt(100), decimal.NewFromInt(100)}
	require.True(t, VolumeSpikeAnomaly(history, decimal.NewFromInt(1000)))
	require.False(t, VolumeSpikeAnomaly(history, decimal.NewFromInt(500)))
}

func TestErrorRateAnomalyTriggersAtTenPercent(t *testing.T) {
	require.True(t, ErrorRateAnomaly(10, 100))
	require.False(t, ErrorRateAnomaly(5, 100))
	require.False(t, ErrorRateAnomaly(0, 0))
}

package anomaly

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckAnomalyNormalWithinTwoStdDev(t *testing.T) {
	m := NewMonitor(50)
	for _, v := range []float64{10, 10.2, 9.8, 10.1, 9.9, 10.0} {
		m.CheckAnomaly("price", v)
	}
	z, class := m.CheckAnomaly("price", 10.05)
	require.Less(t, z, CriticalZScore)
	require.Equal(t, ClassificationNormal, class)
}

func TestCheckAnomalyCriticalOnExtremeOutlier(t *testing.T) {
	m := NewMonitor(50)
	for _, v := range []float64{10, 10.1, 9.9, 10.05, 9.95, 10.02, 9.98, 10.01, 9.99, 10.0} {
		m.CheckAnomaly("price", v)
	}
	_, class := m.CheckAnomaly("price", 50.0)
	require.Equal(t, ClassificationCritical, class)
}

func TestCheckAnomalyWithFewerThanTwoSamplesIsNormal(t *testing.T) {
	m := NewMonitor(50)
	z, class := m.CheckAnomaly("fresh", 100)
	require.Zero(t, z)
	require.Equal(t, ClassificationNormal, class)
}

func TestRingBufferEvictsOldestPastCapacity(t *testing.T) {
	buf := newRingBuffer(3)
	buf.add(1)
	buf.add(2)
	buf.add(3)
	buf.add(4)
	require.Equal(t, []float64{2, 3, 4}, buf.values)
}

// Package anomaly implements AnomalyMonitor and SafeMode: a bounded
// per-metric ring buffer with z-score classification, dedicated
// detectors for price/volume/error-rate anomalies, and a reversible
// runtime-parameter clamp triggered on a critical classification.
package anomaly

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Classification is the severity AnomalyMonitor assigns a checked value.
type Classification string

const (
	ClassificationNormal   Classification = "normal"
	ClassificationWarning  Classification = "warning"
	ClassificationCritical Classification = "critical"
)

// Thresholds on the absolute z-score.
const (
	WarningZScore  = 2.0
	CriticalZScore = 3.0
)

// ringBuffer is a fixed-capacity FIFO of float64 samples.
type ringBuffer struct {
	values []float64
	cap    int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{values: make([]float64, 0, capacity), cap: capacity}
}

func (r *ringBuffer) add(v float64) {
	r.values = append(r.values, v)
	if len(r.values) > r.cap {
		r.values = r.values[len(r.values)-r.cap:]
	}
}

// Monitor maintains a bounded ring of recent values per named metric
// and classifies newly observed values against that metric's history.
type Monitor struct {
	mu      sync.Mutex
	buffers map[string]*ringBuffer
	cap     int
}

// NewMonitor creates a Monitor retaining the last ringCapacity samples
// per metric.
func NewMonitor(ringCapacity int) *Monitor {
	if ringCapacity <= 0 {
		ringCapacity = 200
	}
	return &Monitor{buffers: make(map[string]*ringBuffer), cap: ringCapacity}
}

// CheckAnomaly records value against name's history, returning the
// z-score of value relative to the history observed so far (before
// this value is added) and its classification. With fewer than two
// prior samples, the z-score is 0 and the classification is normal —
// there isn't yet a distribution to be anomalous against.
func (m *Monitor) CheckAnomaly(name string, value float64) (float64, Classification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.buffers[name]
	if !ok {
		buf = newRingBuffer(m.cap)
		m.buffers[name] = buf
	}

	var z float64
	var class Classification = ClassificationNormal
	if len(buf.values) >= 2 {
		mean, stddev := stat.MeanStdDev(buf.values, nil)
		if stddev > 0 {
			z = (value - mean) / stddev
			class = classify(z)
		}
	}

	buf.add(value)
	return z, class
}

func classify(z float64) Classification {
	abs := z
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= CriticalZScore:
		return ClassificationCritical
	case abs >= WarningZScore:
		return ClassificationWarning
	default:
		return ClassificationNormal
	}
}

package anomaly

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeParamStore struct {
	mu     sync.Mutex
	params Parameters
}

func (f *fakeParamStore) Current() Parameters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params
}

func (f *fakeParamStore) Apply(p Parameters) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = p
}

func TestActivateClampsParameters(t *testing.T) {
	store := &fakeParamStore{params: Parameters{PositionSizeMultiplier: 1.0, StopMultiplier: 1.0, CycleInterval: 20 * time.Second}}
	sm := New(zap.NewNop(), store, nil)

	sm.Activate("z-score 5.2 on error-rate", false)

	got := store.Current()
	require.Equal(t, 0.5, got.PositionSizeMultiplier)
	require.Equal(t, 2.0, got.StopMultiplier)
	require.Equal(t, 10*time.Second, got.CycleInterval)
	require.True(t, sm.Active())
}

func TestSecondActivationIsNoOp(t *testing.T) {
	store := &fakeParamStore{params: Parameters{PositionSizeMultiplier: 1.0, StopMultiplier: 1.0, CycleInterval: 20 * time.Second}}
	sm := New(zap.NewNop(), store, nil)

	sm.Activate("first", false)
	sm.Activate("second", false) // must not clamp an already-clamped value again

	got := store.Current()
	require.Equal(t, 0.5, got.PositionSizeMultiplier)
}

func TestDeactivateRestoresOriginalExactly(t *testing.T) {
	original := Parameters{PositionSizeMultiplier: 0.75, StopMultiplier: 1.5, CycleInterval: 30 * time.Second}
	store := &fakeParamStore{params: original}
	sm := New(zap.NewNop(), store, nil)

	sm.Activate("anomaly", true)
	sm.Deactivate("operator@example.com")

	require.Equal(t, original, store.Current())
	require.False(t, sm.Active())
}

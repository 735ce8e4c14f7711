package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFlattener struct {
	cancelled atomic.Bool
	closed    atomic.Bool
}

func (f *fakeFlattener) CancelAll(ctx context.Context, symbol string) error {
	f.cancelled.Store(true)
	return nil
}

func (f *fakeFlattener) CloseAll(ctx context.Context) error {
	f.closed.Store(true)
	return nil
}

func TestMissedHeartbeatArmsEmergencyProtocol(t *testing.T) {
	s := New(zap.NewNop(), nil)
	flattener := &fakeFlattener{}
	s.Register("equity-control-loop", 10*time.Millisecond, flattener)

	time.Sleep(50 * time.Millisecond)
	s.tick()

	require.True(t, s.Tripped())
	require.True(t, flattener.cancelled.Load())
	require.True(t, flattener.closed.Load())
}

func TestRecentBeatDoesNotTrip(t *testing.T) {
	s := New(zap.NewNop(), nil)
	flattener := &fakeFlattener{}
	s.Register("crypto-control-loop", 100*time.Millisecond, flattener)

	s.Beat("crypto-control-loop")
	s.tick()

	require.False(t, s.Tripped())
	require.False(t, flattener.cancelled.Load())
}

func TestTripIsLatchedUntilExplicitReset(t *testing.T) {
	s := New(zap.NewNop(), nil)
	s.Register("x", time.Millisecond, &fakeFlattener{})
	time.Sleep(10 * time.Millisecond)
	s.tick()
	require.True(t, s.Tripped())

	s.Beat("x") // a beat after tripping must not auto-clear the latch
	require.True(t, s.Tripped())

	s.Reset("operator@example.com")
	require.False(t, s.Tripped())
}

func TestSecondTripIsNoOp(t *testing.T) {
	s := New(zap.NewNop(), nil)
	flattener := &fakeFlattener{}
	s.Register("x", time.Millisecond, flattener)
	time.Sleep(10 * time.Millisecond)

	s.tick()
	require.True(t, s.Tripped())

	flattener.cancelled.Store(false)
	s.tick() // already tripped; tick is a no-op and must not re-flatten
	require.False(t, flattener.cancelled.Load())
}

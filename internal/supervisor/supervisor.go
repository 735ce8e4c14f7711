// Package supervisor implements the heartbeat-based dead-man switch.
// Registered components call Beat(name) at least every interval/2; a
// cron-scheduled monitor tick arms the emergency protocol — cancel all
// open orders, close all positions at market, latch a tripped flag that
// stays set until an explicit operator Reset — the moment any
// component's last beat is older than its registered interval. The
// registry and trip logic use a sync.RWMutex-guarded component map
// and on RiskManager's triggerKillSwitch/ManualKillSwitch/DisableKillSwitch
// latch texture.
package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-backend/internal/eventbus"
)

// Flattener is the capability the emergency protocol needs from each
// registered broker client: cancel everything resting, then close
// every open position at market.
type Flattener interface {
	CancelAll(ctx context.Context, symbol string) error
	CloseAll(ctx context.Context) error
}

type component struct {
	interval time.Duration
	lastBeat atomic.Int64 // unix nano
}

// Supervisor owns the registered component set and the latched
// emergency-tripped flag; no other component in the process mutates
// either.
type Supervisor struct {
	logger *zap.Logger

	mu         sync.RWMutex
	components map[string]*component
	flatteners map[string]Flattener

	bus *eventbus.Bus

	tripped      atomic.Bool
	tripReason   string
	tripReasonMu sync.Mutex

	cron *cron.Cron
}

// New creates a Supervisor. The wake cadence is the cron expression
// passed to Start.
func New(logger *zap.Logger, bus *eventbus.Bus) *Supervisor {
	return &Supervisor{
		logger:     logger.Named("supervisor"),
		components: make(map[string]*component),
		flatteners: make(map[string]Flattener),
		bus:        bus,
		cron:       cron.New(),
	}
}

// Register adds a named component with maxSilent as its maximum
// tolerated silent interval, and registers flattener as the client to
// invoke against that component's venue should the switch trip.
func (s *Supervisor) Register(name string, maxSilent time.Duration, flattener Flattener) {
	c := &component{interval: maxSilent}
	c.lastBeat.Store(time.Now().UnixNano())

	s.mu.Lock()
	s.components[name] = c
	if flattener != nil {
		s.flatteners[name] = flattener
	}
	s.mu.Unlock()
}

// Beat records that name is alive as of now. Beats are advisory
// monotonic timestamps; a lost beat due to a process pause is allowed
// to trip the switch, matching the concurrency model's stated
// tolerance.
func (s *Supervisor) Beat(name string) {
	s.mu.RLock()
	c, ok := s.components[name]
	s.mu.RUnlock()
	if !ok {
		return
	}
	c.lastBeat.Store(time.Now().UnixNano())
}

// Start schedules the monitor tick at the given cron spec (e.g.
// "@every 30s") and begins running it.
func (s *Supervisor) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the monitor tick.
func (s *Supervisor) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Supervisor) tick() {
	if s.Tripped() {
		return
	}

	now := time.Now()
	s.mu.RLock()
	var silent []string
	var lastBeat time.Time
	for name, c := range s.components {
		beat := time.Unix(0, c.lastBeat.Load())
		if now.Sub(beat) > c.interval {
			silent = append(silent, name)
			lastBeat = beat
		}
	}
	s.mu.RUnlock()

	if len(silent) == 0 {
		return
	}

	s.logger.Error("component missed heartbeat window, arming emergency protocol", zap.Strings("components", silent))
	if s.bus != nil {
		s.bus.Publish(eventbus.NewHeartbeatMissEvent(silent[0], lastBeat))
	}
	s.trip("heartbeat missed: " + silent[0])
}

// trip arms the emergency protocol: latch tripped until an operator
// calls Reset, then flatten every registered flattener. The latch is
// reported by Tripped; the ControlLoop does not consult it, so it does
// not by itself block new entries.
func (s *Supervisor) trip(reason string) {
	if !s.tripped.CompareAndSwap(false, true) {
		return // already tripped; idempotent
	}

	s.tripReasonMu.Lock()
	s.tripReason = reason
	s.tripReasonMu.Unlock()

	s.logger.Error("emergency protocol armed", zap.String("reason", reason))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.mu.RLock()
	flatteners := make(map[string]Flattener, len(s.flatteners))
	for k, v := range s.flatteners {
		flatteners[k] = v
	}
	s.mu.RUnlock()

	for name, f := range flatteners {
		if err := f.CancelAll(ctx, ""); err != nil { // "" cancels across all symbols
			s.logger.Error("emergency cancel-all failed", zap.String("venue", name), zap.Error(err))
		}
		if err := f.CloseAll(ctx); err != nil {
			s.logger.Error("emergency close-all failed", zap.String("venue", name), zap.Error(err))
		}
	}
}

// ManualTrip lets an operator or AnomalyMonitor arm the emergency
// protocol directly, bypassing the heartbeat check.
func (s *Supervisor) ManualTrip(reason string) {
	s.trip(reason)
}

// Tripped reports whether the emergency flag is latched; TripReason
// gives why.
func (s *Supervisor) Tripped() bool {
	return s.tripped.Load()
}

// TripReason returns the reason the switch last tripped, if any.
func (s *Supervisor) TripReason() string {
	s.tripReasonMu.Lock()
	defer s.tripReasonMu.Unlock()
	return s.tripReason
}

// Reset clears the latched emergency flag. This must only be called in
// response to an explicit operator action, and is always logged.
func (s *Supervisor) Reset(operator string) {
	s.tripped.Store(false)
	s.tripReasonMu.Lock()
	s.tripReason = ""
	s.tripReasonMu.Unlock()
	s.logger.Warn("emergency protocol reset by operator", zap.String("operator", operator))
}

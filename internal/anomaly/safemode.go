package anomaly

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-backend/internal/eventbus"
)

// Parameters is the subset of a profile's runtime knobs SafeMode can
// clamp and restore. The multipliers are plain float64 ratios, never
// persisted or compared for equality against money, so they don't need
// shopspring/decimal precision.
type Parameters struct {
	PositionSizeMultiplier float64
	StopMultiplier         float64
	CycleInterval          time.Duration
	EntriesPaused          bool
}

// ParameterStore is the capability SafeMode needs from whatever owns a
// profile's live parameters: read the current values, and apply new
// ones. Implemented by the config/control layer.
type ParameterStore interface {
	Current() Parameters
	Apply(Parameters)
}

// RecoveryCheckInterval is how often SafeMode re-evaluates whether it
// can restore original parameters.
const RecoveryCheckInterval = 5 * time.Minute

// MaxActiveDuration is the longest SafeMode will stay clamped before
// force-restoring, absent an earlier operator command.
const MaxActiveDuration = time.Hour

// SafeMode snapshots a profile's Parameters and applies a reduced-risk
// clamp on activation; activation is idempotent and serialized by mu,
// matching the spec's "second concurrent activation is a no-op".
type SafeMode struct {
	logger *zap.Logger
	store  ParameterStore
	bus    *eventbus.Bus

	mu          sync.Mutex
	active      bool
	original    Parameters
	activatedAt time.Time
	cronID      cron.EntryID
	cron        *cron.Cron
}

// New creates a SafeMode bound to store, publishing activation and
// recovery events on bus.
func New(logger *zap.Logger, store ParameterStore, bus *eventbus.Bus) *SafeMode {
	return &SafeMode{
		logger: logger.Named("safemode"),
		store:  store,
		bus:    bus,
		cron:   cron.New(),
	}
}

// Activate snapshots current parameters and applies the clamp:
// position sizing x0.5, stops x2, cycle interval halved, and —  if
// pauseEntries — new entries paused. A second concurrent call while
// already active is a no-op.
func (s *SafeMode) Activate(reason string, pauseEntries bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return // already engaged; idempotent
	}

	s.original = s.store.Current()
	s.active = true
	s.activatedAt = time.Now()

	clamped := s.original
	clamped.PositionSizeMultiplier *= 0.5
	clamped.StopMultiplier *= 2
	clamped.CycleInterval /= 2
	if pauseEntries {
		clamped.EntriesPaused = true
	}
	s.store.Apply(clamped)

	s.logger.Warn("safe mode activated", zap.String("reason", reason))
	if s.bus != nil {
		s.bus.Publish(eventbus.NewSafeModeEvent(true, reason))
	}

	s.cron.Start()
	id, err := s.cron.AddFunc("@every 5m", s.recoveryCheck)
	if err != nil {
		s.logger.Error("failed to schedule safe mode recovery check", zap.Error(err))
		return
	}
	s.cronID = id
}

// recoveryCheck restores original parameters once MaxActiveDuration has
// elapsed since activation.
func (s *SafeMode) recoveryCheck() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	if time.Since(s.activatedAt) < MaxActiveDuration {
		return
	}
	s.restoreLocked("recovery window elapsed")
}

// Deactivate restores the original parameters immediately, on explicit
// operator command.
func (s *SafeMode) Deactivate(operator string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.restoreLocked("operator command (" + operator + ")")
}

func (s *SafeMode) restoreLocked(reason string) {
	s.store.Apply(s.original)
	s.active = false
	s.cron.Remove(s.cronID)

	s.logger.Info("safe mode deactivated, original parameters restored", zap.String("reason", reason))
	if s.bus != nil {
		s.bus.Publish(eventbus.NewSafeModeEvent(false, reason))
	}
}

// Active reports whether the clamp is currently in effect.
func (s *SafeMode) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

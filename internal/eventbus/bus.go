// Package eventbus implements the typed message bus referenced in the
// concurrency model: a worker-pool-backed pub/sub with per-subscriber
// async dispatch and non-blocking Publish. EventType is narrowed to this domain's
// event set: signal, order, fill, risk alert, drawdown, heartbeat-miss,
// anomaly, safe-mode.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType categorizes a published Event.
type EventType string

const (
	EventTypeSignal        EventType = "signal"
	EventTypeOrder         EventType = "order"
	EventTypeFill          EventType = "fill"
	EventTypeRiskAlert     EventType = "risk_alert"
	EventTypeDrawdown      EventType = "drawdown"
	EventTypeHeartbeatMiss EventType = "heartbeat_miss"
	EventTypeAnomaly       EventType = "anomaly"
	EventTypeSafeMode      EventType = "safe_mode"
	EventTypeStatus        EventType = "status"
)

// Event is the minimal contract every published value must satisfy.
type Event interface {
	GetType() EventType
	GetTimestamp() time.Time
}

// BaseEvent supplies the common Event fields by embedding.
type BaseEvent struct {
	Type      EventType
	Timestamp time.Time
}

func (e BaseEvent) GetType() EventType      { return e.Type }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

// Handler processes one event. An error is logged but does not stop
// dispatch to other subscribers.
type Handler func(event Event) error

// Subscription is an active registration returned by Subscribe.
type Subscription struct {
	eventType EventType
	handler   Handler
	active    atomic.Bool
}

// Stats reports cumulative bus activity.
type Stats struct {
	Published int64
	Processed int64
	Dropped   int64
	Errors    int64
}

// Config tunes the worker pool and channel buffer.
type Config struct {
	Workers    int
	BufferSize int
}

// DefaultConfig returns sensible defaults for a single-process trading
// engine (far lower throughput than a market-data-firehose
// would need, since this bus only carries control-plane events).
func DefaultConfig() Config {
	return Config{Workers: 4, BufferSize: 1024}
}

// Bus is the central event router. Publish is non-blocking; if the
// channel is full, the event is dropped and counted rather than
// blocking the publisher (a ControlLoop cycle must never stall on a
// slow subscriber).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]*Subscription
	all         []*Subscription

	events chan Event

	published atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64
	errored   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New starts the worker pool and returns a ready Bus.
func New(logger *zap.Logger, cfg Config) *Bus {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subscribers: make(map[EventType][]*Subscription),
		events:      make(chan Event, cfg.BufferSize),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.Named("eventbus"),
	}
	for i := 0; i < cfg.Workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case ev := <-b.events:
			b.dispatch(ev)
		}
	}
}

func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	subs := append([]*Subscription{}, b.subscribers[ev.GetType()]...)
	subs = append(subs, b.all...)
	b.mu.RUnlock()

	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		b.invoke(sub, ev)
	}
	b.processed.Add(1)
}

func (b *Bus) invoke(sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.errored.Add(1)
			b.logger.Error("event handler panic", zap.String("event_type", string(ev.GetType())), zap.Any("panic", r))
		}
	}()
	if err := sub.handler(ev); err != nil {
		b.errored.Add(1)
		b.logger.Warn("event handler error", zap.String("event_type", string(ev.GetType())), zap.Error(err))
	}
}

// Subscribe registers handler for eventType, returning a Subscription
// that can later be passed to Unsubscribe.
func (b *Bus) Subscribe(eventType EventType, handler Handler) *Subscription {
	sub := &Subscription{eventType: eventType, handler: handler}
	sub.active.Store(true)

	b.mu.Lock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
	b.mu.Unlock()
	return sub
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) *Subscription {
	sub := &Subscription{handler: handler}
	sub.active.Store(true)

	b.mu.Lock()
	b.all = append(b.all, sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe deactivates sub; it is never removed from the slice,
// using a tombstone-via-flag idiom instead.
func (b *Bus) Unsubscribe(sub *Subscription) {
	sub.active.Store(false)
}

// Publish enqueues ev for async dispatch, dropping it if the buffer is
// full rather than blocking the caller.
func (b *Bus) Publish(ev Event) {
	select {
	case b.events <- ev:
		b.published.Add(1)
	default:
		b.dropped.Add(1)
		b.logger.Warn("event dropped, buffer full", zap.String("event_type", string(ev.GetType())))
	}
}

// PublishSync dispatches ev synchronously on the caller's goroutine, for
// callers (currently the tests) where ordering relative to the caller
// matters.
func (b *Bus) PublishSync(ev Event) {
	b.published.Add(1)
	b.dispatch(ev)
}

// Stats reports cumulative counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Processed: b.processed.Load(),
		Dropped:   b.dropped.Load(),
		Errors:    b.errored.Load(),
	}
}

// Close stops all workers, waiting up to 5s for in-flight dispatches.
func (b *Bus) Close() {
	b.cancel()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		b.logger.Warn("eventbus shutdown timed out")
	}
}

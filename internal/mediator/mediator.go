// Package mediator hosts ad network adapters. It owns the tick loop that
// flushes adapter events and runs delayed operations, and confines every
// adapter call to that loop's goroutine.
package mediator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/thenexusengine/tne_mediation/internal/config"
	"github.com/thenexusengine/tne_mediation/internal/mediation"
	"github.com/thenexusengine/tne_mediation/pkg/logger"
)

// Sentinel errors
var (
	ErrUnknownNetwork    = errors.New("unknown network")
	ErrInstanceNotFound  = errors.New("ad instance not found")
	ErrUnsupportedAdType = errors.New("ad type not supported by network")
	ErrAdapterDisabled   = errors.New("network adapter disabled")
	ErrBackoffActive     = errors.New("load-failure cooldown active")
	ErrStopped           = errors.New("mediator stopped")
	ErrAlreadyRunning    = errors.New("mediator already running")
)

// Recorder receives host telemetry. internal/metrics implements it.
type Recorder interface {
	RecordBackoffSkip(network, adType string)
	RecordTick(duration time.Duration)
	SetPendingEvents(network string, n int)
	SetAdapterEnabled(network string, enabled bool)
	RecordConsentSignal(personalized bool)
}

// Config holds mediator settings
type Config struct {
	// TickInterval is the frame period
	TickInterval time.Duration
}

// DefaultConfig returns the default mediator settings
func DefaultConfig() Config {
	return Config{TickInterval: config.TickInterval}
}

// Option configures a Mediator
type Option func(*Mediator)

// WithRecorder sets the telemetry recorder
func WithRecorder(r Recorder) Option {
	return func(m *Mediator) {
		m.recorder = r
	}
}

// Mediator owns a set of adapters and drives them from a single goroutine
type Mediator struct {
	cfg      Config
	recorder Recorder
	log      *zerolog.Logger

	adapters []mediation.Adapter
	byName   map[string]mediation.Adapter

	mu             sync.Mutex
	posted         []func()
	listeners      []listenerEntry
	nextListenerID int
	stopped        bool

	wake    chan struct{}
	done    chan struct{}
	running atomic.Bool
}

type listenerEntry struct {
	id int
	fn mediation.Listener
}

// New creates a mediator
func New(cfg Config, opts ...Option) *Mediator {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = config.TickInterval
	}
	m := &Mediator{
		cfg:    cfg,
		log:    logger.Component("mediator"),
		byName: make(map[string]mediation.Adapter),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register initializes an adapter with cfg and adds it to the host. It must be
// called before Run. A config with Enabled false keeps the adapter registered
// but inert. Invalid instance definitions do not prevent registration; they
// are returned for the caller to report.
func (m *Mediator) Register(a mediation.Adapter, cfg *mediation.NetworkConfig) error {
	if m.running.Load() {
		return fmt.Errorf("register %s: %w", a.Name(), ErrAlreadyRunning)
	}
	if _, exists := m.byName[a.Name()]; exists {
		return fmt.Errorf("network %s already registered", a.Name())
	}

	initErr := a.Initialize(cfg)
	if cfg != nil && !cfg.Enabled {
		a.DisableWhenInitialize()
	}
	a.Subscribe(m.dispatch)

	m.adapters = append(m.adapters, a)
	m.byName[a.Name()] = a
	if m.recorder != nil {
		m.recorder.SetAdapterEnabled(a.Name(), a.Enabled())
	}

	m.log.Info().
		Str("network", a.Name()).
		Bool("enabled", a.Enabled()).
		Int("instances", len(a.Instances())).
		Msg("Network registered")

	if initErr != nil {
		return fmt.Errorf("network %s: %w", a.Name(), initErr)
	}
	return nil
}

// Networks returns the registered network names in registration order
func (m *Mediator) Networks() []string {
	names := make([]string, len(m.adapters))
	for i, a := range m.adapters {
		names[i] = a.Name()
	}
	return names
}

// Run ticks every adapter until ctx is done, then disables them. Disabling
// flushes pending events once so terminal events still reach subscribers.
func (m *Mediator) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	m.log.Info().
		Dur("tick_interval", m.cfg.TickInterval).
		Int("networks", len(m.adapters)).
		Msg("Mediator started")

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case <-m.wake:
			m.runPosted()
		case <-ticker.C:
			m.runPosted()
			m.tick()
		}
	}
}

// Done is closed once Run has returned
func (m *Mediator) Done() <-chan struct{} {
	return m.done
}

// Post queues fn to run on the tick goroutine. Vendor SDK callbacks are
// delivered this way. Never blocks; dropped after shutdown.
func (m *Mediator) Post(fn func()) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.posted = append(m.posted, fn)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the tick goroutine and waits for it
func (m *Mediator) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	m.Post(func() {
		defer close(finished)
		fn()
	})

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Subscribe registers a listener for every adapter's events. Listeners run on
// the tick goroutine.
func (m *Mediator) Subscribe(l mediation.Listener) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextListenerID++
	id := m.nextListenerID
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: l})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, e := range m.listeners {
			if e.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

func (m *Mediator) runPosted() {
	m.mu.Lock()
	posted := m.posted
	m.posted = nil
	m.mu.Unlock()

	for _, fn := range posted {
		fn()
	}
}

func (m *Mediator) tick() {
	start := time.Now()
	for _, a := range m.adapters {
		// Backlog the tick is about to deliver
		if q, ok := a.(queueReporter); ok && m.recorder != nil {
			m.recorder.SetPendingEvents(a.Name(), q.PendingEvents())
		}
		a.Tick()
	}
	if m.recorder != nil {
		m.recorder.RecordTick(time.Since(start))
	}
}

func (m *Mediator) shutdown() {
	m.runPosted()

	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	for _, a := range m.adapters {
		a.Disable()
		if m.recorder != nil {
			m.recorder.SetAdapterEnabled(a.Name(), false)
		}
	}
	m.log.Info().Msg("Mediator stopped")
}

// dispatch arms the cooldown on load failures, then fans the event out
func (m *Mediator) dispatch(e mediation.Event) {
	if e.Event == mediation.AdEventPrepareFailure {
		e.Adapter.SaveFailedLoadingTime(e.AdType, e.Instance)
	}

	m.mu.Lock()
	listeners := make([]listenerEntry, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		l.fn(e)
	}
}

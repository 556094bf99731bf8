package mediation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thenexusengine/tne_mediation/pkg/logger"
)

// legacyTimeoutPrefix prefixes settings that configure adapter-level timeouts,
// e.g. "timeout-interstitial": "30"
const legacyTimeoutPrefix = "timeout-"

// Adapter is the contract between the mediation host and one ad network binding
type Adapter interface {
	// Name returns the network name
	Name() string

	// Initialize parses the network configuration into instances and sets up
	// the vendor SDK. A nil config leaves the adapter inert.
	Initialize(cfg *NetworkConfig) error

	// DisableWhenInitialize keeps the adapter registered but inert
	DisableWhenInitialize()

	// Enabled reports whether the adapter processes ticks and commands
	Enabled() bool

	// IsSupported reports the static capability for an ad type
	IsSupported(adType AdType) bool

	// IsReady reports whether inst can be shown right now
	IsReady(inst *AdInstance) bool

	// Prepare requests a vendor load for inst
	Prepare(inst *AdInstance, placement string)

	// Show displays inst if it is ready and reports whether it did
	Show(inst *AdInstance, placement string) bool

	// Hide hides inst and emits a Hide event through the queue
	Hide(inst *AdInstance)

	// HideWithoutNotify hides a banner-type inst without emitting an event
	HideWithoutNotify(inst *AdInstance)

	// ResetAd discards any loaded content for inst
	ResetAd(inst *AdInstance)

	// SetPersonalizedAds forwards the user's consent to the vendor SDK
	SetPersonalizedAds(personalized bool)

	// SetApplicationPaused forwards host pause/resume to the vendor SDK
	SetApplicationPaused(paused bool)

	// NotifyEvent commits an event and broadcasts it to subscribers synchronously
	NotifyEvent(adType AdType, event AdEvent, inst *AdInstance)

	// Subscribe registers a listener for committed events
	Subscribe(l Listener) (unsubscribe func())

	// Instance resolves (ad type, name) to an instance, nil if not configured
	Instance(adType AdType, name string) *AdInstance

	// Instances returns every registered instance in registration order
	Instances() []*AdInstance

	// IsTimeout reports whether a load-failure cooldown is active
	IsTimeout(adType AdType, inst *AdInstance) bool

	// SaveFailedLoadingTime arms the cooldown for inst or for the ad type
	SaveFailedLoadingTime(adType AdType, inst *AdInstance)

	// LastPrepared returns the last Prepared/PrepareFailure outcome
	LastPrepared(adType AdType, inst *AdInstance) bool

	// Tick flushes queued events and runs due delayed operations
	Tick()

	// Disable flushes queued events once and cancels delayed operations
	Disable()
}

// Event is a committed adapter event as seen by subscribers
type Event struct {
	Adapter  Adapter
	AdType   AdType
	Event    AdEvent
	Instance *AdInstance
}

// Listener receives committed events
type Listener func(Event)

// SupportParam declares an ad type the adapter can serve
type SupportParam struct {
	AdType                         AdType
	CheckAvailabilityWhenPreparing bool
}

// Recorder receives adapter telemetry. internal/metrics implements it.
type Recorder interface {
	RecordAdEvent(network, adType, event string)
	RecordFlush(network string, delivered int, duration time.Duration)
	RecordPrepare(network, adType string)
}

// BaseAdapter implements the network-independent part of Adapter. Vendor
// bindings embed it and override the capability methods.
type BaseAdapter struct {
	self     Adapter
	name     string
	clock    Clock
	log      *zerolog.Logger
	recorder Recorder

	support    []SupportParam
	registry   Registry
	parameters *ParameterTable
	queue      EventQueue
	scheduler  *Scheduler

	lastPrepared [adTypeCount]bool
	timeouts     map[AdType]*TimeoutPolicy

	listeners      []listenerEntry
	nextListenerID int

	enabled      bool
	initialized  bool
	beforeNotify func(EventRecord)

	// BannerPlacement is the placement of the most recent banner request
	BannerPlacement string
}

type listenerEntry struct {
	id int
	fn Listener
}

// Option configures a BaseAdapter
type Option func(*BaseAdapter)

// WithClock sets the clock used for timeouts and delayed operations
func WithClock(clock Clock) Option {
	return func(b *BaseAdapter) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithRecorder sets the telemetry recorder
func WithRecorder(r Recorder) Option {
	return func(b *BaseAdapter) {
		b.recorder = r
	}
}

// NewBaseAdapter creates the shared adapter state. self is the embedding
// adapter; methods on BaseAdapter that dispatch to capability methods call
// through it so overrides are honored.
func NewBaseAdapter(self Adapter, name string, support []SupportParam, opts ...Option) *BaseAdapter {
	b := &BaseAdapter{
		self:       self,
		name:       name,
		clock:      SystemClock,
		support:    support,
		parameters: NewParameterTable(),
		timeouts:   make(map[AdType]*TimeoutPolicy),
		enabled:    true,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.scheduler = NewScheduler(b.clock)
	b.log = logger.Network(name)
	if b.self == nil {
		b.self = b
	}
	return b
}

// Name returns the network name
func (b *BaseAdapter) Name() string { return b.name }

// Clock returns the adapter clock
func (b *BaseAdapter) Clock() Clock { return b.clock }

// Scheduler returns the adapter's delayed-operation scheduler
func (b *BaseAdapter) Scheduler() *Scheduler { return b.scheduler }

// Logger returns the adapter-scoped logger
func (b *BaseAdapter) Logger() *zerolog.Logger { return b.log }

// SetRecorder replaces the telemetry recorder
func (b *BaseAdapter) SetRecorder(r Recorder) { b.recorder = r }

// Recorder returns the telemetry recorder, nil when none is set
func (b *BaseAdapter) Recorder() Recorder { return b.recorder }

// OnBeforeNotify installs a hook run by NotifyEvent before the event is committed.
// Bindings use it to update vendor-side state from the events they raised.
func (b *BaseAdapter) OnBeforeNotify(hook func(EventRecord)) { b.beforeNotify = hook }

// Initialize loads parameter sets, legacy adapter-level timeouts and instance
// definitions. A nil config leaves the adapter inert and is not an error.
// Invalid instance definitions are skipped and reported in the joined error.
func (b *BaseAdapter) Initialize(cfg *NetworkConfig) error {
	if cfg == nil {
		b.log.Info().Msg("No configuration supplied, adapter stays inert")
		return nil
	}

	for _, p := range cfg.Parameters {
		b.parameters.Add(p)
	}

	errs := []error{b.initializeLegacyTimeouts(cfg.Settings)}

	configs, err := ParseInstanceConfigs(cfg.Instances)
	if err != nil {
		b.log.Warn().Err(err).Msg("Skipped invalid ad instance definitions")
		errs = append(errs, err)
	}
	for _, ic := range configs {
		b.AddInstance(b.instanceFromConfig(ic))
	}

	b.initialized = true
	b.log.Info().
		Int("instances", b.registry.Len()).
		Int("parameter_sets", b.parameters.Len()).
		Msg("Network adapter initialized")

	return errors.Join(errs...)
}

// Initialized reports whether Initialize ran with a configuration
func (b *BaseAdapter) Initialized() bool { return b.initialized }

func (b *BaseAdapter) instanceFromConfig(ic InstanceConfig) *AdInstance {
	inst := NewAdInstance(ic.AdType, ic.Name, ic.AdID)
	inst.Parameters = b.parameters.Lookup(ic.AdType, ic.ParametersName)
	if ic.Timeout != nil {
		inst.Timeout = NewTimeoutPolicySeconds(ic.AdType, *ic.Timeout)
	}
	inst.PrepareOnNetworkSwitch = ic.PrepareOnNetworkSwitch
	inst.WaitResponseTime = ic.WaitResponseTime
	return inst
}

func (b *BaseAdapter) initializeLegacyTimeouts(settings map[string]string) error {
	var errs []error
	for key, value := range settings {
		if !strings.HasPrefix(key, legacyTimeoutPrefix) {
			continue
		}
		adType := ParseAdType(strings.TrimPrefix(key, legacyTimeoutPrefix))
		if adType == AdTypeUnknown || !b.IsSupported(adType) {
			continue
		}
		seconds, err := strconv.ParseFloat(value, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("setting %s: %w", key, err))
			continue
		}
		b.timeouts[adType] = NewTimeoutPolicySeconds(adType, seconds)
	}
	return errors.Join(errs...)
}

// DisableWhenInitialize keeps the adapter registered but inert
func (b *BaseAdapter) DisableWhenInitialize() {
	b.log.Info().Msg("Adapter disabled at initialization")
	b.enabled = false
}

// Enabled reports whether the adapter processes ticks
func (b *BaseAdapter) Enabled() bool { return b.enabled }

// IsSupported reports whether the support table declares adType
func (b *BaseAdapter) IsSupported(adType AdType) bool {
	_, ok := b.supportParam(adType)
	return ok
}

// IsCheckAvailabilityWhenPreparing reports the support table flag for adType
func (b *BaseAdapter) IsCheckAvailabilityWhenPreparing(adType AdType) bool {
	p, _ := b.supportParam(adType)
	return p.CheckAvailabilityWhenPreparing
}

func (b *BaseAdapter) supportParam(adType AdType) (SupportParam, bool) {
	if adType == AdTypeUnknown {
		return SupportParam{}, false
	}
	for _, p := range b.support {
		if p.AdType == adType {
			return p, true
		}
	}
	return SupportParam{}, false
}

// IsReady is false unless a binding overrides it
func (b *BaseAdapter) IsReady(*AdInstance) bool { return false }

// Prepare is a no-op unless a binding overrides it
func (b *BaseAdapter) Prepare(*AdInstance, string) {}

// Show is a no-op unless a binding overrides it
func (b *BaseAdapter) Show(*AdInstance, string) bool { return false }

// Hide is a no-op unless a binding overrides it
func (b *BaseAdapter) Hide(*AdInstance) {}

// HideWithoutNotify is a no-op unless a binding overrides it
func (b *BaseAdapter) HideWithoutNotify(*AdInstance) {}

// ResetAd is a no-op unless a binding overrides it
func (b *BaseAdapter) ResetAd(*AdInstance) {}

// SetPersonalizedAds is a no-op for networks without a consent API
func (b *BaseAdapter) SetPersonalizedAds(bool) {}

// SetApplicationPaused is a no-op unless a binding overrides it
func (b *BaseAdapter) SetApplicationPaused(bool) {}

// IsReadyByName resolves (ad type, name) and queries readiness
func (b *BaseAdapter) IsReadyByName(adType AdType, name string) bool {
	inst := b.Instance(adType, name)
	if inst == nil {
		return false
	}
	return b.self.IsReady(inst)
}

// PrepareByName resolves (ad type, name) and requests a load. It reports
// whether the instance was found.
func (b *BaseAdapter) PrepareByName(adType AdType, name string) bool {
	inst := b.Instance(adType, name)
	if inst == nil {
		return false
	}
	b.self.Prepare(inst, DefaultPlacement)
	return true
}

// ShowByName resolves (ad type, name) and shows it
func (b *BaseAdapter) ShowByName(adType AdType, name string) bool {
	inst := b.Instance(adType, name)
	if inst == nil {
		return false
	}
	return b.self.Show(inst, DefaultPlacement)
}

// HideByName resolves (ad type, name) and hides it
func (b *BaseAdapter) HideByName(adType AdType, name string) bool {
	inst := b.Instance(adType, name)
	if inst == nil {
		return false
	}
	b.self.Hide(inst)
	return true
}

// AddInstance registers an instance
func (b *BaseAdapter) AddInstance(inst *AdInstance) {
	b.registry.Register(inst)
}

// Instance resolves (ad type, name), nil if not configured
func (b *BaseAdapter) Instance(adType AdType, name string) *AdInstance {
	return b.registry.Find(adType, name)
}

// InstanceByName resolves a name regardless of ad type
func (b *BaseAdapter) InstanceByName(name string) *AdInstance {
	return b.registry.FindByName(name)
}

// InstanceByAdID resolves a vendor identifier
func (b *BaseAdapter) InstanceByAdID(adID string) *AdInstance {
	return b.registry.FindByAdID(adID)
}

// AdTypeByAdID returns the ad type owning a vendor identifier
func (b *BaseAdapter) AdTypeByAdID(adID string) AdType {
	return b.registry.TypeOfAdID(adID)
}

// Instances returns every registered instance
func (b *BaseAdapter) Instances() []*AdInstance {
	return b.registry.All()
}

// Parameters resolves a parameter set by (ad type, name)
func (b *BaseAdapter) Parameters(adType AdType, name string) *InstanceParameters {
	return b.parameters.Lookup(adType, name)
}

// SetTimeout installs an adapter-level cooldown policy for an ad type
func (b *BaseAdapter) SetTimeout(adType AdType, duration time.Duration) {
	b.timeouts[adType] = NewTimeoutPolicy(adType, duration)
}

// timeoutPolicy returns the instance policy if present, else the adapter policy
func (b *BaseAdapter) timeoutPolicy(adType AdType, inst *AdInstance) *TimeoutPolicy {
	if inst != nil && inst.Timeout != nil {
		return inst.Timeout
	}
	return b.timeouts[adType]
}

// IsTimeout reports whether a load-failure cooldown is active
func (b *BaseAdapter) IsTimeout(adType AdType, inst *AdInstance) bool {
	return b.timeoutPolicy(adType, inst).IsActive(b.clock.Now())
}

// TimeoutRemaining returns the time left on the applicable cooldown
func (b *BaseAdapter) TimeoutRemaining(adType AdType, inst *AdInstance) time.Duration {
	return b.timeoutPolicy(adType, inst).Remaining(b.clock.Now())
}

// SaveFailedLoadingTime arms the applicable cooldown
func (b *BaseAdapter) SaveFailedLoadingTime(adType AdType, inst *AdInstance) {
	b.timeoutPolicy(adType, inst).RecordFailure(b.clock.Now())
}

// LastPrepared returns the instance slot when inst is given, else the ad type slot
func (b *BaseAdapter) LastPrepared(adType AdType, inst *AdInstance) bool {
	if inst != nil {
		return inst.LastPrepared
	}
	if adType < 0 || adType >= adTypeCount {
		return false
	}
	return b.lastPrepared[adType]
}

// AddEvent queues an event for delivery on the next tick. Safe to call from
// vendor callbacks.
func (b *BaseAdapter) AddEvent(adType AdType, event AdEvent, inst *AdInstance) {
	b.queue.Enqueue(adType, event, inst)
}

// PendingEvents returns the number of queued events
func (b *BaseAdapter) PendingEvents() int {
	return b.queue.Len()
}

// NotifyEvent commits an event: Prepared and PrepareFailure update the last
// prepared slot, then every subscriber is called synchronously.
func (b *BaseAdapter) NotifyEvent(adType AdType, event AdEvent, inst *AdInstance) {
	if b.beforeNotify != nil {
		b.beforeNotify(EventRecord{AdType: adType, Event: event, Instance: inst})
	}

	if event == AdEventPrepared || event == AdEventPrepareFailure {
		prepared := event == AdEventPrepared
		if inst != nil {
			inst.LastPrepared = prepared
		} else if adType >= 0 && adType < adTypeCount {
			b.lastPrepared[adType] = prepared
		}
	}

	b.log.Debug().
		Str("ad_type", adType.String()).
		Str("event", event.String()).
		Str("instance", InstanceName(inst)).
		Msg("Ad event")

	if b.recorder != nil {
		b.recorder.RecordAdEvent(b.name, adType.String(), event.String())
	}

	listeners := make([]listenerEntry, len(b.listeners))
	copy(listeners, b.listeners)
	for _, l := range listeners {
		l.fn(Event{Adapter: b.self, AdType: adType, Event: event, Instance: inst})
	}
}

// Subscribe registers a listener and returns a function removing it
func (b *BaseAdapter) Subscribe(l Listener) (unsubscribe func()) {
	b.nextListenerID++
	id := b.nextListenerID
	b.listeners = append(b.listeners, listenerEntry{id: id, fn: l})
	return func() {
		for i, e := range b.listeners {
			if e.id == id {
				b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// RecordPrepare reports a vendor load request to the recorder
func (b *BaseAdapter) RecordPrepare(adType AdType) {
	if b.recorder != nil {
		b.recorder.RecordPrepare(b.name, adType.String())
	}
}

// Tick delivers queued events and then runs due delayed operations
func (b *BaseAdapter) Tick() {
	if !b.enabled {
		return
	}
	b.flush()
	b.scheduler.Run()
}

// Disable flushes queued events once so terminal events are not lost, then
// cancels every delayed operation.
func (b *BaseAdapter) Disable() {
	if !b.enabled {
		return
	}
	b.flush()
	b.scheduler.CancelAll()
	b.enabled = false
	b.log.Info().Msg("Network adapter disabled")
}

func (b *BaseAdapter) flush() {
	start := b.clock.Now()
	delivered := b.queue.Flush(func(rec EventRecord) {
		b.self.NotifyEvent(rec.AdType, rec.Event, rec.Instance)
	})
	if delivered > 0 && b.recorder != nil {
		b.recorder.RecordFlush(b.name, delivered, b.clock.Now().Sub(start))
	}
}

var _ Adapter = (*BaseAdapter)(nil)

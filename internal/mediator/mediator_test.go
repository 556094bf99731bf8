package mediator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thenexusengine/tne_mediation/internal/mediation"
)

type stubAdapter struct {
	*mediation.BaseAdapter
	ready        map[*mediation.AdInstance]bool
	prepared     []string
	shown        []string
	personalized []bool
	paused       []bool
}

func newStubAdapter(name string, clock mediation.Clock) *stubAdapter {
	s := &stubAdapter{ready: make(map[*mediation.AdInstance]bool)}
	s.BaseAdapter = mediation.NewBaseAdapter(s, name, []mediation.SupportParam{
		{AdType: mediation.AdTypeInterstitial},
		{AdType: mediation.AdTypeIncentivized, CheckAvailabilityWhenPreparing: true},
	}, mediation.WithClock(clock))
	return s
}

func (s *stubAdapter) IsReady(inst *mediation.AdInstance) bool { return s.ready[inst] }

func (s *stubAdapter) Prepare(inst *mediation.AdInstance, placement string) {
	s.prepared = append(s.prepared, inst.Name+"@"+placement)
}

func (s *stubAdapter) Show(inst *mediation.AdInstance, placement string) bool {
	if !s.ready[inst] {
		return false
	}
	s.shown = append(s.shown, inst.Name+"@"+placement)
	s.AddEvent(inst.AdType, mediation.AdEventShow, inst)
	return true
}

func (s *stubAdapter) Hide(inst *mediation.AdInstance) {
	s.AddEvent(inst.AdType, mediation.AdEventHide, inst)
}

func (s *stubAdapter) SetPersonalizedAds(p bool) { s.personalized = append(s.personalized, p) }

func (s *stubAdapter) SetApplicationPaused(p bool) { s.paused = append(s.paused, p) }

type fakeRecorder struct {
	mu           sync.Mutex
	backoffSkips int
	ticks        int
	pending      map[string]int
	enabled      map[string]bool
	consent      []bool
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{enabled: make(map[string]bool), pending: make(map[string]int)}
}

func (r *fakeRecorder) RecordBackoffSkip(string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backoffSkips++
}

func (r *fakeRecorder) RecordTick(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks++
}

func (r *fakeRecorder) SetPendingEvents(network string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[network] = n
}

func (r *fakeRecorder) SetAdapterEnabled(network string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled[network] = enabled
}

func (r *fakeRecorder) RecordConsentSignal(personalized bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consent = append(r.consent, personalized)
}

func networkConfig(t *testing.T, name string, enabled bool, instances ...map[string]interface{}) *mediation.NetworkConfig {
	t.Helper()
	cfg := &mediation.NetworkConfig{Network: name, Enabled: enabled}
	if len(instances) == 0 {
		return cfg
	}
	raw, err := json.Marshal(instances)
	if err != nil {
		t.Fatalf("marshal instances: %v", err)
	}
	cfg.Instances = raw
	return cfg
}

func start(t *testing.T, m *Mediator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errc; err != nil {
			t.Errorf("Run returned %v", err)
		}
	})
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func waitEvent(t *testing.T, events <-chan mediation.Event, want mediation.AdEvent) mediation.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Event == want {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
			return mediation.Event{}
		}
	}
}

func newTestMediator(t *testing.T, clock mediation.Clock) (*Mediator, *stubAdapter, *fakeRecorder) {
	t.Helper()
	rec := newFakeRecorder()
	m := New(Config{TickInterval: time.Millisecond}, WithRecorder(rec))
	stub := newStubAdapter("stub", clock)
	cfg := networkConfig(t, "stub", true,
		map[string]interface{}{"adType": "interstitial", "name": "main", "id": "int-1", "timeout": 60},
		map[string]interface{}{"adType": "rewarded", "id": "rv-1"},
	)
	if err := m.Register(stub, cfg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return m, stub, rec
}

func TestTick_RecordsPendingEvents(t *testing.T) {
	m, stub, rec := newTestMediator(t, mediation.SystemClock)
	inst := stub.Instance(mediation.AdTypeInterstitial, "main")

	stub.AddEvent(mediation.AdTypeInterstitial, mediation.AdEventPrepared, inst)
	stub.AddEvent(mediation.AdTypeInterstitial, mediation.AdEventShow, inst)
	m.tick()

	if got := rec.pending["stub"]; got != 2 {
		t.Errorf("expected 2 pending events before the flush, got %d", got)
	}
	if stub.PendingEvents() != 0 {
		t.Errorf("expected the tick to flush the queue, %d left", stub.PendingEvents())
	}

	m.tick()
	if got := rec.pending["stub"]; got != 0 {
		t.Errorf("expected 0 pending events on an idle tick, got %d", got)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	m := New(DefaultConfig())
	clock := mediation.NewManualClock(time.Unix(0, 0))
	if err := m.Register(newStubAdapter("stub", clock), nil); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := m.Register(newStubAdapter("stub", clock), nil); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestRegister_DisabledConfig(t *testing.T) {
	rec := newFakeRecorder()
	m := New(DefaultConfig(), WithRecorder(rec))
	stub := newStubAdapter("stub", mediation.SystemClock)
	if err := m.Register(stub, networkConfig(t, "stub", false)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if stub.Enabled() {
		t.Error("adapter should be disabled")
	}
	if enabled, ok := rec.enabled["stub"]; !ok || enabled {
		t.Errorf("expected enabled gauge false, got %v (set=%v)", enabled, ok)
	}
}

func TestRegister_InvalidInstancesStillRegisters(t *testing.T) {
	m := New(DefaultConfig())
	stub := newStubAdapter("stub", mediation.SystemClock)
	cfg := networkConfig(t, "stub", true,
		map[string]interface{}{"adType": "interstitial", "id": "ok"},
		map[string]interface{}{"adType": "video", "id": "bad"},
	)
	err := m.Register(stub, cfg)
	if !errors.Is(err, mediation.ErrUnknownAdType) {
		t.Fatalf("expected ErrUnknownAdType, got %v", err)
	}
	if got := m.Networks(); len(got) != 1 || got[0] != "stub" {
		t.Errorf("Networks() = %v", got)
	}
	if stub.Instance(mediation.AdTypeInterstitial, "default") == nil {
		t.Error("valid instance should be registered")
	}
}

func TestRun_Twice(t *testing.T) {
	m := New(Config{TickInterval: time.Millisecond})
	start(t, m)
	if err := m.Do(testContext(t), func() {}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if err := m.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	stub := newStubAdapter("late", mediation.SystemClock)
	if err := m.Register(stub, nil); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning on late Register, got %v", err)
	}
}

func TestPrepare_Resolution(t *testing.T) {
	m, stub, _ := newTestMediator(t, mediation.SystemClock)
	start(t, m)
	ctx := testContext(t)

	tests := []struct {
		name    string
		network string
		adType  mediation.AdType
		inst    string
		wantErr error
	}{
		{"unknown network", "nope", mediation.AdTypeInterstitial, "main", ErrUnknownNetwork},
		{"unsupported ad type", "stub", mediation.AdTypeBanner, "main", ErrUnsupportedAdType},
		{"unknown instance", "stub", mediation.AdTypeInterstitial, "other", ErrInstanceNotFound},
		{"ok", "stub", mediation.AdTypeInterstitial, "main", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Prepare(ctx, tt.network, tt.adType, tt.inst, "")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if len(stub.prepared) != 1 || stub.prepared[0] != "main@default" {
		t.Errorf("prepared = %v", stub.prepared)
	}
}

func TestPrepare_BackoffAfterFailure(t *testing.T) {
	clock := mediation.NewManualClock(time.Unix(1000, 0))
	m, stub, rec := newTestMediator(t, clock)
	events := make(chan mediation.Event, 16)
	m.Subscribe(func(e mediation.Event) { events <- e })
	start(t, m)
	ctx := testContext(t)

	inst := stub.Instance(mediation.AdTypeInterstitial, "main")
	m.Post(func() {
		stub.AddEvent(mediation.AdTypeInterstitial, mediation.AdEventPrepareFailure, inst)
	})
	waitEvent(t, events, mediation.AdEventPrepareFailure)

	err := m.Prepare(ctx, "stub", mediation.AdTypeInterstitial, "main", "")
	if !errors.Is(err, ErrBackoffActive) {
		t.Fatalf("expected ErrBackoffActive, got %v", err)
	}
	rec.mu.Lock()
	skips := rec.backoffSkips
	rec.mu.Unlock()
	if skips != 1 {
		t.Errorf("backoff skips = %d, want 1", skips)
	}

	statuses, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	main := statuses[0].Instances[0]
	if !main.BackoffActive || main.BackoffRemaining != "1m0s" || main.LastPrepared {
		t.Errorf("unexpected status %+v", main)
	}

	clock.Advance(60 * time.Second)
	if err := m.Prepare(ctx, "stub", mediation.AdTypeInterstitial, "main", "home"); err != nil {
		t.Fatalf("Prepare after cooldown: %v", err)
	}
	if len(stub.prepared) != 1 || stub.prepared[0] != "main@home" {
		t.Errorf("prepared = %v", stub.prepared)
	}
}

func TestPrepare_SkipsWhenAlreadyAvailable(t *testing.T) {
	m, stub, _ := newTestMediator(t, mediation.SystemClock)
	rv := stub.Instance(mediation.AdTypeIncentivized, "default")
	stub.ready[rv] = true
	start(t, m)

	if err := m.Prepare(testContext(t), "stub", mediation.AdTypeIncentivized, "", ""); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(stub.prepared) != 0 {
		t.Errorf("available rewarded should not reload, prepared = %v", stub.prepared)
	}
}

func TestShowAndHide(t *testing.T) {
	m, stub, _ := newTestMediator(t, mediation.SystemClock)
	events := make(chan mediation.Event, 16)
	m.Subscribe(func(e mediation.Event) { events <- e })
	start(t, m)
	ctx := testContext(t)

	shown, err := m.Show(ctx, "stub", mediation.AdTypeInterstitial, "main", "level_end")
	if err != nil || shown {
		t.Fatalf("Show before ready = %v, %v", shown, err)
	}

	if err := m.Do(ctx, func() {
		stub.ready[stub.Instance(mediation.AdTypeInterstitial, "main")] = true
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	ready, err := m.IsReady(ctx, "stub", mediation.AdTypeInterstitial, "main")
	if err != nil || !ready {
		t.Fatalf("IsReady = %v, %v", ready, err)
	}

	shown, err = m.Show(ctx, "stub", mediation.AdTypeInterstitial, "main", "level_end")
	if err != nil || !shown {
		t.Fatalf("Show = %v, %v", shown, err)
	}
	e := waitEvent(t, events, mediation.AdEventShow)
	if e.Adapter.Name() != "stub" || e.Instance.Name != "main" {
		t.Errorf("unexpected show event %+v", e)
	}

	if err := m.Hide(ctx, "stub", mediation.AdTypeInterstitial, "main"); err != nil {
		t.Fatalf("Hide: %v", err)
	}
	waitEvent(t, events, mediation.AdEventHide)
}

func TestShow_DisabledAdapter(t *testing.T) {
	m, stub, _ := newTestMediator(t, mediation.SystemClock)
	stub.Disable()
	start(t, m)

	_, err := m.Show(testContext(t), "stub", mediation.AdTypeInterstitial, "main", "")
	if !errors.Is(err, ErrAdapterDisabled) {
		t.Errorf("expected ErrAdapterDisabled, got %v", err)
	}
}

func TestBroadcasts(t *testing.T) {
	m, stub, rec := newTestMediator(t, mediation.SystemClock)
	start(t, m)
	ctx := testContext(t)

	if err := m.SetPersonalizedAds(ctx, false); err != nil {
		t.Fatalf("SetPersonalizedAds: %v", err)
	}
	if err := m.SetApplicationPaused(ctx, true); err != nil {
		t.Fatalf("SetApplicationPaused: %v", err)
	}
	if len(stub.personalized) != 1 || stub.personalized[0] {
		t.Errorf("personalized = %v", stub.personalized)
	}
	if len(stub.paused) != 1 || !stub.paused[0] {
		t.Errorf("paused = %v", stub.paused)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.consent) != 1 || rec.consent[0] {
		t.Errorf("consent signals = %v", rec.consent)
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	m, stub, _ := newTestMediator(t, mediation.SystemClock)
	var mu sync.Mutex
	var count int
	unsubscribe := m.Subscribe(func(mediation.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	sentinel := make(chan mediation.Event, 4)
	m.Subscribe(func(e mediation.Event) { sentinel <- e })
	start(t, m)

	inst := stub.Instance(mediation.AdTypeInterstitial, "main")
	m.Post(func() { stub.AddEvent(mediation.AdTypeInterstitial, mediation.AdEventClick, inst) })
	waitEvent(t, sentinel, mediation.AdEventClick)

	unsubscribe()
	m.Post(func() { stub.AddEvent(mediation.AdTypeInterstitial, mediation.AdEventClick, inst) })
	waitEvent(t, sentinel, mediation.AdEventClick)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("unsubscribed listener called %d times, want 1", count)
	}
}

func TestShutdown_FlushesAndDisables(t *testing.T) {
	rec := newFakeRecorder()
	m := New(Config{TickInterval: time.Hour}, WithRecorder(rec))
	stub := newStubAdapter("stub", mediation.SystemClock)
	if err := m.Register(stub, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	events := make(chan mediation.Event, 4)
	m.Subscribe(func(e mediation.Event) { events <- e })

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx) }()

	if err := m.Do(testContext(t), func() {
		stub.AddEvent(mediation.AdTypeInterstitial, mediation.AdEventHide, nil)
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case e := <-events:
		if e.Event != mediation.AdEventHide {
			t.Errorf("unexpected event %s", e.Event)
		}
	default:
		t.Error("queued event should be flushed on shutdown")
	}
	if stub.Enabled() {
		t.Error("adapter should be disabled after shutdown")
	}
	if err := m.Do(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped after shutdown, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	m, _, _ := newTestMediator(t, mediation.SystemClock)
	start(t, m)

	statuses, err := m.Status(testContext(t))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected 1 network, got %d", len(statuses))
	}
	ns := statuses[0]
	if ns.Network != "stub" || !ns.Enabled || len(ns.Instances) != 2 {
		t.Fatalf("unexpected status %+v", ns)
	}
	rv := ns.Instances[1]
	if rv.AdType != "incentivized" || rv.Name != "default" || rv.AdID != "rv-1" || rv.State != "uncertain" || rv.Ready {
		t.Errorf("unexpected instance status %+v", rv)
	}
}

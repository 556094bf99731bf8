package ironsource

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/thenexusengine/tne_mediation/internal/adapters"
	"github.com/thenexusengine/tne_mediation/internal/mediation"
)

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeSDK records every command in order and lets tests fire callbacks
type fakeSDK struct {
	calls    []string
	metadata map[string]string
	consent  *bool
	appKey   string
	units    []AdUnit

	interstitialReady bool
	rewardedAvailable bool

	handlers map[int]func(Callback)
	nextID   int

	loadedBanner struct {
		size      BannerSize
		position  BannerPosition
		placement string
	}
}

func newFakeSDK() *fakeSDK {
	return &fakeSDK{metadata: make(map[string]string), handlers: make(map[int]func(Callback))}
}

func (f *fakeSDK) record(call string) { f.calls = append(f.calls, call) }

func (f *fakeSDK) Init(appKey string, units ...AdUnit) {
	f.record("init")
	f.appKey = appKey
	f.units = units
}

func (f *fakeSDK) ValidateIntegration() { f.record("validate") }

func (f *fakeSDK) SetConsent(consent bool) {
	f.record("consent")
	f.consent = &consent
}

func (f *fakeSDK) SetMetaData(key, value string) { f.metadata[key] = value }

func (f *fakeSDK) OnApplicationPause(paused bool) {
	if paused {
		f.record("pause")
	} else {
		f.record("resume")
	}
}

func (f *fakeSDK) LoadInterstitial() { f.record("load_interstitial") }
func (f *fakeSDK) IsInterstitialReady() bool { return f.interstitialReady }
func (f *fakeSDK) ShowInterstitial(string) { f.record("show_interstitial") }
func (f *fakeSDK) IsRewardedVideoAvailable() bool { return f.rewardedAvailable }
func (f *fakeSDK) ShowRewardedVideo(string) { f.record("show_rewarded") }
func (f *fakeSDK) DisplayBanner() { f.record("display_banner") }
func (f *fakeSDK) HideBanner() { f.record("hide_banner") }
func (f *fakeSDK) DestroyBanner() { f.record("destroy_banner") }
func (f *fakeSDK) PluginVersion() string { return "7.2.1" }

func (f *fakeSDK) LoadBanner(size BannerSize, position BannerPosition, placement string) {
	f.record("load_banner")
	f.loadedBanner.size = size
	f.loadedBanner.position = position
	f.loadedBanner.placement = placement
}

func (f *fakeSDK) Subscribe(handler func(Callback)) func() {
	f.nextID++
	id := f.nextID
	f.handlers[id] = handler
	return func() { delete(f.handlers, id) }
}

func (f *fakeSDK) fire(cb Callback) {
	for _, h := range f.handlers {
		h(cb)
	}
}

func (f *fakeSDK) count(call string) int {
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeSDK) indexOf(call string) int {
	for i, c := range f.calls {
		if c == call {
			return i
		}
	}
	return -1
}

type recordedEvent struct {
	adType mediation.AdType
	event  mediation.AdEvent
	inst   *mediation.AdInstance
}

func collect(a mediation.Adapter) *[]recordedEvent {
	events := &[]recordedEvent{}
	a.Subscribe(func(e mediation.Event) {
		*events = append(*events, recordedEvent{e.AdType, e.Event, e.Instance})
	})
	return events
}

func eventNames(events []recordedEvent) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.event.String()
	}
	return names
}

const bannerInstances = `[
	{"adType": "banner", "id": "b1", "name": "top", "param": "top"},
	{"adType": "banner", "id": "b2", "name": "bottom"}
]`

func newTestAdapter(t *testing.T) (*Adapter, *fakeSDK, *mediation.ManualClock) {
	t.Helper()
	sdk := newFakeSDK()
	clock := mediation.NewManualClock(testStart)
	a := New(sdk, DefaultConfig(), mediation.WithClock(clock))

	err := a.Initialize(&mediation.NetworkConfig{
		Network:   Name,
		Enabled:   true,
		Settings:  map[string]string{"appId": "app-key"},
		Instances: json.RawMessage(bannerInstances),
		Parameters: []*mediation.InstanceParameters{
			{AdType: mediation.AdTypeBanner, Name: "top", Values: map[string]string{"size": "large", "position": "top"}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return a, sdk, clock
}

func TestInitialize_NilConfig(t *testing.T) {
	sdk := newFakeSDK()
	a := New(sdk, DefaultConfig())

	if err := a.Initialize(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	instances := a.Instances()
	if len(instances) != 2 {
		t.Fatalf("expected the two default instances, got %d", len(instances))
	}
	if a.Instance(mediation.AdTypeInterstitial, "default") == nil {
		t.Error("expected default interstitial")
	}
	if a.Instance(mediation.AdTypeIncentivized, "default") == nil {
		t.Error("expected default rewarded")
	}
	if len(sdk.calls) != 0 {
		t.Errorf("expected no SDK calls, got %v", sdk.calls)
	}
	if len(sdk.handlers) != 0 {
		t.Error("expected no SDK subscription")
	}
}

func TestInitialize_SetsUpSDK(t *testing.T) {
	a, sdk, _ := newTestAdapter(t)

	if sdk.appKey != "app-key" {
		t.Errorf("expected app key, got %q", sdk.appKey)
	}
	if len(sdk.units) != 3 {
		t.Errorf("expected 3 ad units, got %v", sdk.units)
	}
	if sdk.count("validate") != 1 {
		t.Error("expected integration validation")
	}
	if sdk.consent == nil || !*sdk.consent {
		t.Error("expected consent true by default")
	}
	if sdk.metadata["do_not_sell"] != "false" {
		t.Errorf("expected do_not_sell=false, got %q", sdk.metadata["do_not_sell"])
	}
	if len(sdk.handlers) != 1 {
		t.Errorf("expected one SDK subscription, got %d", len(sdk.handlers))
	}
	if sdk.indexOf("consent") > sdk.indexOf("init") {
		t.Error("expected consent before SDK init")
	}

	if len(a.Instances()) != 4 {
		t.Errorf("expected 2 banners and 2 defaults, got %d", len(a.Instances()))
	}
	inter := a.Instance(mediation.AdTypeInterstitial, "default")
	if inter.Timeout == nil || inter.Timeout.Duration != 120*time.Second {
		t.Errorf("expected 120s default timeout, got %+v", inter.Timeout)
	}
	if a.SDKVersion() != "7.2.1" {
		t.Errorf("unexpected SDK version %s", a.SDKVersion())
	}
}

func TestInitialize_ReusesConfiguredDefault(t *testing.T) {
	sdk := newFakeSDK()
	a := New(sdk, DefaultConfig())
	err := a.Initialize(&mediation.NetworkConfig{
		Network:   Name,
		Instances: json.RawMessage(`[{"adType": "interstitial", "id": "i1", "timeout": 30}]`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(a.Instances()) != 2 {
		t.Fatalf("expected configured interstitial plus default rewarded, got %d", len(a.Instances()))
	}
	inter := a.Instance(mediation.AdTypeInterstitial, "default")
	if inter.AdID != "i1" || inter.Timeout.Duration != 30*time.Second {
		t.Errorf("expected configured interstitial, got %+v", inter)
	}
}

func TestInitialize_PersonalizedAdsSetting(t *testing.T) {
	sdk := newFakeSDK()
	a := New(sdk, DefaultConfig())
	_ = a.Initialize(&mediation.NetworkConfig{
		Network:  Name,
		Settings: map[string]string{"personalizedAds": "false"},
	})

	if sdk.consent == nil || *sdk.consent {
		t.Error("expected consent false")
	}
	if sdk.metadata["do_not_sell"] != "true" {
		t.Errorf("expected do_not_sell=true, got %q", sdk.metadata["do_not_sell"])
	}
}

func TestInterstitial_PrepareFailure(t *testing.T) {
	a, sdk, _ := newTestAdapter(t)
	events := collect(a)
	inst := a.Instance(mediation.AdTypeInterstitial, "default")

	a.Prepare(inst, "default")
	if sdk.count("load_interstitial") != 1 {
		t.Fatalf("expected one load, got %v", sdk.calls)
	}

	sdk.fire(Callback{Event: InterstitialAdLoadFailed, Error: &Error{Code: 509, Description: "no fill"}})
	if len(*events) != 0 {
		t.Fatal("expected no synchronous dispatch from a vendor callback")
	}
	if a.PendingEvents() != 1 {
		t.Fatalf("expected one queued event, got %d", a.PendingEvents())
	}

	a.Tick()

	if len(*events) != 1 {
		t.Fatalf("expected one event, got %d", len(*events))
	}
	got := (*events)[0]
	if got.adType != mediation.AdTypeInterstitial || got.event != mediation.AdEventPrepareFailure || got.inst != inst {
		t.Errorf("unexpected event %+v", got)
	}
	if a.LastPrepared(mediation.AdTypeInterstitial, inst) {
		t.Error("expected last prepared false")
	}
	if a.IsReady(inst) {
		t.Error("expected not ready")
	}
	if inst.State != mediation.AdStateNotAvailable {
		t.Errorf("expected not_available, got %s", inst.State)
	}
}

func TestInterstitial_NamedInstanceUsesSingleSlot(t *testing.T) {
	sdk := newFakeSDK()
	a := New(sdk, DefaultConfig())
	err := a.Initialize(&mediation.NetworkConfig{
		Network: Name,
		Instances: json.RawMessage(`[
			{"adType": "interstitial", "id": "i1"},
			{"adType": "interstitial", "id": "i2", "name": "menu", "timeout": 30}
		]`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := collect(a)
	def := a.Instance(mediation.AdTypeInterstitial, "default")
	menu := a.Instance(mediation.AdTypeInterstitial, "menu")
	if menu == nil || menu.Timeout == nil || menu.Timeout.Duration != 30*time.Second {
		t.Fatalf("expected the named instance with its own timeout, got %+v", menu)
	}

	a.Prepare(menu, "menu")
	sdk.fire(Callback{Event: InterstitialAdLoadFailed, Error: &Error{Code: 509, Description: "no fill"}})
	a.Tick()

	if sdk.count("load_interstitial") != 1 {
		t.Fatalf("expected one load, got %v", sdk.calls)
	}
	if len(*events) != 1 || (*events)[0].inst != def {
		t.Fatalf("expected the failure on the default instance, got %+v", *events)
	}
	if def.State != mediation.AdStateNotAvailable {
		t.Errorf("expected default not_available, got %s", def.State)
	}
	if menu.State != mediation.AdStateUncertain {
		t.Errorf("expected the named instance untouched, got %s", menu.State)
	}
}

func TestInterstitial_PrepareInFlightIgnored(t *testing.T) {
	a, sdk, _ := newTestAdapter(t)
	inst := a.Instance(mediation.AdTypeInterstitial, "default")

	a.Prepare(inst, "default")
	a.Prepare(inst, "default")
	if sdk.count("load_interstitial") != 1 {
		t.Fatalf("expected a single load while in flight, got %d", sdk.count("load_interstitial"))
	}

	sdk.interstitialReady = true
	sdk.fire(Callback{Event: InterstitialAdReady})
	a.Tick()

	if inst.State != mediation.AdStateReceived {
		t.Errorf("expected received, got %s", inst.State)
	}
	if !a.LastPrepared(mediation.AdTypeInterstitial, inst) {
		t.Error("expected last prepared true")
	}

	a.Prepare(inst, "default")
	if sdk.count("load_interstitial") != 2 {
		t.Error("expected a new load once the previous one completed")
	}
}

func TestInterstitial_ShowLifecycle(t *testing.T) {
	a, sdk, _ := newTestAdapter(t)
	events := collect(a)
	inst := a.Instance(mediation.AdTypeInterstitial, "default")

	if a.Show(inst, "default") {
		t.Fatal("expected show to fail before ready")
	}
	if sdk.count("show_interstitial") != 0 {
		t.Fatal("expected no vendor show")
	}

	sdk.interstitialReady = true
	if !a.Show(inst, "menu") {
		t.Fatal("expected show to succeed")
	}
	sdk.fire(Callback{Event: InterstitialAdOpened})
	sdk.fire(Callback{Event: InterstitialAdShowSucceeded})
	sdk.fire(Callback{Event: InterstitialAdClicked})
	sdk.fire(Callback{Event: InterstitialAdClosed})
	a.Tick()

	want := []string{"show", "click", "hide"}
	got := eventNames(*events)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestShowFailure_SetsNotAvailable(t *testing.T) {
	a, sdk, _ := newTestAdapter(t)
	events := collect(a)

	sdk.fire(Callback{Event: InterstitialAdShowFailed, Error: &Error{Code: 520}})
	sdk.fire(Callback{Event: RewardedVideoAdShowFailed})
	a.Tick()

	if len(*events) != 0 {
		t.Errorf("expected no events for show failures, got %v", eventNames(*events))
	}
	for _, adType := range []mediation.AdType{mediation.AdTypeInterstitial, mediation.AdTypeIncentivized} {
		if s := a.Instance(adType, "default").State; s != mediation.AdStateNotAvailable {
			t.Errorf("%s: expected not_available, got %s", adType, s)
		}
	}
}

func TestRewarded_Availability(t *testing.T) {
	a, sdk, _ := newTestAdapter(t)
	events := collect(a)
	inst := a.Instance(mediation.AdTypeIncentivized, "default")

	a.Prepare(inst, "default")
	if len(sdk.calls) != 3 {
		t.Errorf("expected rewarded prepare to leave the SDK alone, got %v", sdk.calls)
	}

	sdk.fire(Callback{Event: RewardedVideoAvailabilityChanged, Available: true})
	a.Tick()
	if inst.State != mediation.AdStateReceived || (*events)[0].event != mediation.AdEventPrepared {
		t.Errorf("expected received/prepared, got %s/%s", inst.State, (*events)[0].event)
	}

	sdk.fire(Callback{Event: RewardedVideoAvailabilityChanged, Available: false})
	a.Tick()
	if inst.State != mediation.AdStateNotAvailable || (*events)[1].event != mediation.AdEventPrepareFailure {
		t.Errorf("expected not_available/prepare_failure, got %s/%s", inst.State, (*events)[1].event)
	}
}

func TestRewarded_Completed(t *testing.T) {
	a, sdk, _ := newTestAdapter(t)
	events := collect(a)
	inst := a.Instance(mediation.AdTypeIncentivized, "default")
	sdk.rewardedAvailable = true

	if !a.Show(inst, "level_end") {
		t.Fatal("expected show")
	}
	sdk.fire(Callback{Event: RewardedVideoAdOpened})
	sdk.fire(Callback{Event: RewardedVideoAdStarted})
	sdk.fire(Callback{Event: RewardedVideoAdEnded})
	sdk.fire(Callback{Event: RewardedVideoAdRewarded, Placement: &Placement{Name: "level_end", RewardName: "coins", RewardAmount: 50}})
	sdk.fire(Callback{Event: RewardedVideoAdClosed})
	a.Tick()

	want := []string{"show", "incentivized_complete", "hide"}
	got := eventNames(*events)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if r := a.LastReward(); r.Label != "coins" || r.Amount != 50 {
		t.Errorf("unexpected reward %+v", r)
	}
}

func TestRewarded_ClosedWithoutReward(t *testing.T) {
	a, sdk, _ := newTestAdapter(t)
	events := collect(a)

	sdk.fire(Callback{Event: RewardedVideoAdOpened})
	sdk.fire(Callback{Event: RewardedVideoAdClosed})
	a.Tick()

	want := []string{"show", "incentivized_incomplete", "hide"}
	got := eventNames(*events)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBanner_LoadedWithoutIntentHides(t *testing.T) {
	a, sdk, _ := newTestAdapter(t)
	events := collect(a)
	banner := a.Instance(mediation.AdTypeBanner, "top")

	a.Prepare(banner, "menu")
	if sdk.count("load_banner") != 0 {
		t.Fatal("expected the banner request to wait for the next tick")
	}
	a.Tick()
	if sdk.count("load_banner") != 1 {
		t.Fatalf("expected one banner load, got %v", sdk.calls)
	}
	if sdk.loadedBanner.size != BannerSizeLarge || sdk.loadedBanner.position != BannerPositionTop || sdk.loadedBanner.placement != "menu" {
		t.Errorf("unexpected banner request %+v", sdk.loadedBanner)
	}
	if a.BannerPlacement != "menu" {
		t.Errorf("expected banner placement menu, got %s", a.BannerPlacement)
	}

	sdk.fire(Callback{Event: BannerAdLoaded})

	if sdk.count("hide_banner") != 1 || sdk.count("display_banner") != 0 {
		t.Errorf("expected hide not display, got %v", sdk.calls)
	}
	if !a.IsReady(banner) {
		t.Error("expected banner ready")
	}

	a.Tick()
	if len(*events) != 1 || (*events)[0].event != mediation.AdEventPrepared || (*events)[0].inst != banner {
		t.Errorf("unexpected events %+v", *events)
	}
}

func TestBanner_LoadedWithIntentDisplays(t *testing.T) {
	a, sdk, _ := newTestAdapter(t)
	banner := a.Instance(mediation.AdTypeBanner, "top")

	a.Prepare(banner, "menu")
	if a.Show(banner, "menu") {
		t.Fatal("expected show to fail while loading")
	}
	a.Tick()
	sdk.fire(Callback{Event: BannerAdLoaded})

	if sdk.count("display_banner") != 1 || sdk.count("hide_banner") != 0 {
		t.Errorf("expected display from visibility intent, got %v", sdk.calls)
	}
}

func TestBanner_SwitchReleasesBeforeLoad(t *testing.T) {
	a, sdk, clock := newTestAdapter(t)
	top := a.Instance(mediation.AdTypeBanner, "top")
	bottom := a.Instance(mediation.AdTypeBanner, "bottom")

	a.Prepare(top, "menu")
	a.Tick()
	sdk.fire(Callback{Event: BannerAdLoaded})
	a.Tick()
	if a.BannerState() != mediation.AdStateReceived {
		t.Fatalf("expected received banner, got %s", a.BannerState())
	}

	a.Prepare(bottom, "game")
	if sdk.count("destroy_banner") != 1 {
		t.Fatalf("expected the loaded banner to be destroyed, got %v", sdk.calls)
	}
	if a.IsReady(top) {
		t.Error("expected old banner not ready while switching")
	}

	clock.Advance(499 * time.Millisecond)
	a.Tick()
	if sdk.count("load_banner") != 1 {
		t.Fatal("expected no new load before the settle delay")
	}

	clock.Advance(time.Millisecond)
	a.Tick()
	if sdk.count("load_banner") != 2 {
		t.Fatalf("expected the new load after the settle delay, got %v", sdk.calls)
	}
	destroyAt := sdk.indexOf("destroy_banner")
	lastLoad := len(sdk.calls) - 1
	if sdk.calls[lastLoad] != "load_banner" || destroyAt > lastLoad {
		t.Errorf("expected destroy before load, got %v", sdk.calls)
	}
	if a.CurrentBanner() != bottom {
		t.Error("expected bottom to be the current banner")
	}
	if sdk.loadedBanner.position != BannerPositionBottom || sdk.loadedBanner.size != BannerSizeSmart {
		t.Errorf("expected defaults for unparameterized banner, got %+v", sdk.loadedBanner)
	}
}

func TestBanner_PrepareWhileLoadingIgnored(t *testing.T) {
	a, sdk, _ := newTestAdapter(t)
	top := a.Instance(mediation.AdTypeBanner, "top")
	bottom := a.Instance(mediation.AdTypeBanner, "bottom")

	a.Prepare(top, "menu")
	a.Prepare(bottom, "menu")
	a.Tick()

	if sdk.count("load_banner") != 1 {
		t.Errorf("expected one banner load, got %d", sdk.count("load_banner"))
	}
	if a.CurrentBanner() != top {
		t.Error("expected the first request to win")
	}
}

func TestBanner_LoadFailed(t *testing.T) {
	a, sdk, _ := newTestAdapter(t)
	events := collect(a)
	banner := a.Instance(mediation.AdTypeBanner, "top")

	a.Prepare(banner, "menu")
	a.Tick()
	sdk.fire(Callback{Event: BannerAdLoadFailed, Error: &Error{Code: 606, Description: "no fill"}})
	a.Tick()

	if a.BannerState() != mediation.AdStateNotAvailable {
		t.Errorf("expected not_available, got %s", a.BannerState())
	}
	if len(*events) != 1 || (*events)[0].event != mediation.AdEventPrepareFailure {
		t.Fatalf("unexpected events %+v", *events)
	}
	if a.LastPrepared(mediation.AdTypeBanner, banner) {
		t.Error("expected last prepared false")
	}

	a.Prepare(banner, "menu")
	a.Tick()
	if sdk.count("load_banner") != 2 {
		t.Error("expected a retry to issue a new load")
	}
}

func TestBanner_NotifiedFailureMarksUnavailable(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	banner := a.Instance(mediation.AdTypeBanner, "top")

	a.Prepare(banner, "menu")
	a.NotifyEvent(mediation.AdTypeBanner, mediation.AdEventPrepareFailure, banner)

	if a.BannerState() != mediation.AdStateNotAvailable {
		t.Errorf("expected not_available, got %s", a.BannerState())
	}
}

func TestBanner_HideQueuesEvent(t *testing.T) {
	a, sdk, _ := newTestAdapter(t)
	events := collect(a)
	banner := a.Instance(mediation.AdTypeBanner, "top")

	a.Hide(banner)
	if sdk.count("hide_banner") != 1 {
		t.Error("expected vendor hide")
	}
	if len(*events) != 0 {
		t.Fatal("expected the hide event to be deferred")
	}
	a.Tick()
	if len(*events) != 1 || (*events)[0].event != mediation.AdEventHide {
		t.Errorf("unexpected events %+v", *events)
	}
}

func TestBanner_HideWithoutNotify(t *testing.T) {
	a, sdk, _ := newTestAdapter(t)
	events := collect(a)
	banner := a.Instance(mediation.AdTypeBanner, "top")

	a.HideWithoutNotify(banner)
	if sdk.count("hide_banner") != 0 {
		t.Error("expected no vendor hide without a loaded banner")
	}

	a.Prepare(banner, "menu")
	a.Tick()
	a.Show(banner, "menu")
	sdk.fire(Callback{Event: BannerAdLoaded})
	a.HideWithoutNotify(banner)
	a.Tick()

	if sdk.count("hide_banner") != 1 {
		t.Errorf("expected one vendor hide, got %v", sdk.calls)
	}
	for _, e := range *events {
		if e.event == mediation.AdEventHide {
			t.Error("expected no hide event")
		}
	}
}

func TestBanner_ResetCancelsPendingRequest(t *testing.T) {
	a, sdk, clock := newTestAdapter(t)
	top := a.Instance(mediation.AdTypeBanner, "top")
	bottom := a.Instance(mediation.AdTypeBanner, "bottom")

	a.Prepare(top, "menu")
	a.Tick()
	sdk.fire(Callback{Event: BannerAdLoaded})

	a.Prepare(bottom, "menu")
	a.ResetAd(bottom)
	clock.Advance(time.Second)
	a.Tick()

	if sdk.count("load_banner") != 1 {
		t.Errorf("expected the pending request to be cancelled, got %v", sdk.calls)
	}
	if a.BannerState() != mediation.AdStateUncertain {
		t.Errorf("expected uncertain, got %s", a.BannerState())
	}
}

func TestDisable_UnsubscribesAndFlushes(t *testing.T) {
	a, sdk, clock := newTestAdapter(t)
	events := collect(a)
	top := a.Instance(mediation.AdTypeBanner, "top")

	sdk.fire(Callback{Event: InterstitialAdLoadFailed})
	a.Prepare(top, "menu")
	a.Disable()

	if len(*events) != 1 || (*events)[0].event != mediation.AdEventPrepareFailure {
		t.Errorf("expected the queued failure to be delivered, got %+v", *events)
	}
	if len(sdk.handlers) != 0 {
		t.Error("expected SDK subscription removed")
	}

	clock.Advance(time.Second)
	a.Tick()
	if sdk.count("load_banner") != 0 {
		t.Error("expected the delayed banner request to be cancelled")
	}
}

func TestPersonalizedAdsAndPause(t *testing.T) {
	a, sdk, _ := newTestAdapter(t)

	a.SetPersonalizedAds(false)
	if *sdk.consent || sdk.metadata["do_not_sell"] != "true" {
		t.Error("expected consent withdrawn")
	}

	a.SetApplicationPaused(true)
	a.SetApplicationPaused(false)
	if sdk.count("pause") != 1 || sdk.count("resume") != 1 {
		t.Errorf("expected pause and resume, got %v", sdk.calls)
	}
}

type impressionRecorder struct {
	adUnit  string
	revenue float64
}

func (r *impressionRecorder) RecordAdEvent(string, string, string) {}
func (r *impressionRecorder) RecordFlush(string, int, time.Duration) {}
func (r *impressionRecorder) RecordPrepare(string, string) {}
func (r *impressionRecorder) RecordImpression(_, adUnit string, rev float64) { r.adUnit, r.revenue = adUnit, rev }

func TestImpression_Recorded(t *testing.T) {
	a, sdk, _ := newTestAdapter(t)
	rec := &impressionRecorder{}
	a.SetRecorder(rec)
	events := collect(a)

	sdk.fire(Callback{Event: ImpressionSuccess, Impression: &ImpressionData{AdUnit: "rewarded_video", Revenue: 0.012}})
	sdk.fire(Callback{Event: ImpressionSuccess})
	a.Tick()

	if rec.adUnit != "rewarded_video" || rec.revenue != 0.012 {
		t.Errorf("unexpected impression %+v", rec)
	}
	if len(*events) != 0 {
		t.Error("expected impressions to emit no ad events")
	}
}

func TestBannerParameters(t *testing.T) {
	params := &mediation.InstanceParameters{
		AdType: mediation.AdTypeBanner,
		Values: map[string]string{"size": "Rectangle", "position": "bottom", "position.menu": "top"},
	}
	inst := mediation.NewAdInstance(mediation.AdTypeBanner, "b", "id")
	inst.Parameters = params

	tests := []struct {
		placement string
		want      BannerPosition
	}{
		{"menu", BannerPositionTop},
		{"game", BannerPositionBottom},
		{"", BannerPositionBottom},
	}
	for _, tt := range tests {
		if got := BannerPositionFor(inst, tt.placement); got != tt.want {
			t.Errorf("placement %q: expected %s, got %s", tt.placement, tt.want, got)
		}
	}
	if got := BannerSizeFor(inst); got != BannerSizeRectangle {
		t.Errorf("expected rectangle, got %s", got)
	}
	if got := BannerSizeFor(nil); got != BannerSizeSmart {
		t.Errorf("expected smart for nil instance, got %s", got)
	}
}

func TestFactory(t *testing.T) {
	if _, err := factory(adapters.Dependencies{}); !errors.Is(err, adapters.ErrMissingSDK) {
		t.Errorf("expected ErrMissingSDK, got %v", err)
	}

	a, err := adapters.DefaultRegistry.New(Name, adapters.Dependencies{SDK: newFakeSDK()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Name() != Name {
		t.Errorf("expected %s, got %s", Name, a.Name())
	}
	if !a.IsSupported(mediation.AdTypeBanner) || a.IsSupported(mediation.AdTypeNative) {
		t.Error("unexpected support table")
	}
}

func TestBanner_SettleDelayOverride(t *testing.T) {
	a, sdk, clock := newTestAdapter(t)
	a.SetBannerSettleDelay(50 * time.Millisecond)
	top := a.Instance(mediation.AdTypeBanner, "top")
	bottom := a.Instance(mediation.AdTypeBanner, "bottom")

	a.Prepare(top, "menu")
	a.Tick()
	sdk.fire(Callback{Event: BannerAdLoaded})
	a.Tick()

	a.Prepare(bottom, "game")
	clock.Advance(50 * time.Millisecond)
	a.Tick()
	if sdk.count("load_banner") != 2 {
		t.Fatalf("expected the new load after 50ms, got %v", sdk.calls)
	}
}

// Package ironsource binds the IronSource SDK to the mediation adapter contract
package ironsource

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/thenexusengine/tne_mediation/internal/adapters"
	"github.com/thenexusengine/tne_mediation/internal/config"
	"github.com/thenexusengine/tne_mediation/internal/mediation"
)

// Name is the network name used in configuration
const Name = "ironsource"

// Settings and parameter keys
const (
	settingAppID           = "appId"
	settingPersonalizedAds = "personalizedAds"
	paramBannerSize        = "size"
	paramBannerPosition    = "position"
	metaDoNotSell          = "do_not_sell"
)

// Config holds adapter tuning
type Config struct {
	// DefaultTimeout is the cooldown of the default interstitial and rewarded instances
	DefaultTimeout time.Duration
	// BannerSettleDelay separates a banner destroy from the next load
	BannerSettleDelay time.Duration
}

// DefaultConfig returns the production tuning
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:    config.DefaultNetworkTimeout,
		BannerSettleDelay: config.BannerSettleDelay,
	}
}

// Reward is the label and amount of the last granted reward
type Reward struct {
	Label  string
	Amount int
}

// Adapter implements mediation.Adapter over an IronSource SDK binding
type Adapter struct {
	*mediation.BaseAdapter

	sdk SDK
	cfg Config

	interstitial *mediation.AdInstance
	incentivized *mediation.AdInstance

	currentBanner *mediation.AdInstance
	bannerVisible bool
	bannerState   mediation.AdState
	cancelBanner  func()

	rewarded   bool
	lastReward Reward

	unsubscribe func()
}

var supportTable = []mediation.SupportParam{
	{AdType: mediation.AdTypeInterstitial},
	{AdType: mediation.AdTypeIncentivized, CheckAvailabilityWhenPreparing: true},
	{AdType: mediation.AdTypeBanner},
}

// New creates an IronSource adapter driving sdk
func New(sdk SDK, cfg Config, opts ...mediation.Option) *Adapter {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = config.DefaultNetworkTimeout
	}
	if cfg.BannerSettleDelay < 0 {
		cfg.BannerSettleDelay = 0
	}
	a := &Adapter{sdk: sdk, cfg: cfg}
	a.BaseAdapter = mediation.NewBaseAdapter(a, Name, supportTable, opts...)
	a.OnBeforeNotify(a.beforeNotify)
	return a
}

// Info returns the network metadata
func Info() adapters.NetworkInfo {
	return adapters.NetworkInfo{
		Enabled: true,
		AdTypes: []mediation.AdType{
			mediation.AdTypeInterstitial,
			mediation.AdTypeIncentivized,
			mediation.AdTypeBanner,
		},
	}
}

func factory(deps adapters.Dependencies) (mediation.Adapter, error) {
	sdk, ok := deps.SDK.(SDK)
	if !ok {
		return nil, adapters.ErrMissingSDK
	}
	return New(sdk, DefaultConfig(), deps.Options()...), nil
}

func init() {
	if err := adapters.RegisterAdapter(Name, factory, Info()); err != nil {
		panic(fmt.Sprintf("failed to register ironsource adapter: %v", err))
	}
}

// SDKVersion returns the vendor plugin version
func (a *Adapter) SDKVersion() string {
	return a.sdk.PluginVersion()
}

// SetBannerSettleDelay changes the delay between a banner destroy and the next load
func (a *Adapter) SetBannerSettleDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	a.cfg.BannerSettleDelay = d
}

// LastReward returns the most recently granted reward
func (a *Adapter) LastReward() Reward {
	return a.lastReward
}

// Initialize parses instances and sets up the SDK. The default interstitial
// and rewarded instances always exist; the SDK is only started with a config.
func (a *Adapter) Initialize(cfg *mediation.NetworkConfig) error {
	err := a.BaseAdapter.Initialize(cfg)

	a.interstitial = a.defaultInstance(mediation.AdTypeInterstitial)
	a.incentivized = a.defaultInstance(mediation.AdTypeIncentivized)

	if cfg == nil {
		return err
	}

	a.SetPersonalizedAds(personalizedAds(cfg.Settings))
	if a.unsubscribe == nil {
		a.unsubscribe = a.sdk.Subscribe(a.handleCallback)
	}
	a.sdk.Init(cfg.Settings[settingAppID], AdUnitInterstitial, AdUnitRewardedVideo, AdUnitBanner)
	a.sdk.ValidateIntegration()

	a.Logger().Info().
		Str("sdk_version", a.sdk.PluginVersion()).
		Bool("app_key_set", cfg.Settings[settingAppID] != "").
		Msg("IronSource SDK initialized")

	return err
}

// defaultInstance returns the configured default instance for adType or
// registers one with the adapter default timeout.
func (a *Adapter) defaultInstance(adType mediation.AdType) *mediation.AdInstance {
	if inst := a.Instance(adType, mediation.DefaultInstanceName); inst != nil {
		return inst
	}
	inst := mediation.NewAdInstance(adType, mediation.DefaultInstanceName, "")
	inst.Timeout = mediation.NewTimeoutPolicy(adType, a.cfg.DefaultTimeout)
	a.AddInstance(inst)
	return inst
}

func personalizedAds(settings map[string]string) bool {
	v, ok := settings[settingPersonalizedAds]
	if !ok {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

// Prepare requests a vendor load. Rewarded video is loaded by the SDK itself.
func (a *Adapter) Prepare(inst *mediation.AdInstance, placement string) {
	if inst == nil || !a.Enabled() {
		return
	}

	switch inst.AdType {
	case mediation.AdTypeBanner:
		if a.bannerState == mediation.AdStateLoading {
			return
		}
		var delay time.Duration
		if a.bannerState == mediation.AdStateReceived {
			a.sdk.DestroyBanner()
			delay = a.cfg.BannerSettleDelay
		}
		a.bannerState = mediation.AdStateLoading
		inst.State = mediation.AdStateLoading
		a.BannerPlacement = placement
		a.cancelBanner = a.Scheduler().After(delay, func() {
			a.cancelBanner = nil
			a.requestBanner(inst, placement)
		})

	case mediation.AdTypeInterstitial:
		// the SDK has a single interstitial slot
		if a.interstitial != nil {
			inst = a.interstitial
		}
		if inst.State == mediation.AdStateLoading {
			return
		}
		inst.State = mediation.AdStateLoading
		a.RecordPrepare(inst.AdType)
		a.sdk.LoadInterstitial()
	}
}

func (a *Adapter) requestBanner(inst *mediation.AdInstance, placement string) {
	size := BannerSizeFor(inst)
	position := BannerPositionFor(inst, placement)
	a.currentBanner = inst
	a.RecordPrepare(inst.AdType)
	a.Logger().Debug().
		Str("instance", inst.Name).
		Str("size", size.String()).
		Str("position", position.String()).
		Str("placement", placement).
		Msg("Requesting banner")
	a.sdk.LoadBanner(size, position, placement)
}

// BannerSizeFor reads the "size" parameter of inst, smart by default
func BannerSizeFor(inst *mediation.AdInstance) BannerSize {
	if inst == nil {
		return BannerSizeSmart
	}
	if s, ok := bannerSizeNames[strings.ToLower(inst.Parameters.String(paramBannerSize, ""))]; ok {
		return s
	}
	return BannerSizeSmart
}

// BannerPositionFor reads "position.<placement>" then "position", bottom by default
func BannerPositionFor(inst *mediation.AdInstance, placement string) BannerPosition {
	if inst == nil {
		return BannerPositionBottom
	}
	v := inst.Parameters.String(paramBannerPosition+"."+placement, "")
	if v == "" {
		v = inst.Parameters.String(paramBannerPosition, "")
	}
	if strings.EqualFold(v, "top") {
		return BannerPositionTop
	}
	return BannerPositionBottom
}

// IsReady asks the SDK for fullscreen ads; a banner is ready when it is the
// current banner and has been received.
func (a *Adapter) IsReady(inst *mediation.AdInstance) bool {
	if inst == nil {
		return false
	}
	switch inst.AdType {
	case mediation.AdTypeBanner:
		return inst == a.currentBanner && a.bannerState == mediation.AdStateReceived
	case mediation.AdTypeInterstitial:
		return a.sdk.IsInterstitialReady()
	case mediation.AdTypeIncentivized:
		return a.sdk.IsRewardedVideoAvailable()
	}
	return false
}

// Show displays inst when ready. For banners the visibility intent is kept
// so a later load displays it.
func (a *Adapter) Show(inst *mediation.AdInstance, placement string) bool {
	if inst == nil {
		return false
	}
	if inst.AdType == mediation.AdTypeBanner {
		a.bannerVisible = true
	}
	if !a.IsReady(inst) {
		return false
	}

	switch inst.AdType {
	case mediation.AdTypeBanner:
		a.sdk.DisplayBanner()
	case mediation.AdTypeInterstitial:
		a.sdk.ShowInterstitial(placement)
	case mediation.AdTypeIncentivized:
		a.sdk.ShowRewardedVideo(placement)
	}
	return true
}

// Hide hides a banner and queues the Hide event
func (a *Adapter) Hide(inst *mediation.AdInstance) {
	if inst == nil || inst.AdType != mediation.AdTypeBanner {
		return
	}
	a.bannerVisible = false
	a.sdk.HideBanner()
	a.AddEvent(mediation.AdTypeBanner, mediation.AdEventHide, inst)
}

// HideWithoutNotify hides a loaded banner without emitting an event
func (a *Adapter) HideWithoutNotify(inst *mediation.AdInstance) {
	if inst == nil || inst.AdType != mediation.AdTypeBanner {
		return
	}
	a.bannerVisible = false
	if a.bannerState == mediation.AdStateReceived {
		a.sdk.HideBanner()
	}
}

// ResetAd destroys the current banner and drops a pending banner request
func (a *Adapter) ResetAd(inst *mediation.AdInstance) {
	if inst == nil || inst.AdType != mediation.AdTypeBanner {
		return
	}
	if a.cancelBanner != nil {
		a.cancelBanner()
		a.cancelBanner = nil
	}
	if a.bannerState == mediation.AdStateReceived || a.bannerState == mediation.AdStateLoading {
		a.sdk.DestroyBanner()
	}
	a.bannerState = mediation.AdStateUncertain
	a.bannerVisible = false
	inst.State = mediation.AdStateUncertain
	if a.currentBanner == inst {
		a.currentBanner = nil
	}
}

// SetPersonalizedAds forwards consent and the matching do-not-sell flag
func (a *Adapter) SetPersonalizedAds(personalized bool) {
	a.sdk.SetConsent(personalized)
	a.sdk.SetMetaData(metaDoNotSell, strconv.FormatBool(!personalized))
}

// SetApplicationPaused forwards host pause and resume
func (a *Adapter) SetApplicationPaused(paused bool) {
	a.sdk.OnApplicationPause(paused)
}

// Disable flushes, cancels delayed requests and detaches from the SDK
func (a *Adapter) Disable() {
	a.BaseAdapter.Disable()
	a.cancelBanner = nil
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
}

// BannerState returns the state of the banner slot
func (a *Adapter) BannerState() mediation.AdState {
	return a.bannerState
}

// CurrentBanner returns the instance of the last banner request
func (a *Adapter) CurrentBanner() *mediation.AdInstance {
	return a.currentBanner
}

func (a *Adapter) beforeNotify(rec mediation.EventRecord) {
	if rec.AdType == mediation.AdTypeBanner && rec.Event == mediation.AdEventPrepareFailure {
		a.bannerState = mediation.AdStateNotAvailable
	}
}

// handleCallback translates one vendor callback. It only mutates adapter state
// and queues events; dispatch happens on the next Tick.
func (a *Adapter) handleCallback(cb Callback) {
	tr, ok := translations[cb.Event]
	if !ok {
		a.Logger().Debug().Str("callback", cb.Event.String()).Msg("Unhandled vendor callback")
		return
	}

	inst := a.instanceFor(tr.adType)
	if tr.state != keepState && inst != nil {
		inst.State = tr.state
	}

	event := tr.event
	if tr.apply != nil {
		event = tr.apply(a, inst, cb)
	}
	if event != mediation.AdEventNone {
		a.AddEvent(tr.adType, event, inst)
	}
}

func (a *Adapter) instanceFor(adType mediation.AdType) *mediation.AdInstance {
	switch adType {
	case mediation.AdTypeInterstitial:
		return a.interstitial
	case mediation.AdTypeIncentivized:
		return a.incentivized
	case mediation.AdTypeBanner:
		return a.currentBanner
	}
	return nil
}

var _ mediation.Adapter = (*Adapter)(nil)

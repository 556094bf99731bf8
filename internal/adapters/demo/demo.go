// Package demo implements a simulated IronSource SDK. It fills loads at a
// configurable rate after a simulated latency, so the host can run end to end
// without vendor credentials or a device.
package demo

import (
	"math/rand"
	"sync"
	"time"

	"github.com/thenexusengine/tne_mediation/internal/adapters/ironsource"
	"github.com/thenexusengine/tne_mediation/internal/config"
	"github.com/thenexusengine/tne_mediation/pkg/logger"
)

// Version is reported as the plugin version
const Version = "demo-7.2.1"

// Vendor error codes used by the simulator
const (
	ErrCodeInitNotDone  = 508
	ErrCodeNoFill       = 509
	ErrCodeShowFailed   = 520
	ErrCodeBannerNoFill = 606
)

// Config controls the simulation
type Config struct {
	// FillRate is the probability (0.0-1.0) that a load succeeds
	FillRate float64
	// LoadLatency is the delay between a load request and its callback
	LoadLatency time.Duration
	// MinCPM and MaxCPM bound the simulated impression revenue
	MinCPM float64
	MaxCPM float64
	// RewardName and RewardAmount are reported on completed rewarded videos
	RewardName   string
	RewardAmount int
	// Seed makes the simulation reproducible; zero uses the current time
	Seed int64
}

// DefaultConfig returns the default simulation settings
func DefaultConfig() Config {
	return Config{
		FillRate:     config.DemoFillRate,
		LoadLatency:  config.DemoLoadLatency,
		MinCPM:       0.50,
		MaxCPM:       5.00,
		RewardName:   "coins",
		RewardAmount: 10,
	}
}

// Option configures the simulator
type Option func(*SDK)

// WithTimer replaces time.AfterFunc for delayed callbacks
func WithTimer(after func(d time.Duration, fn func())) Option {
	return func(s *SDK) {
		if after != nil {
			s.after = after
		}
	}
}

// SDK is a simulated ironsource.SDK. Callbacks are handed to post, which is
// expected to run them on the goroutine that ticks the adapter.
type SDK struct {
	cfg   Config
	post  func(func())
	after func(time.Duration, func())

	mu       sync.Mutex
	rng      *rand.Rand
	handlers map[int]func(ironsource.Callback)
	nextID   int

	initialized bool
	appKey      string
	consent     bool
	metadata    map[string]string
	paused      bool

	interstitialReady bool
	rewardedAvailable bool

	bannerLoaded  bool
	bannerVisible bool
	bannerGen     int
}

// New creates a simulator. A nil post runs callbacks on the timer goroutine.
func New(cfg Config, post func(func()), opts ...Option) *SDK {
	if cfg.FillRate < 0 {
		cfg.FillRate = 0
	}
	if cfg.FillRate > 1 {
		cfg.FillRate = 1
	}
	if cfg.MaxCPM < cfg.MinCPM {
		cfg.MaxCPM = cfg.MinCPM
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if post == nil {
		post = func(fn func()) { fn() }
	}

	s := &SDK{
		cfg:  cfg,
		post: post,
		after: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
		// #nosec G404 -- math/rand is acceptable for simulated fill (not security-sensitive)
		rng:      rand.New(rand.NewSource(seed)),
		handlers: make(map[int]func(ironsource.Callback)),
		consent:  true,
		metadata: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ironsource.SDK = (*SDK)(nil)

// Init marks the SDK initialized and starts the automatic rewarded load
func (s *SDK) Init(appKey string, units ...ironsource.AdUnit) {
	s.mu.Lock()
	s.initialized = true
	s.appKey = appKey
	s.mu.Unlock()

	logger.Log.Info().
		Str("component", "demo_sdk").
		Int("ad_units", len(units)).
		Float64("fill_rate", s.cfg.FillRate).
		Msg("Simulated IronSource SDK initialized")

	for _, u := range units {
		if u == ironsource.AdUnitRewardedVideo {
			s.loadRewarded()
		}
	}
}

// ValidateIntegration always passes in simulation
func (s *SDK) ValidateIntegration() {
	logger.Log.Debug().Str("component", "demo_sdk").Msg("Integration validated")
}

// SetConsent stores the consent flag
func (s *SDK) SetConsent(consent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consent = consent
}

// SetMetaData stores a metadata pair
func (s *SDK) SetMetaData(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = value
}

// OnApplicationPause stores the pause flag
func (s *SDK) OnApplicationPause(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Consent returns the consent flag and the do-not-sell metadata
func (s *SDK) Consent() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consent, s.metadata["do_not_sell"]
}

// Paused reports the last pause state forwarded by the host
func (s *SDK) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// LoadInterstitial fills an interstitial after the load latency
func (s *SDK) LoadInterstitial() {
	if !s.isInitialized() {
		s.emit(ironsource.Callback{
			Event: ironsource.InterstitialAdLoadFailed,
			Error: &ironsource.Error{Code: ErrCodeInitNotDone, Description: "init not done"},
		})
		return
	}
	s.after(s.cfg.LoadLatency, func() {
		filled := s.roll()
		s.mu.Lock()
		s.interstitialReady = filled
		s.mu.Unlock()
		if filled {
			s.emit(ironsource.Callback{Event: ironsource.InterstitialAdReady})
			return
		}
		s.emit(ironsource.Callback{
			Event: ironsource.InterstitialAdLoadFailed,
			Error: &ironsource.Error{Code: ErrCodeNoFill, Description: "no ads to show"},
		})
	})
}

// IsInterstitialReady reports whether an interstitial is loaded
func (s *SDK) IsInterstitialReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interstitialReady
}

// ShowInterstitial plays the loaded interstitial and closes it after the latency
func (s *SDK) ShowInterstitial(placement string) {
	s.mu.Lock()
	ready := s.interstitialReady
	s.interstitialReady = false
	s.mu.Unlock()

	if !ready {
		s.emit(ironsource.Callback{
			Event: ironsource.InterstitialAdShowFailed,
			Error: &ironsource.Error{Code: ErrCodeShowFailed, Description: "no ads to show"},
		})
		return
	}

	s.emit(ironsource.Callback{Event: ironsource.InterstitialAdOpened})
	s.emit(ironsource.Callback{Event: ironsource.InterstitialAdShowSucceeded})
	s.emit(s.impression("interstitial", placement))
	s.after(s.cfg.LoadLatency, func() {
		s.emit(ironsource.Callback{Event: ironsource.InterstitialAdClosed})
	})
}

// IsRewardedVideoAvailable reports whether a rewarded video is loaded
func (s *SDK) IsRewardedVideoAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rewardedAvailable
}

// ShowRewardedVideo plays the rewarded video, grants the reward and reloads
func (s *SDK) ShowRewardedVideo(placement string) {
	s.mu.Lock()
	available := s.rewardedAvailable
	s.rewardedAvailable = false
	s.mu.Unlock()

	if !available {
		s.emit(ironsource.Callback{
			Event: ironsource.RewardedVideoAdShowFailed,
			Error: &ironsource.Error{Code: ErrCodeShowFailed, Description: "no ads to show"},
		})
		return
	}

	s.emit(ironsource.Callback{Event: ironsource.RewardedVideoAdOpened})
	s.emit(ironsource.Callback{Event: ironsource.RewardedVideoAdStarted})
	s.emit(s.impression("rewarded_video", placement))
	s.after(s.cfg.LoadLatency, func() {
		s.emit(ironsource.Callback{Event: ironsource.RewardedVideoAdEnded})
		s.emit(ironsource.Callback{
			Event: ironsource.RewardedVideoAdRewarded,
			Placement: &ironsource.Placement{
				Name:         placement,
				RewardName:   s.cfg.RewardName,
				RewardAmount: s.cfg.RewardAmount,
			},
		})
		s.emit(ironsource.Callback{Event: ironsource.RewardedVideoAdClosed})
		s.loadRewarded()
	})
}

func (s *SDK) loadRewarded() {
	s.after(s.cfg.LoadLatency, func() {
		filled := s.roll()
		s.mu.Lock()
		s.rewardedAvailable = filled
		s.mu.Unlock()
		s.emit(ironsource.Callback{Event: ironsource.RewardedVideoAvailabilityChanged, Available: filled})
	})
}

// LoadBanner fills a banner after the load latency unless it was destroyed meanwhile
func (s *SDK) LoadBanner(size ironsource.BannerSize, position ironsource.BannerPosition, placement string) {
	s.mu.Lock()
	gen := s.bannerGen
	s.mu.Unlock()

	logger.Log.Debug().
		Str("component", "demo_sdk").
		Str("size", size.String()).
		Str("position", position.String()).
		Str("placement", placement).
		Msg("Banner load requested")

	s.after(s.cfg.LoadLatency, func() {
		filled := s.roll()
		s.mu.Lock()
		if gen != s.bannerGen {
			s.mu.Unlock()
			return
		}
		s.bannerLoaded = filled
		s.mu.Unlock()

		if filled {
			s.emit(ironsource.Callback{Event: ironsource.BannerAdLoaded})
			return
		}
		s.emit(ironsource.Callback{
			Event: ironsource.BannerAdLoadFailed,
			Error: &ironsource.Error{Code: ErrCodeBannerNoFill, Description: "no fill"},
		})
	})
}

// DisplayBanner shows the loaded banner; the first display counts an impression
func (s *SDK) DisplayBanner() {
	s.mu.Lock()
	first := s.bannerLoaded && !s.bannerVisible
	if s.bannerLoaded {
		s.bannerVisible = true
	}
	s.mu.Unlock()

	if first {
		s.emit(ironsource.Callback{Event: ironsource.BannerAdScreenPresented})
		s.emit(s.impression("banner", ""))
	}
}

// HideBanner hides the banner without releasing it
func (s *SDK) HideBanner() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bannerVisible = false
}

// DestroyBanner releases the banner and drops any load in flight
func (s *SDK) DestroyBanner() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bannerGen++
	s.bannerLoaded = false
	s.bannerVisible = false
}

// BannerVisible reports whether a banner is on screen
func (s *SDK) BannerVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bannerVisible
}

// Subscribe registers a callback handler
func (s *SDK) Subscribe(handler func(ironsource.Callback)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.handlers[id] = handler
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

// PluginVersion returns the simulator version
func (s *SDK) PluginVersion() string {
	return Version
}

func (s *SDK) isInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *SDK) roll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.cfg.FillRate
}

func (s *SDK) impression(adUnit, placement string) ironsource.Callback {
	s.mu.Lock()
	cpm := s.cfg.MinCPM + s.rng.Float64()*(s.cfg.MaxCPM-s.cfg.MinCPM)
	s.mu.Unlock()

	return ironsource.Callback{
		Event: ironsource.ImpressionSuccess,
		Impression: &ironsource.ImpressionData{
			AdUnit:       adUnit,
			AdNetwork:    "demo",
			InstanceName: "demo",
			Placement:    placement,
			Country:      "US",
			Revenue:      cpm / 1000,
			Precision:    "ESTIMATED",
		},
	}
}

// emit hands cb to every handler through post. It must not be called with mu held.
func (s *SDK) emit(cb ironsource.Callback) {
	s.mu.Lock()
	handlers := make([]func(ironsource.Callback), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	s.post(func() {
		for _, h := range handlers {
			h(cb)
		}
	})
}

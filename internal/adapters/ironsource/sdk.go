package ironsource

import "fmt"

// AdUnit names an IronSource ad unit passed to Init
type AdUnit string

// Ad units initialized by the adapter
const (
	AdUnitInterstitial  AdUnit = "INTERSTITIAL"
	AdUnitRewardedVideo AdUnit = "REWARDED_VIDEO"
	AdUnitBanner        AdUnit = "BANNER"
)

// BannerSize is the IronSource banner format
type BannerSize int

// Banner formats
const (
	BannerSizeSmart BannerSize = iota
	BannerSizeBanner
	BannerSizeLarge
	BannerSizeRectangle
)

var bannerSizeNames = map[string]BannerSize{
	"smart":     BannerSizeSmart,
	"banner":    BannerSizeBanner,
	"large":     BannerSizeLarge,
	"rectangle": BannerSizeRectangle,
}

func (s BannerSize) String() string {
	for name, v := range bannerSizeNames {
		if v == s {
			return name
		}
	}
	return "smart"
}

// BannerPosition is the vertical anchor of a banner
type BannerPosition int

// Banner anchors
const (
	BannerPositionBottom BannerPosition = iota
	BannerPositionTop
)

func (p BannerPosition) String() string {
	if p == BannerPositionTop {
		return "top"
	}
	return "bottom"
}

// CallbackEvent identifies a vendor SDK callback
type CallbackEvent int

// SDK callbacks
const (
	InterstitialAdReady CallbackEvent = iota
	InterstitialAdLoadFailed
	InterstitialAdOpened
	InterstitialAdShowSucceeded
	InterstitialAdShowFailed
	InterstitialAdClicked
	InterstitialAdClosed

	RewardedVideoAvailabilityChanged
	RewardedVideoAdOpened
	RewardedVideoAdStarted
	RewardedVideoAdEnded
	RewardedVideoAdRewarded
	RewardedVideoAdShowFailed
	RewardedVideoAdClicked
	RewardedVideoAdClosed

	BannerAdLoaded
	BannerAdLoadFailed
	BannerAdClicked
	BannerAdScreenPresented
	BannerAdScreenDismissed
	BannerAdLeftApplication

	ImpressionSuccess
)

var callbackNames = [...]string{
	InterstitialAdReady:              "interstitial_ready",
	InterstitialAdLoadFailed:         "interstitial_load_failed",
	InterstitialAdOpened:             "interstitial_opened",
	InterstitialAdShowSucceeded:      "interstitial_show_succeeded",
	InterstitialAdShowFailed:         "interstitial_show_failed",
	InterstitialAdClicked:            "interstitial_clicked",
	InterstitialAdClosed:             "interstitial_closed",
	RewardedVideoAvailabilityChanged: "rewarded_availability_changed",
	RewardedVideoAdOpened:            "rewarded_opened",
	RewardedVideoAdStarted:           "rewarded_started",
	RewardedVideoAdEnded:             "rewarded_ended",
	RewardedVideoAdRewarded:          "rewarded_rewarded",
	RewardedVideoAdShowFailed:        "rewarded_show_failed",
	RewardedVideoAdClicked:           "rewarded_clicked",
	RewardedVideoAdClosed:            "rewarded_closed",
	BannerAdLoaded:                   "banner_loaded",
	BannerAdLoadFailed:               "banner_load_failed",
	BannerAdClicked:                  "banner_clicked",
	BannerAdScreenPresented:          "banner_screen_presented",
	BannerAdScreenDismissed:          "banner_screen_dismissed",
	BannerAdLeftApplication:          "banner_left_application",
	ImpressionSuccess:                "impression_success",
}

func (e CallbackEvent) String() string {
	if e >= 0 && int(e) < len(callbackNames) {
		return callbackNames[e]
	}
	return fmt.Sprintf("callback(%d)", int(e))
}

// Error is a vendor error payload
type Error struct {
	Code        int
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ironsource error %d: %s", e.Code, e.Description)
}

// Placement is the placement payload of a reward callback
type Placement struct {
	Name         string
	RewardName   string
	RewardAmount int
}

// ImpressionData is the impression-level revenue payload
type ImpressionData struct {
	AdUnit       string
	AdNetwork    string
	InstanceName string
	Placement    string
	Country      string
	Revenue      float64
	Precision    string
}

// Callback is one vendor callback
type Callback struct {
	Event      CallbackEvent
	Error      *Error
	Placement  *Placement
	Available  bool
	Impression *ImpressionData
}

// SDK is the native IronSource surface the adapter drives. Callbacks may be
// delivered on any goroutine; the host is expected to post them onto the
// goroutine that ticks the adapter.
type SDK interface {
	Init(appKey string, units ...AdUnit)
	ValidateIntegration()
	SetConsent(consent bool)
	SetMetaData(key, value string)
	OnApplicationPause(paused bool)

	LoadInterstitial()
	IsInterstitialReady() bool
	ShowInterstitial(placement string)

	IsRewardedVideoAvailable() bool
	ShowRewardedVideo(placement string)

	LoadBanner(size BannerSize, position BannerPosition, placement string)
	DisplayBanner()
	HideBanner()
	DestroyBanner()

	Subscribe(handler func(Callback)) (unsubscribe func())
	PluginVersion() string
}

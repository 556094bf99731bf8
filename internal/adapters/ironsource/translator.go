package ironsource

import (
	"github.com/thenexusengine/tne_mediation/internal/mediation"
)

// keepState marks a translation that leaves the instance state untouched
const keepState mediation.AdState = -1

// translation maps one vendor callback to the uniform event model. apply runs
// vendor-side bookkeeping and may replace the emitted event.
type translation struct {
	adType mediation.AdType
	event  mediation.AdEvent
	state  mediation.AdState
	apply  func(a *Adapter, inst *mediation.AdInstance, cb Callback) mediation.AdEvent
}

var translations = map[CallbackEvent]translation{
	InterstitialAdReady: {
		adType: mediation.AdTypeInterstitial,
		event:  mediation.AdEventPrepared,
		state:  mediation.AdStateReceived,
	},
	InterstitialAdLoadFailed: {
		adType: mediation.AdTypeInterstitial,
		event:  mediation.AdEventPrepareFailure,
		state:  mediation.AdStateNotAvailable,
		apply:  logFailure(mediation.AdEventPrepareFailure),
	},
	InterstitialAdOpened: {
		adType: mediation.AdTypeInterstitial,
		state:  keepState,
	},
	InterstitialAdShowSucceeded: {
		adType: mediation.AdTypeInterstitial,
		event:  mediation.AdEventShow,
		state:  keepState,
	},
	InterstitialAdShowFailed: {
		adType: mediation.AdTypeInterstitial,
		state:  mediation.AdStateNotAvailable,
		apply:  logFailure(mediation.AdEventNone),
	},
	InterstitialAdClicked: {
		adType: mediation.AdTypeInterstitial,
		event:  mediation.AdEventClick,
		state:  keepState,
	},
	InterstitialAdClosed: {
		adType: mediation.AdTypeInterstitial,
		event:  mediation.AdEventHide,
		state:  keepState,
	},

	RewardedVideoAvailabilityChanged: {
		adType: mediation.AdTypeIncentivized,
		state:  keepState,
		apply:  applyAvailability,
	},
	RewardedVideoAdOpened: {
		adType: mediation.AdTypeIncentivized,
		event:  mediation.AdEventShow,
		state:  keepState,
		apply: func(a *Adapter, _ *mediation.AdInstance, _ Callback) mediation.AdEvent {
			a.rewarded = false
			return mediation.AdEventShow
		},
	},
	RewardedVideoAdStarted: {
		adType: mediation.AdTypeIncentivized,
		state:  keepState,
	},
	RewardedVideoAdEnded: {
		adType: mediation.AdTypeIncentivized,
		state:  keepState,
	},
	RewardedVideoAdRewarded: {
		adType: mediation.AdTypeIncentivized,
		event:  mediation.AdEventIncentivizedComplete,
		state:  keepState,
		apply:  applyReward,
	},
	RewardedVideoAdShowFailed: {
		adType: mediation.AdTypeIncentivized,
		state:  mediation.AdStateNotAvailable,
		apply:  logFailure(mediation.AdEventNone),
	},
	RewardedVideoAdClicked: {
		adType: mediation.AdTypeIncentivized,
		event:  mediation.AdEventClick,
		state:  keepState,
	},
	RewardedVideoAdClosed: {
		adType: mediation.AdTypeIncentivized,
		event:  mediation.AdEventHide,
		state:  keepState,
		apply:  applyRewardedClosed,
	},

	BannerAdLoaded: {
		adType: mediation.AdTypeBanner,
		event:  mediation.AdEventPrepared,
		state:  mediation.AdStateReceived,
		apply:  applyBannerLoaded,
	},
	BannerAdLoadFailed: {
		adType: mediation.AdTypeBanner,
		event:  mediation.AdEventPrepareFailure,
		state:  mediation.AdStateNotAvailable,
		apply: func(a *Adapter, inst *mediation.AdInstance, cb Callback) mediation.AdEvent {
			a.bannerState = mediation.AdStateNotAvailable
			return logFailure(mediation.AdEventPrepareFailure)(a, inst, cb)
		},
	},
	BannerAdClicked: {
		adType: mediation.AdTypeBanner,
		event:  mediation.AdEventClick,
		state:  keepState,
	},
	BannerAdScreenPresented: {
		adType: mediation.AdTypeBanner,
		event:  mediation.AdEventShow,
		state:  keepState,
	},
	BannerAdScreenDismissed: {
		adType: mediation.AdTypeBanner,
		state:  keepState,
	},
	BannerAdLeftApplication: {
		adType: mediation.AdTypeBanner,
		state:  keepState,
	},

	ImpressionSuccess: {
		adType: mediation.AdTypeUnknown,
		state:  keepState,
		apply:  applyImpression,
	},
}

// logFailure logs the vendor error and emits event
func logFailure(event mediation.AdEvent) func(*Adapter, *mediation.AdInstance, Callback) mediation.AdEvent {
	return func(a *Adapter, inst *mediation.AdInstance, cb Callback) mediation.AdEvent {
		ev := a.Logger().Debug().Str("instance", mediation.InstanceName(inst))
		if cb.Error != nil {
			ev = ev.Int("code", cb.Error.Code).Str("description", cb.Error.Description)
		}
		ev.Str("callback", cb.Event.String()).Msg("Vendor failure")
		return event
	}
}

func applyAvailability(_ *Adapter, inst *mediation.AdInstance, cb Callback) mediation.AdEvent {
	if cb.Available {
		if inst != nil {
			inst.State = mediation.AdStateReceived
		}
		return mediation.AdEventPrepared
	}
	if inst != nil {
		inst.State = mediation.AdStateNotAvailable
	}
	return mediation.AdEventPrepareFailure
}

func applyReward(a *Adapter, _ *mediation.AdInstance, cb Callback) mediation.AdEvent {
	a.rewarded = true
	if cb.Placement != nil {
		a.lastReward = Reward{Label: cb.Placement.RewardName, Amount: cb.Placement.RewardAmount}
	}
	return mediation.AdEventIncentivizedComplete
}

func applyRewardedClosed(a *Adapter, inst *mediation.AdInstance, _ Callback) mediation.AdEvent {
	if !a.rewarded {
		a.AddEvent(mediation.AdTypeIncentivized, mediation.AdEventIncentivizedIncomplete, inst)
	}
	a.rewarded = false
	return mediation.AdEventHide
}

func applyBannerLoaded(a *Adapter, _ *mediation.AdInstance, _ Callback) mediation.AdEvent {
	a.bannerState = mediation.AdStateReceived
	if a.bannerVisible {
		a.sdk.DisplayBanner()
	} else {
		a.sdk.HideBanner()
	}
	return mediation.AdEventPrepared
}

// ImpressionRecorder receives impression-level revenue. internal/metrics implements it.
type ImpressionRecorder interface {
	RecordImpression(network, adUnit string, revenue float64)
}

func applyImpression(a *Adapter, _ *mediation.AdInstance, cb Callback) mediation.AdEvent {
	imp := cb.Impression
	if imp == nil {
		return mediation.AdEventNone
	}
	a.Logger().Info().
		Str("ad_unit", imp.AdUnit).
		Str("ad_network", imp.AdNetwork).
		Str("instance", imp.InstanceName).
		Str("placement", imp.Placement).
		Str("country", imp.Country).
		Float64("revenue", imp.Revenue).
		Msg("Impression")
	if r, ok := a.Recorder().(ImpressionRecorder); ok {
		r.RecordImpression(a.Name(), imp.AdUnit, imp.Revenue)
	}
	return mediation.AdEventNone
}

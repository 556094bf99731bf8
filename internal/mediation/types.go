// Package mediation provides the ad network adapter framework: the ad taxonomy,
// ad instances, load-failure backoff, the deferred event queue and the adapter
// contract every vendor binding implements.
package mediation

import "strings"

// AdType identifies an ad format. Values are dense and usable as array indexes.
type AdType int

const (
	AdTypeUnknown AdType = iota
	AdTypeInterstitial
	AdTypeIncentivized
	AdTypeBanner
	AdTypeNative

	adTypeCount
)

// AdTypes lists every known ad type except Unknown
var AdTypes = []AdType{AdTypeInterstitial, AdTypeIncentivized, AdTypeBanner, AdTypeNative}

var adTypeNames = [adTypeCount]string{
	AdTypeUnknown:      "unknown",
	AdTypeInterstitial: "interstitial",
	AdTypeIncentivized: "incentivized",
	AdTypeBanner:       "banner",
	AdTypeNative:       "native",
}

// adTypeAliases maps configuration strings to ad types
var adTypeAliases = map[string]AdType{
	"interstitial": AdTypeInterstitial,
	"incentivized": AdTypeIncentivized,
	"rewarded":     AdTypeIncentivized,
	"banner":       AdTypeBanner,
	"native":       AdTypeNative,
}

func (t AdType) String() string {
	if t < 0 || t >= adTypeCount {
		return adTypeNames[AdTypeUnknown]
	}
	return adTypeNames[t]
}

// ParseAdType maps a configuration string to an AdType, AdTypeUnknown if unmapped
func ParseAdType(s string) AdType {
	if t, ok := adTypeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t
	}
	return AdTypeUnknown
}

// AdEvent is a one-shot lifecycle occurrence reported by an adapter
type AdEvent int

const (
	AdEventNone AdEvent = iota
	AdEventSelected
	AdEventPrepared
	AdEventShow
	AdEventClick
	AdEventHide
	AdEventPrepareFailure
	AdEventIncentivizedComplete
	AdEventIncentivizedIncomplete
)

var adEventNames = []string{
	AdEventNone:                   "none",
	AdEventSelected:               "selected",
	AdEventPrepared:               "prepared",
	AdEventShow:                   "show",
	AdEventClick:                  "click",
	AdEventHide:                   "hide",
	AdEventPrepareFailure:         "prepare_failure",
	AdEventIncentivizedComplete:   "incentivized_complete",
	AdEventIncentivizedIncomplete: "incentivized_incomplete",
}

func (e AdEvent) String() string {
	if e < 0 || int(e) >= len(adEventNames) {
		return adEventNames[AdEventNone]
	}
	return adEventNames[e]
}

// AdState is the readiness of an instance or an ad type bucket
type AdState int

const (
	AdStateUncertain AdState = iota
	AdStateLoading
	AdStateReceived
	AdStateNotAvailable
)

func (s AdState) String() string {
	switch s {
	case AdStateLoading:
		return "loading"
	case AdStateReceived:
		return "received"
	case AdStateNotAvailable:
		return "not_available"
	default:
		return "uncertain"
	}
}

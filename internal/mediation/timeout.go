package mediation

import "time"

// MinTimeout is the smallest duration that enables a TimeoutPolicy
const MinTimeout = 10 * time.Millisecond

// TimeoutPolicy disables load attempts for an ad type or instance for a
// cooldown window after a load failure.
//
// IsActive has a side effect: the first read after the window elapses disarms
// the policy, and later reads return false until the next RecordFailure.
type TimeoutPolicy struct {
	AdType   AdType
	Duration time.Duration

	failedAt time.Time
	armed    bool
}

// NewTimeoutPolicy creates a policy for the given ad type
func NewTimeoutPolicy(adType AdType, duration time.Duration) *TimeoutPolicy {
	return &TimeoutPolicy{AdType: adType, Duration: duration}
}

// NewTimeoutPolicySeconds creates a policy from a duration in seconds
func NewTimeoutPolicySeconds(adType AdType, seconds float64) *TimeoutPolicy {
	return NewTimeoutPolicy(adType, time.Duration(seconds*float64(time.Second)))
}

// Enabled reports whether the policy can ever become active
func (p *TimeoutPolicy) Enabled() bool {
	return p != nil && p.AdType != AdTypeUnknown && p.Duration > MinTimeout
}

// RecordFailure stores the failure time and arms the policy
func (p *TimeoutPolicy) RecordFailure(now time.Time) {
	if p == nil {
		return
	}
	p.failedAt = now
	p.armed = true
}

// FailedAt returns the last recorded failure time and whether one is armed
func (p *TimeoutPolicy) FailedAt() (time.Time, bool) {
	if p == nil {
		return time.Time{}, false
	}
	return p.failedAt, p.armed
}

// IsActive reports whether the cooldown window is still open at now
func (p *TimeoutPolicy) IsActive(now time.Time) bool {
	if !p.Enabled() || !p.armed {
		return false
	}
	active := now.Sub(p.failedAt) < p.Duration
	p.armed = active
	return active
}

// Remaining returns how long the window stays open, zero when inactive.
// Unlike IsActive it never disarms the policy.
func (p *TimeoutPolicy) Remaining(now time.Time) time.Duration {
	if !p.Enabled() || !p.armed {
		return 0
	}
	if left := p.Duration - now.Sub(p.failedAt); left > 0 {
		return left
	}
	return 0
}

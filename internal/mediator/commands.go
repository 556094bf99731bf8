package mediator

import (
	"context"
	"fmt"

	"github.com/thenexusengine/tne_mediation/internal/mediation"
)

// availabilityChecker is implemented by adapters embedding BaseAdapter
type availabilityChecker interface {
	IsCheckAvailabilityWhenPreparing(adType mediation.AdType) bool
}

// resolve must run on the tick goroutine
func (m *Mediator) resolve(network string, adType mediation.AdType, name string) (mediation.Adapter, *mediation.AdInstance, error) {
	a, ok := m.byName[network]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, network)
	}
	if !a.IsSupported(adType) {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedAdType, network, adType)
	}
	if name == "" {
		name = mediation.DefaultInstanceName
	}
	inst := a.Instance(adType, name)
	if inst == nil {
		return nil, nil, fmt.Errorf("%w: %s/%s/%s", ErrInstanceNotFound, network, adType, name)
	}
	return a, inst, nil
}

// Prepare requests a load unless the cooldown for the instance is active.
// Ad types flagged to check availability skip the load when already ready.
func (m *Mediator) Prepare(ctx context.Context, network string, adType mediation.AdType, name, placement string) error {
	var err error
	doErr := m.Do(ctx, func() {
		var a mediation.Adapter
		var inst *mediation.AdInstance
		a, inst, err = m.resolve(network, adType, name)
		if err != nil {
			return
		}
		if !a.Enabled() {
			err = fmt.Errorf("%w: %s", ErrAdapterDisabled, network)
			return
		}
		if a.IsTimeout(adType, inst) {
			if m.recorder != nil {
				m.recorder.RecordBackoffSkip(network, adType.String())
			}
			err = fmt.Errorf("%w: %s/%s/%s", ErrBackoffActive, network, adType, inst.Name)
			return
		}
		if c, ok := a.(availabilityChecker); ok && c.IsCheckAvailabilityWhenPreparing(adType) && a.IsReady(inst) {
			m.log.Debug().Str("network", network).Str("ad_type", adType.String()).Msg("Already available, load skipped")
			return
		}
		a.Prepare(inst, placementOrDefault(placement))
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// IsReady reports whether an instance can be shown now
func (m *Mediator) IsReady(ctx context.Context, network string, adType mediation.AdType, name string) (bool, error) {
	var ready bool
	var err error
	doErr := m.Do(ctx, func() {
		var a mediation.Adapter
		var inst *mediation.AdInstance
		a, inst, err = m.resolve(network, adType, name)
		if err != nil {
			return
		}
		ready = a.Enabled() && a.IsReady(inst)
	})
	if doErr != nil {
		return false, doErr
	}
	return ready, err
}

// Show displays an instance and reports whether it was shown
func (m *Mediator) Show(ctx context.Context, network string, adType mediation.AdType, name, placement string) (bool, error) {
	var shown bool
	var err error
	doErr := m.Do(ctx, func() {
		var a mediation.Adapter
		var inst *mediation.AdInstance
		a, inst, err = m.resolve(network, adType, name)
		if err != nil {
			return
		}
		if !a.Enabled() {
			err = fmt.Errorf("%w: %s", ErrAdapterDisabled, network)
			return
		}
		shown = a.Show(inst, placementOrDefault(placement))
	})
	if doErr != nil {
		return false, doErr
	}
	return shown, err
}

// Hide hides an instance
func (m *Mediator) Hide(ctx context.Context, network string, adType mediation.AdType, name string) error {
	var err error
	doErr := m.Do(ctx, func() {
		var a mediation.Adapter
		var inst *mediation.AdInstance
		a, inst, err = m.resolve(network, adType, name)
		if err != nil {
			return
		}
		a.Hide(inst)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// SetPersonalizedAds forwards consent to every adapter
func (m *Mediator) SetPersonalizedAds(ctx context.Context, personalized bool) error {
	err := m.Do(ctx, func() {
		for _, a := range m.adapters {
			a.SetPersonalizedAds(personalized)
		}
	})
	if err == nil && m.recorder != nil {
		m.recorder.RecordConsentSignal(personalized)
	}
	return err
}

// SetApplicationPaused forwards host pause and resume to every adapter
func (m *Mediator) SetApplicationPaused(ctx context.Context, paused bool) error {
	return m.Do(ctx, func() {
		for _, a := range m.adapters {
			a.SetApplicationPaused(paused)
		}
	})
}

func placementOrDefault(placement string) string {
	if placement == "" {
		return mediation.DefaultPlacement
	}
	return placement
}

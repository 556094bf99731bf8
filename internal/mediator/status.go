package mediator

import (
	"context"
	"time"

	"github.com/thenexusengine/tne_mediation/internal/mediation"
)

// NetworkStatus is a snapshot of one adapter
type NetworkStatus struct {
	Network       string           `json:"network"`
	Enabled       bool             `json:"enabled"`
	PendingEvents int              `json:"pending_events"`
	Instances     []InstanceStatus `json:"instances"`
}

// InstanceStatus is a snapshot of one ad instance
type InstanceStatus struct {
	AdType           string `json:"ad_type"`
	Name             string `json:"name"`
	AdID             string `json:"ad_id,omitempty"`
	State            string `json:"state"`
	Ready            bool   `json:"ready"`
	LastPrepared     bool   `json:"last_prepared"`
	BackoffActive    bool   `json:"backoff_active"`
	BackoffRemaining string `json:"backoff_remaining,omitempty"`
}

type timeoutReporter interface {
	TimeoutRemaining(adType mediation.AdType, inst *mediation.AdInstance) time.Duration
}

type queueReporter interface {
	PendingEvents() int
}

// Status returns a snapshot of every adapter
func (m *Mediator) Status(ctx context.Context) ([]NetworkStatus, error) {
	var out []NetworkStatus
	err := m.Do(ctx, func() {
		out = make([]NetworkStatus, 0, len(m.adapters))
		for _, a := range m.adapters {
			out = append(out, networkStatus(a))
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func networkStatus(a mediation.Adapter) NetworkStatus {
	ns := NetworkStatus{
		Network:   a.Name(),
		Enabled:   a.Enabled(),
		Instances: []InstanceStatus{},
	}
	if q, ok := a.(queueReporter); ok {
		ns.PendingEvents = q.PendingEvents()
	}

	tr, hasRemaining := a.(timeoutReporter)
	for _, inst := range a.Instances() {
		is := InstanceStatus{
			AdType:        inst.AdType.String(),
			Name:          inst.Name,
			AdID:          inst.AdID,
			State:         inst.State.String(),
			Ready:         a.Enabled() && a.IsReady(inst),
			LastPrepared:  a.LastPrepared(inst.AdType, inst),
			BackoffActive: a.IsTimeout(inst.AdType, inst),
		}
		if is.BackoffActive && hasRemaining {
			is.BackoffRemaining = tr.TimeoutRemaining(inst.AdType, inst).String()
		}
		ns.Instances = append(ns.Instances, is)
	}
	return ns
}

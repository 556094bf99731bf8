// Package adapters provides the ad network adapter framework
package adapters

import (
	"errors"

	"github.com/thenexusengine/tne_mediation/internal/mediation"
)

// ErrMissingSDK is returned by a factory when the host did not supply a usable
// vendor SDK binding
var ErrMissingSDK = errors.New("vendor SDK binding missing")

// Dependencies are handed to a factory when the host builds an adapter
type Dependencies struct {
	Clock    mediation.Clock
	Recorder mediation.Recorder
	// SDK is the vendor binding. Each network asserts its own interface.
	SDK any
}

// Options converts the dependencies into base adapter options
func (d Dependencies) Options() []mediation.Option {
	var opts []mediation.Option
	if d.Clock != nil {
		opts = append(opts, mediation.WithClock(d.Clock))
	}
	if d.Recorder != nil {
		opts = append(opts, mediation.WithRecorder(d.Recorder))
	}
	return opts
}

// Factory builds an adapter for one network
type Factory func(deps Dependencies) (mediation.Adapter, error)

// NetworkInfo describes a network binding
type NetworkInfo struct {
	Enabled    bool
	AdTypes    []mediation.AdType
	SDKVersion string
	Maintainer *MaintainerInfo
}

// MaintainerInfo contains maintainer info
type MaintainerInfo struct {
	Email string
}

// NetworkWithInfo pairs a factory with its metadata
type NetworkWithInfo struct {
	Factory Factory
	Info    NetworkInfo
}

package mediation

import (
	"strconv"
	"time"
)

const (
	// DefaultInstanceName names the instance used when no name is given
	DefaultInstanceName = "default"
	// DefaultParametersName names the parameter set used when none is given
	DefaultParametersName = "default"
	// DefaultPlacement is the placement used when the caller has none
	DefaultPlacement = "default"
)

// AdInstance is one configured placement of one ad type within one adapter
type AdInstance struct {
	AdType AdType
	Name   string
	// AdID is the identifier the vendor SDK assigned to this placement
	AdID string

	// Timeout overrides the adapter-level policy for this instance when set
	Timeout    *TimeoutPolicy
	Parameters *InstanceParameters

	PrepareOnNetworkSwitch bool
	WaitResponseTime       time.Duration

	// State is maintained by the owning adapter from vendor callbacks
	State        AdState
	LastPrepared bool
}

// NewAdInstance creates an instance with the given identity
func NewAdInstance(adType AdType, name, adID string) *AdInstance {
	if name == "" {
		name = DefaultInstanceName
	}
	return &AdInstance{AdType: adType, Name: name, AdID: adID}
}

// InstanceName returns the instance name, DefaultInstanceName for nil
func InstanceName(inst *AdInstance) string {
	if inst == nil {
		return DefaultInstanceName
	}
	return inst.Name
}

// InstanceParameters is a named per-ad-type configuration bag such as banner
// size and position. Instances reference parameter sets by name.
type InstanceParameters struct {
	AdType AdType            `json:"-"`
	Name   string            `json:"name"`
	Values map[string]string `json:"values"`
}

// Get returns a value and whether it was present
func (p *InstanceParameters) Get(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p.Values[key]
	return v, ok
}

// String returns a value or def when absent
func (p *InstanceParameters) String(key, def string) string {
	if v, ok := p.Get(key); ok && v != "" {
		return v
	}
	return def
}

// Float returns a numeric value or def when absent or malformed
func (p *InstanceParameters) Float(key string, def float64) float64 {
	v, ok := p.Get(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// ParameterTable holds the parameter sets preloaded for one adapter
type ParameterTable struct {
	sets []*InstanceParameters
}

// NewParameterTable creates a table from preloaded sets
func NewParameterTable(sets ...*InstanceParameters) *ParameterTable {
	t := &ParameterTable{}
	for _, s := range sets {
		t.Add(s)
	}
	return t
}

// Add appends a parameter set; nil sets are ignored
func (t *ParameterTable) Add(p *InstanceParameters) {
	if p == nil {
		return
	}
	t.sets = append(t.sets, p)
}

// Lookup resolves a parameter set by (ad type, name). The last matching set wins.
func (t *ParameterTable) Lookup(adType AdType, name string) *InstanceParameters {
	if t == nil {
		return nil
	}
	var found *InstanceParameters
	for _, p := range t.sets {
		if p.AdType == adType && p.Name == name {
			found = p
		}
	}
	return found
}

// Len returns the number of parameter sets
func (t *ParameterTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.sets)
}

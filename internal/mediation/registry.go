package mediation

// Registry is the ordered list of instances an adapter owns. Lookups are
// linear and return the first registered match.
type Registry struct {
	instances []*AdInstance
}

// Register appends an instance. Duplicates are allowed; lookups resolve to
// the first one registered.
func (r *Registry) Register(inst *AdInstance) {
	if inst == nil {
		return
	}
	r.instances = append(r.instances, inst)
}

// Find returns the first instance matching type and name, nil if none
func (r *Registry) Find(adType AdType, name string) *AdInstance {
	for _, inst := range r.instances {
		if inst.AdType == adType && inst.Name == name {
			return inst
		}
	}
	return nil
}

// FindByName returns the first instance with the given name regardless of type
func (r *Registry) FindByName(name string) *AdInstance {
	for _, inst := range r.instances {
		if inst.Name == name {
			return inst
		}
	}
	return nil
}

// FindByAdID returns the first instance with the vendor-assigned identifier
func (r *Registry) FindByAdID(adID string) *AdInstance {
	for _, inst := range r.instances {
		if inst.AdID == adID {
			return inst
		}
	}
	return nil
}

// TypeOfAdID returns the ad type owning a vendor identifier, AdTypeUnknown if none
func (r *Registry) TypeOfAdID(adID string) AdType {
	if inst := r.FindByAdID(adID); inst != nil {
		return inst.AdType
	}
	return AdTypeUnknown
}

// All returns a copy of the registered instances in registration order
func (r *Registry) All() []*AdInstance {
	out := make([]*AdInstance, len(r.instances))
	copy(out, r.instances)
	return out
}

// Len returns the number of registered instances
func (r *Registry) Len() int {
	return len(r.instances)
}

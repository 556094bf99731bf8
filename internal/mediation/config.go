package mediation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/buger/jsonparser"
)

// Instance definition keys
const (
	keyName                   = "name"
	keyParameters             = "param"
	keyAdType                 = "adType"
	keyAdID                   = "id"
	keyTimeout                = "timeout"
	keyPrepareOnNetworkSwitch = "prepareWhenChangeNetwork"
	keyWaitResponseTime       = "waitResponseTime"
)

var (
	// ErrMissingField is returned for an instance definition lacking a required field
	ErrMissingField = errors.New("missing required field")
	// ErrUnknownAdType is returned for an instance definition with an unmapped ad type
	ErrUnknownAdType = errors.New("unknown ad type")
)

// NetworkConfig is everything an adapter needs to initialize
type NetworkConfig struct {
	Network string
	Enabled bool
	// Settings are flat adapter settings such as API keys
	Settings map[string]string
	// Instances is the raw JSON array of instance definitions
	Instances json.RawMessage
	// Parameters are the preloaded instance parameter sets
	Parameters []*InstanceParameters
}

// InstanceConfig is one parsed instance definition
type InstanceConfig struct {
	Name                   string
	ParametersName         string
	AdType                 AdType
	AdID                   string
	Timeout                *float64 // seconds, nil when not configured
	PrepareOnNetworkSwitch bool
	WaitResponseTime       time.Duration

	// Raw is the definition as configured, for adapter-specific fields
	Raw []byte
}

// ParseInstanceConfigs parses a JSON array of instance definitions. Invalid
// entries are skipped; their errors are joined into the returned error while
// every valid entry is still returned.
func ParseInstanceConfigs(data []byte) ([]InstanceConfig, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var (
		configs []InstanceConfig
		errs    []error
		index   int
	)
	_, err := jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, err error) {
		defer func() { index++ }()
		if err != nil {
			errs = append(errs, fmt.Errorf("instance %d: %w", index, err))
			return
		}
		if dataType != jsonparser.Object {
			errs = append(errs, fmt.Errorf("instance %d: expected object, got %s", index, dataType))
			return
		}
		cfg, err := parseInstanceConfig(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("instance %d: %w", index, err))
			return
		}
		configs = append(configs, cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse instance definitions: %w", err)
	}

	return configs, errors.Join(errs...)
}

func parseInstanceConfig(data []byte) (InstanceConfig, error) {
	cfg := InstanceConfig{
		Name:           optionalString(data, keyName, DefaultInstanceName),
		ParametersName: optionalString(data, keyParameters, DefaultParametersName),
		Raw:            data,
	}

	adType, err := jsonparser.GetString(data, keyAdType)
	if err != nil {
		return cfg, fmt.Errorf("%w: %s", ErrMissingField, keyAdType)
	}
	cfg.AdType = ParseAdType(adType)
	if cfg.AdType == AdTypeUnknown {
		return cfg, fmt.Errorf("%w: %q", ErrUnknownAdType, adType)
	}

	cfg.AdID, err = jsonparser.GetString(data, keyAdID)
	if err != nil {
		return cfg, fmt.Errorf("%w: %s", ErrMissingField, keyAdID)
	}

	if timeout, err := jsonparser.GetFloat(data, keyTimeout); err == nil {
		cfg.Timeout = &timeout
	}
	if prepare, err := jsonparser.GetBoolean(data, keyPrepareOnNetworkSwitch); err == nil {
		cfg.PrepareOnNetworkSwitch = prepare
	}
	if wait, err := jsonparser.GetFloat(data, keyWaitResponseTime); err == nil {
		cfg.WaitResponseTime = time.Duration(wait * float64(time.Second))
	}

	return cfg, nil
}

func optionalString(data []byte, key, def string) string {
	v, err := jsonparser.GetString(data, key)
	if err != nil {
		return def
	}
	return v
}

package mediation

import (
	"errors"
	"testing"
	"time"
)

func TestParseInstanceConfigs_Defaults(t *testing.T) {
	configs, err := ParseInstanceConfigs([]byte(`[{"adType": "interstitial", "id": "inter-1"}]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(configs) != 1 {
		t.Fatalf("expected 1 config, got %d", len(configs))
	}

	cfg := configs[0]
	if cfg.Name != DefaultInstanceName {
		t.Errorf("expected default name, got %q", cfg.Name)
	}
	if cfg.ParametersName != DefaultParametersName {
		t.Errorf("expected default parameters name, got %q", cfg.ParametersName)
	}
	if cfg.Timeout != nil {
		t.Errorf("expected no timeout, got %v", *cfg.Timeout)
	}
	if cfg.PrepareOnNetworkSwitch {
		t.Error("expected prepare on network switch to default to false")
	}
	if cfg.WaitResponseTime != 0 {
		t.Errorf("expected zero wait response time, got %v", cfg.WaitResponseTime)
	}
}

func TestParseInstanceConfigs_AllFields(t *testing.T) {
	data := []byte(`[{
		"name": "top",
		"param": "large",
		"adType": "banner",
		"id": "banner-7",
		"timeout": 45.5,
		"prepareWhenChangeNetwork": true,
		"waitResponseTime": 2.5
	}]`)

	configs, err := ParseInstanceConfigs(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := configs[0]
	if cfg.Name != "top" || cfg.ParametersName != "large" || cfg.AdID != "banner-7" {
		t.Errorf("unexpected identity %+v", cfg)
	}
	if cfg.AdType != AdTypeBanner {
		t.Errorf("expected banner, got %v", cfg.AdType)
	}
	if cfg.Timeout == nil || *cfg.Timeout != 45.5 {
		t.Errorf("expected timeout 45.5, got %v", cfg.Timeout)
	}
	if !cfg.PrepareOnNetworkSwitch {
		t.Error("expected prepare on network switch")
	}
	if cfg.WaitResponseTime != 2500*time.Millisecond {
		t.Errorf("expected 2.5s wait, got %v", cfg.WaitResponseTime)
	}
}

func TestParseInstanceConfigs_SkipsInvalidEntries(t *testing.T) {
	data := []byte(`[
		{"adType": "interstitial", "id": "ok-1"},
		{"id": "no-type"},
		{"adType": "banner"},
		{"adType": "hologram", "id": "bad-type"},
		"not an object",
		{"adType": "rewarded", "id": "ok-2"}
	]`)

	configs, err := ParseInstanceConfigs(data)
	if err == nil {
		t.Fatal("expected joined error for invalid entries")
	}
	if !errors.Is(err, ErrMissingField) {
		t.Errorf("expected ErrMissingField in %v", err)
	}
	if !errors.Is(err, ErrUnknownAdType) {
		t.Errorf("expected ErrUnknownAdType in %v", err)
	}

	if len(configs) != 2 {
		t.Fatalf("expected 2 valid configs, got %d", len(configs))
	}
	if configs[0].AdID != "ok-1" || configs[1].AdID != "ok-2" {
		t.Errorf("unexpected valid configs %q, %q", configs[0].AdID, configs[1].AdID)
	}
	if configs[1].AdType != AdTypeIncentivized {
		t.Errorf("expected rewarded alias to map to incentivized")
	}
}

func TestParseInstanceConfigs_Empty(t *testing.T) {
	configs, err := ParseInstanceConfigs(nil)
	if err != nil || configs != nil {
		t.Errorf("expected nothing for empty input, got %v, %v", configs, err)
	}

	configs, err = ParseInstanceConfigs([]byte(`[]`))
	if err != nil || len(configs) != 0 {
		t.Errorf("expected nothing for empty array, got %v, %v", configs, err)
	}
}

func TestParseInstanceConfigs_NotAnArray(t *testing.T) {
	if _, err := ParseInstanceConfigs([]byte(`{"adType": "banner"}`)); err == nil {
		t.Error("expected error for non-array input")
	}
}

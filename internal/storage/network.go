// Package storage loads ad network configuration from files, Redis and PostgreSQL
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/thenexusengine/tne_mediation/internal/mediation"
)

var (
	// ErrMissingNetwork is returned for a document without a network name
	ErrMissingNetwork = errors.New("network name is required")
	// ErrNetworkNotFound is returned when a stored network does not exist
	ErrNetworkNotFound = errors.New("network not found")
)

// Source loads every configured network
type Source interface {
	Load(ctx context.Context) ([]*mediation.NetworkConfig, error)
}

// NetworkDocument is the stored form of one network's configuration
type NetworkDocument struct {
	Network    string              `json:"network"`
	Enabled    bool                `json:"enabled"`
	Settings   map[string]string   `json:"settings,omitempty"`
	Instances  json.RawMessage     `json:"instances,omitempty"`
	Parameters []ParameterDocument `json:"parameters,omitempty"`
}

// ParameterDocument is the stored form of one instance parameter set
type ParameterDocument struct {
	AdType string            `json:"adType"`
	Name   string            `json:"name"`
	Values map[string]string `json:"values"`
}

// DecodeNetworkDocument parses one JSON network document
func DecodeNetworkDocument(data []byte) (*NetworkDocument, error) {
	var doc NetworkDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse network document: %w", err)
	}
	return &doc, nil
}

// NetworkConfig converts the document into adapter configuration. Instance
// definitions are validated later by the adapter.
func (d *NetworkDocument) NetworkConfig() (*mediation.NetworkConfig, error) {
	if d.Network == "" {
		return nil, ErrMissingNetwork
	}

	cfg := &mediation.NetworkConfig{
		Network:   d.Network,
		Enabled:   d.Enabled,
		Settings:  d.Settings,
		Instances: d.Instances,
	}
	if cfg.Settings == nil {
		cfg.Settings = map[string]string{}
	}

	for i, p := range d.Parameters {
		adType := mediation.ParseAdType(p.AdType)
		if adType == mediation.AdTypeUnknown {
			return nil, fmt.Errorf("network %s parameters[%d]: %w: %q", d.Network, i, mediation.ErrUnknownAdType, p.AdType)
		}
		name := p.Name
		if name == "" {
			name = mediation.DefaultParametersName
		}
		cfg.Parameters = append(cfg.Parameters, &mediation.InstanceParameters{
			AdType: adType,
			Name:   name,
			Values: p.Values,
		})
	}
	return cfg, nil
}

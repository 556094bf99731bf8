package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/thenexusengine/tne_mediation/internal/config"
	"github.com/thenexusengine/tne_mediation/internal/mediation"
)

// HashStore is the subset of the Redis client used by RedisSource
type HashStore interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key, field string, value interface{}) error
}

// RedisSource reads network documents from a Redis hash, one field per network
type RedisSource struct {
	client HashStore
	key    string
}

// NewRedisSource creates a Redis source. An empty key uses the default hash.
func NewRedisSource(client HashStore, key string) *RedisSource {
	if key == "" {
		key = config.RedisNetworksKey
	}
	return &RedisSource{client: client, key: key}
}

// Load reads every network in the hash, sorted by field name. The field name
// stands in for a document without a network name.
func (s *RedisSource) Load(ctx context.Context) ([]*mediation.NetworkConfig, error) {
	fields, err := s.client.HGetAll(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.key, err)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	configs := make([]*mediation.NetworkConfig, 0, len(names))
	var errs []error
	for _, name := range names {
		doc, err := DecodeNetworkDocument([]byte(fields[name]))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if doc.Network == "" {
			doc.Network = name
		}
		cfg, err := doc.NetworkConfig()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, errors.Join(errs...)
}

// Put stores a network document under its network name
func (s *RedisSource) Put(ctx context.Context, doc *NetworkDocument) error {
	if doc.Network == "" {
		return ErrMissingNetwork
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode network %s: %w", doc.Network, err)
	}
	if err := s.client.HSet(ctx, s.key, doc.Network, string(data)); err != nil {
		return fmt.Errorf("failed to store network %s: %w", doc.Network, err)
	}
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/thenexusengine/tne_mediation/internal/mediation"
)

// FileSource reads a JSON file of the form {"networks": [NetworkDocument...]}
type FileSource struct {
	Path string
}

// NewFileSource creates a file source
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

type fileDocument struct {
	Networks []NetworkDocument `json:"networks"`
}

// Load reads and converts every network in the file. Invalid networks are
// skipped and reported in the joined error.
func (s *FileSource) Load(ctx context.Context) ([]*mediation.NetworkConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read network config: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse network config %s: %w", s.Path, err)
	}

	configs := make([]*mediation.NetworkConfig, 0, len(doc.Networks))
	var errs []error
	for i := range doc.Networks {
		cfg, err := doc.Networks[i].NetworkConfig()
		if err != nil {
			errs = append(errs, fmt.Errorf("networks[%d]: %w", i, err))
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, errors.Join(errs...)
}

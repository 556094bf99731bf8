package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/thenexusengine/tne_mediation/internal/config"
	"github.com/thenexusengine/tne_mediation/internal/mediation"
)

// NetworkStore reads network configuration from PostgreSQL:
//
//	ad_networks(network, enabled, settings jsonb, instances jsonb)
//	ad_instance_parameters(id, network, ad_type, name, params jsonb)
type NetworkStore struct {
	db *sql.DB
}

// NewNetworkStore creates a new network store
func NewNetworkStore(db *sql.DB) *NetworkStore {
	return &NetworkStore{db: db}
}

// Load retrieves every network with its parameter sets, ordered by network
func (s *NetworkStore) Load(ctx context.Context) ([]*mediation.NetworkConfig, error) {
	query := `
		SELECT network, enabled, settings, instances
		FROM ad_networks
		ORDER BY network
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ad networks: %w", err)
	}
	defer rows.Close()

	docs := make([]*NetworkDocument, 0, 8)
	byNetwork := make(map[string]*NetworkDocument)
	for rows.Next() {
		doc, err := scanNetwork(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
		byNetwork[doc.Network] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ad networks: %w", err)
	}

	params, err := s.parameters(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range params {
		if doc, ok := byNetwork[p.network]; ok {
			doc.Parameters = append(doc.Parameters, p.ParameterDocument)
		}
	}

	configs := make([]*mediation.NetworkConfig, 0, len(docs))
	var errs []error
	for _, doc := range docs {
		cfg, err := doc.NetworkConfig()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, errors.Join(errs...)
}

// GetByNetwork retrieves one network without its parameter sets. A missing
// network is nil with no error.
func (s *NetworkStore) GetByNetwork(ctx context.Context, network string) (*NetworkDocument, error) {
	query := `
		SELECT network, enabled, settings, instances
		FROM ad_networks
		WHERE network = $1
	`

	doc, err := scanNetwork(s.db.QueryRowContext(ctx, query, network))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// SetEnabled toggles a network
func (s *NetworkStore) SetEnabled(ctx context.Context, network string, enabled bool) error {
	query := `UPDATE ad_networks SET enabled = $2, updated_at = NOW() WHERE network = $1`

	result, err := s.db.ExecContext(ctx, query, network, enabled)
	if err != nil {
		return fmt.Errorf("failed to update network %s: %w", network, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNetworkNotFound, network)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNetwork(row rowScanner) (*NetworkDocument, error) {
	var doc NetworkDocument
	var settingsJSON, instancesJSON []byte

	err := row.Scan(&doc.Network, &doc.Enabled, &settingsJSON, &instancesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan ad network row: %w", err)
	}

	// Parse JSONB settings
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &doc.Settings); err != nil {
			return nil, fmt.Errorf("failed to parse settings for %s: %w", doc.Network, err)
		}
	}
	if len(instancesJSON) > 0 {
		doc.Instances = json.RawMessage(instancesJSON)
	}
	return &doc, nil
}

type storedParameters struct {
	network string
	ParameterDocument
}

func (s *NetworkStore) parameters(ctx context.Context) ([]storedParameters, error) {
	query := `
		SELECT network, ad_type, name, params
		FROM ad_instance_parameters
		ORDER BY network, id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query instance parameters: %w", err)
	}
	defer rows.Close()

	var out []storedParameters
	for rows.Next() {
		var p storedParameters
		var paramsJSON []byte
		if err := rows.Scan(&p.network, &p.AdType, &p.Name, &paramsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan instance parameters row: %w", err)
		}
		if len(paramsJSON) > 0 {
			if err := json.Unmarshal(paramsJSON, &p.Values); err != nil {
				return nil, fmt.Errorf("failed to parse params for %s/%s: %w", p.network, p.Name, err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// NewDBConnection creates a new database connection
func NewDBConnection(host, port, user, password, dbname, sslmode string) (*sql.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configuration is read at startup only
	db.SetMaxOpenConns(config.DBMaxOpenConns)
	db.SetMaxIdleConns(config.DBMaxIdleConns)
	db.SetConnMaxLifetime(config.DBConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

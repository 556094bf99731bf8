// Package config provides shared configuration constants for the mediation host
package config

import "time"

// Server timeout defaults
const (
	// ServerReadTimeout is the maximum duration for reading the entire request
	ServerReadTimeout = 5 * time.Second

	// ServerWriteTimeout is the maximum duration before timing out writes of the response
	ServerWriteTimeout = 10 * time.Second

	// ServerIdleTimeout is the maximum time to wait for the next request when keep-alives are enabled
	ServerIdleTimeout = 120 * time.Second

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 30 * time.Second
)

// Size limiting defaults
const (
	// DefaultMaxBodySize is the maximum admin request body size (64KB)
	DefaultMaxBodySize = 64 * 1024

	// DefaultMaxURLLength is the maximum admin request URL length
	DefaultMaxURLLength = 2048
)

// Auth defaults
const (
	// AuthCacheTimeout is how long a validated API key is cached
	AuthCacheTimeout = 30 * time.Second

	// AuthNegativeCacheTimeout is how long a rejected API key is cached
	AuthNegativeCacheTimeout = 5 * time.Second

	// RedisAPIKeysHash maps admin API keys to operator IDs
	// #nosec G101 -- Redis key name, not a credential
	RedisAPIKeysHash = "mediation:api_keys"
)

// Mediator defaults
const (
	// TickInterval is the host frame period driving event flushes and delayed operations
	TickInterval = 16 * time.Millisecond

	// CommandTimeout bounds how long an admin request waits for the tick loop
	CommandTimeout = 2 * time.Second
)

// Adapter defaults
const (
	// DefaultNetworkTimeout is the load-failure cooldown of adapter-created default instances
	DefaultNetworkTimeout = 120 * time.Second

	// BannerSettleDelay separates a banner destroy from the next banner load
	BannerSettleDelay = 500 * time.Millisecond
)

// Simulated SDK defaults
const (
	// DemoFillRate is the probability that a simulated load succeeds
	DemoFillRate = 0.8

	// DemoLoadLatency is the simulated time between a load request and its callback
	DemoLoadLatency = 300 * time.Millisecond
)

// Redis defaults
const (
	// RedisPoolSize is the default connection pool size
	RedisPoolSize = 10

	// RedisNetworksKey is the hash holding one network document per field
	RedisNetworksKey = "mediation:networks"
)

// Database defaults
const (
	// DBMaxOpenConns is the maximum number of open Postgres connections
	DBMaxOpenConns = 10

	// DBMaxIdleConns is the maximum number of idle Postgres connections
	DBMaxIdleConns = 2

	// DBConnMaxLifetime recycles Postgres connections
	DBConnMaxLifetime = 5 * time.Minute
)

// Event export defaults
const (
	// EventsBatchSize is the number of events sent per collector request
	EventsBatchSize = 100

	// EventsFlushInterval is how often partial batches are sent
	EventsFlushInterval = 10 * time.Second
)

package main

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/thenexusengine/tne_mediation/internal/adapters/demo"
	mconfig "github.com/thenexusengine/tne_mediation/internal/config"
	"github.com/thenexusengine/tne_mediation/internal/middleware"
)

// ServerConfig holds all server configuration
type ServerConfig struct {
	// Server
	Port string

	// Mediator
	TickInterval      time.Duration
	BannerSettleDelay time.Duration
	PersonalizedAds   bool

	// Network configuration sources, first configured wins:
	// PostgreSQL, then Redis, then a JSON file, then the built-in demo network.
	DatabaseConfig *DatabaseConfig
	RedisURL       string
	RedisKey       string
	ConfigFile     string

	// Event export, disabled when EventsURL is empty
	EventsURL           string
	EventsBatchSize     int
	EventsFlushInterval time.Duration

	// Admin API authentication, nil uses the environment defaults
	AuthConfig *middleware.AuthConfig

	// Simulated SDK
	FillRate    float64
	LoadLatency time.Duration
	Seed        int64
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// ParseConfig parses configuration from flags and environment variables
func ParseConfig() *ServerConfig {
	port := flag.String("port", getEnvOrDefault("MEDIATION_PORT", "8000"), "Server port")
	tick := flag.Duration("tick-interval", getEnvDurationOrDefault("MEDIATION_TICK_INTERVAL", mconfig.TickInterval), "Mediator frame period")
	settle := flag.Duration("banner-settle-delay", getEnvDurationOrDefault("MEDIATION_BANNER_SETTLE_DELAY", mconfig.BannerSettleDelay), "Delay between a banner destroy and the next load")
	configFile := flag.String("config", os.Getenv("MEDIATION_CONFIG_FILE"), "Network configuration JSON file")
	personalized := flag.Bool("personalized-ads", getEnvBoolOrDefault("MEDIATION_PERSONALIZED_ADS", true), "Default personalized ads consent")
	fillRate := flag.Float64("fill-rate", getEnvFloatOrDefault("DEMO_FILL_RATE", mconfig.DemoFillRate), "Simulated SDK fill rate (0.0-1.0)")
	latency := flag.Duration("load-latency", getEnvDurationOrDefault("DEMO_LOAD_LATENCY", mconfig.DemoLoadLatency), "Simulated SDK load latency")
	flag.Parse()

	cfg := &ServerConfig{
		Port:                *port,
		TickInterval:        *tick,
		BannerSettleDelay:   *settle,
		PersonalizedAds:     *personalized,
		RedisURL:            os.Getenv("REDIS_URL"),
		RedisKey:            getEnvOrDefault("REDIS_NETWORKS_KEY", mconfig.RedisNetworksKey),
		ConfigFile:          *configFile,
		EventsURL:           os.Getenv("EVENTS_URL"),
		EventsBatchSize:     getEnvIntOrDefault("EVENTS_BATCH_SIZE", mconfig.EventsBatchSize),
		EventsFlushInterval: getEnvDurationOrDefault("EVENTS_FLUSH_INTERVAL", mconfig.EventsFlushInterval),
		AuthConfig:          middleware.DefaultAuthConfig(),
		FillRate:            *fillRate,
		LoadLatency:         *latency,
	}

	if seed, err := strconv.ParseInt(os.Getenv("DEMO_SEED"), 10, 64); err == nil {
		cfg.Seed = seed
	}

	// Parse database config if DB_HOST is set
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.DatabaseConfig = &DatabaseConfig{
			Host:     dbHost,
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			User:     getEnvOrDefault("DB_USER", "mediation"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "mediation"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		}
	}

	return cfg
}

// ToDemoConfig converts ServerConfig to the simulated SDK settings
func (c *ServerConfig) ToDemoConfig() demo.Config {
	cfg := demo.DefaultConfig()
	cfg.FillRate = c.FillRate
	cfg.LoadLatency = c.LoadLatency
	cfg.Seed = c.Seed
	return cfg
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the environment variable as bool or a default
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvDurationOrDefault parses a Go duration, falling back on absence or error
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

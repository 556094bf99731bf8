// Package logger provides structured logging for the mediation host
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName is attached to every log line
const ServiceName = "mediation"

type contextKey string

const (
	// RequestIDKey is the context key for HTTP request IDs
	RequestIDKey contextKey = "request_id"
	// SessionIDKey is the context key for host session IDs
	SessionIDKey contextKey = "session_id"
)

// Log is the global logger. It is usable before Init with zerolog defaults.
var Log = zerolog.New(os.Stdout).With().Timestamp().Str("service", ServiceName).Logger()

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	TimeFormat string
}

// DefaultConfig returns configuration from LOG_LEVEL / LOG_FORMAT with sane defaults
func DefaultConfig() Config {
	return Config{
		Level:      getEnv("LOG_LEVEL", "info"),
		Format:     getEnv("LOG_FORMAT", "json"),
		TimeFormat: time.RFC3339,
	}
}

// Init configures the global logger
func Init(cfg Config) {
	initWriter(cfg, os.Stdout)
}

func initWriter(cfg Config, out io.Writer) {
	zerolog.TimeFieldFormat = cfg.TimeFormat
	if zerolog.TimeFieldFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: zerolog.TimeFieldFormat}
	}

	Log = zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", ServiceName).
		Logger()
}

// WithRequestID stores an HTTP request ID in the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithSessionID stores a host session ID in the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// FromContext returns a logger carrying any IDs found in ctx
func FromContext(ctx context.Context) *zerolog.Logger {
	l := Log.With()
	if v, ok := ctx.Value(RequestIDKey).(string); ok && v != "" {
		l = l.Str("request_id", v)
	}
	if v, ok := ctx.Value(SessionIDKey).(string); ok && v != "" {
		l = l.Str("session_id", v)
	}
	logger := l.Logger()
	return &logger
}

// Network returns a logger scoped to one ad network adapter
func Network(name string) *zerolog.Logger {
	logger := Log.With().Str("network", name).Logger()
	return &logger
}

// Component returns a logger scoped to a host component
func Component(name string) *zerolog.Logger {
	logger := Log.With().Str("component", name).Logger()
	return &logger
}

// getEnv returns the environment value or a default when unset or empty
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

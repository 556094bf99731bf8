// Package redis provides a pooled Redis client for reading mediation configuration
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/thenexusengine/tne_mediation/pkg/logger"
)

// ErrEmptyURL is returned when no Redis URL is configured
var ErrEmptyURL = errors.New("redis URL is empty")

// Client wraps a Redis connection pool
type Client struct {
	client *redis.Client
	addr   string
}

// ClientConfig holds configuration for the Redis client
type ClientConfig struct {
	PoolSize     int
	MinIdleConns int
	// MaxConnAge recycles connections older than this
	MaxConnAge   time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

// DefaultClientConfig returns configuration sized for a configuration reader:
// few connections, short timeouts
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		PoolSize:     10,
		MinIdleConns: 1,
		MaxConnAge:   30 * time.Minute,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// New creates a new Redis client from a URL with default configuration
func New(redisURL string) (*Client, error) {
	return NewWithConfig(redisURL, DefaultClientConfig())
}

// NewWithConfig creates a new Redis client with custom configuration. A failed
// connection test is logged, not returned; commands retry on use.
func NewWithConfig(redisURL string, cfg *ClientConfig) (*Client, error) {
	if redisURL == "" {
		return nil, ErrEmptyURL
	}
	if cfg == nil {
		cfg = DefaultClientConfig()
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.ConnMaxLifetime = cfg.MaxConnAge
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PoolTimeout = cfg.PoolTimeout

	c := &Client{client: redis.NewClient(opts), addr: opts.Addr}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	log := logger.Component("redis")
	if err := c.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("address", c.addr).Msg("Redis connection test failed")
	} else {
		log.Info().Str("address", c.addr).Int("pool_size", cfg.PoolSize).Msg("Redis connected")
	}

	return c, nil
}

// Addr returns the server address
func (c *Client) Addr() string {
	return c.addr
}

// HGet gets a hash field value. A missing field is "" with no error.
func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	result, err := c.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return result, err
}

// HGetAll gets all fields and values from a hash
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, key).Result()
}

// HSet sets a hash field value
func (c *Client) HSet(ctx context.Context, key, field string, value interface{}) error {
	return c.client.HSet(ctx, key, field, value).Err()
}

// HDel deletes hash fields
func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	return c.client.HDel(ctx, key, fields...).Err()
}

// Ping tests the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the connection pool
func (c *Client) Close() error {
	return c.client.Close()
}

// Package middleware provides HTTP middleware for the mediation admin API
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/thenexusengine/tne_mediation/internal/config"
	"github.com/thenexusengine/tne_mediation/pkg/logger"
)

// OperatorHeader carries the operator ID of an authenticated request downstream
const OperatorHeader = "X-Operator-ID"

// KeyStore looks up API keys shared through Redis. *redis.Client implements it.
type KeyStore interface {
	HGet(ctx context.Context, key, field string) (string, error)
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled     bool
	APIKeys     map[string]string // key -> operator ID (local fallback)
	HeaderName  string            // Header to check for API key (default: X-API-Key)
	BypassPaths []string          // Path prefixes that don't require auth
	UseRedis    bool              // Whether to look keys up in config.RedisAPIKeysHash
}

// DefaultAuthConfig returns configuration from ADMIN_AUTH_ENABLED, ADMIN_API_KEYS
// and ADMIN_AUTH_USE_REDIS
func DefaultAuthConfig() *AuthConfig {
	return &AuthConfig{
		Enabled:     os.Getenv("ADMIN_AUTH_ENABLED") == "true",
		APIKeys:     parseAPIKeys(os.Getenv("ADMIN_API_KEYS")),
		HeaderName:  "X-API-Key",
		BypassPaths: []string{"/health", "/metrics", "/status", "/info/"},
		UseRedis:    os.Getenv("ADMIN_AUTH_USE_REDIS") != "false",
	}
}

// parseAPIKeys parses "key1:operator1,key2:operator2"
func parseAPIKeys(envValue string) map[string]string {
	keys := make(map[string]string)
	if envValue == "" {
		return keys
	}

	for _, pair := range strings.Split(envValue, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 {
			keys[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		} else if parts[0] != "" {
			keys[parts[0]] = "default"
		}
	}
	return keys
}

// AuthMetrics receives auth failures
type AuthMetrics interface {
	IncAuthFailures()
}

// Auth provides API key authentication for admin and ad action endpoints
type Auth struct {
	config   *AuthConfig
	keyStore KeyStore
	metrics  AuthMetrics
	now      func() time.Time
	mu       sync.RWMutex

	keyCache map[string]cachedKey
	cacheMu  sync.RWMutex
}

type cachedKey struct {
	operatorID string
	expiresAt  time.Time
}

// NewAuth creates a new Auth middleware
func NewAuth(cfg *AuthConfig) *Auth {
	if cfg == nil {
		cfg = DefaultAuthConfig()
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-API-Key"
	}
	return &Auth{
		config:   cfg,
		now:      time.Now,
		keyCache: make(map[string]cachedKey),
	}
}

// SetKeyStore sets the shared key store
func (a *Auth) SetKeyStore(store KeyStore) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keyStore = store
}

// SetMetrics sets the metrics sink for auth failures
func (a *Auth) SetMetrics(m AuthMetrics) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics = m
}

// IsEnabled returns whether authentication is enabled
func (a *Auth) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Enabled
}

// Middleware returns the authentication middleware handler
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.RLock()
		enabled := a.config.Enabled
		bypassPaths := a.config.BypassPaths
		headerName := a.config.HeaderName
		a.mu.RUnlock()

		if !enabled {
			next.ServeHTTP(w, r)
			return
		}

		for _, path := range bypassPaths {
			if strings.HasPrefix(r.URL.Path, path) {
				next.ServeHTTP(w, r)
				return
			}
		}

		apiKey := r.Header.Get(headerName)
		if apiKey == "" {
			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				apiKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if apiKey == "" {
			a.recordAuthFailure()
			http.Error(w, `{"error":"missing API key"}`, http.StatusUnauthorized)
			return
		}

		operatorID, valid := a.validateKey(r.Context(), apiKey)
		if !valid {
			a.recordAuthFailure()
			http.Error(w, `{"error":"invalid API key"}`, http.StatusForbidden)
			return
		}

		r.Header.Set(OperatorHeader, operatorID)
		next.ServeHTTP(w, r)
	})
}

// validateKey resolves an API key to its operator ID: cache, then the shared
// key store, then the local keys
func (a *Auth) validateKey(ctx context.Context, key string) (string, bool) {
	if operatorID, found := a.checkCache(key); found {
		return operatorID, operatorID != ""
	}

	a.mu.RLock()
	store := a.keyStore
	useRedis := a.config.UseRedis
	a.mu.RUnlock()

	if useRedis && store != nil {
		operatorID, err := store.HGet(ctx, config.RedisAPIKeysHash, key)
		if err == nil && operatorID != "" {
			a.updateCache(key, operatorID)
			return operatorID, true
		}
		if err != nil {
			logger.Component("auth").Debug().Err(err).Msg("Shared API key lookup failed, falling back to local keys")
		}
	}

	// mu is released before updateCache so locks are always taken mu then cacheMu
	var operatorID string
	var found bool

	a.mu.RLock()
	for validKey, id := range a.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			operatorID = id
			found = true
			break
		}
	}
	a.mu.RUnlock()

	if found {
		a.updateCache(key, operatorID)
		return operatorID, true
	}

	a.updateCache(key, "")
	return "", false
}

func (a *Auth) checkCache(key string) (string, bool) {
	a.cacheMu.RLock()
	defer a.cacheMu.RUnlock()

	cached, exists := a.keyCache[key]
	if !exists || a.now().After(cached.expiresAt) {
		return "", false
	}
	return cached.operatorID, true
}

func (a *Auth) updateCache(key, operatorID string) {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()

	timeout := config.AuthCacheTimeout
	if operatorID == "" {
		timeout = config.AuthNegativeCacheTimeout
	}
	a.keyCache[key] = cachedKey{
		operatorID: operatorID,
		expiresAt:  a.now().Add(timeout),
	}
}

// ClearCache clears the API key cache
func (a *Auth) ClearCache() {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	a.keyCache = make(map[string]cachedKey)
}

func (a *Auth) recordAuthFailure() {
	a.mu.RLock()
	m := a.metrics
	a.mu.RUnlock()
	if m != nil {
		m.IncAuthFailures()
	}
}

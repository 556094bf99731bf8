package middleware

import (
	"net/http"

	"github.com/thenexusengine/tne_mediation/internal/config"
)

// SizeLimitConfig holds request size limit configuration
type SizeLimitConfig struct {
	MaxBodySize  int64
	MaxURLLength int
}

// DefaultSizeLimitConfig returns the admin API limits
func DefaultSizeLimitConfig() *SizeLimitConfig {
	return &SizeLimitConfig{
		MaxBodySize:  config.DefaultMaxBodySize,
		MaxURLLength: config.DefaultMaxURLLength,
	}
}

// SizeLimiter rejects oversized requests and caps body reads
type SizeLimiter struct {
	config SizeLimitConfig
}

// NewSizeLimiter creates a new size limiter
func NewSizeLimiter(cfg *SizeLimitConfig) *SizeLimiter {
	if cfg == nil {
		cfg = DefaultSizeLimitConfig()
	}
	return &SizeLimiter{config: *cfg}
}

// Middleware returns the size limiting middleware handler
func (sl *SizeLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.URL.String()) > sl.config.MaxURLLength {
			http.Error(w, `{"error":"URL too long"}`, http.StatusRequestURITooLong)
			return
		}

		if r.ContentLength > sl.config.MaxBodySize {
			http.Error(w, `{"error":"request body too large"}`, http.StatusRequestEntityTooLarge)
			return
		}

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, sl.config.MaxBodySize)
		}

		next.ServeHTTP(w, r)
	})
}

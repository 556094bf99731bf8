package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/thenexusengine/tne_mediation/internal/endpoints"
	"github.com/thenexusengine/tne_mediation/pkg/logger"
)

// healthHandler returns a simple liveness check
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoints.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   "1.0.0",
		})
	})
}

// readyHandler returns a readiness check with dependency verification
func (s *Server) readyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]interface{})
		allHealthy := true

		check := func(name string, enabled bool, ping func(context.Context) error) {
			if !enabled {
				checks[name] = map[string]interface{}{"status": "disabled"}
				return
			}
			if err := ping(ctx); err != nil {
				checks[name] = map[string]interface{}{"status": "unhealthy", "error": err.Error()}
				allHealthy = false
				return
			}
			checks[name] = map[string]interface{}{"status": "healthy"}
		}

		check("redis", s.redisClient != nil, func(ctx context.Context) error { return s.redisClient.Ping(ctx) })
		check("postgres", s.db != nil, func(ctx context.Context) error { return s.db.PingContext(ctx) })
		check("mediator", true, func(ctx context.Context) error { return s.mediator.Do(ctx, func() {}) })

		status := http.StatusOK
		if !allHealthy {
			status = http.StatusServiceUnavailable
		}
		endpoints.WriteJSON(w, status, map[string]interface{}{
			"ready":     allHealthy,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		})
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests with structured logging
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := logger.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		log := logger.FromContext(ctx)
		event := log.Info()
		if wrapped.statusCode >= 400 {
			event = log.Warn()
		}
		if wrapped.statusCode >= 500 {
			event = log.Error()
		}

		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration_ms", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}

// Package endpoints provides HTTP endpoint handlers for the mediation host
package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/thenexusengine/tne_mediation/internal/mediation"
	"github.com/thenexusengine/tne_mediation/internal/mediator"
	"github.com/thenexusengine/tne_mediation/pkg/logger"
)

// Host is the mediation runtime behind the handlers. *mediator.Mediator implements it.
type Host interface {
	Prepare(ctx context.Context, network string, adType mediation.AdType, name, placement string) error
	Show(ctx context.Context, network string, adType mediation.AdType, name, placement string) (bool, error)
	Hide(ctx context.Context, network string, adType mediation.AdType, name string) error
	IsReady(ctx context.Context, network string, adType mediation.AdType, name string) (bool, error)
	SetPersonalizedAds(ctx context.Context, personalized bool) error
	SetApplicationPaused(ctx context.Context, paused bool) error
	Status(ctx context.Context) ([]mediator.NetworkStatus, error)
	Networks() []string
}

// ErrorResponse is a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StatusForError maps mediator errors to HTTP status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, mediator.ErrUnknownNetwork), errors.Is(err, mediator.ErrInstanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, mediator.ErrUnsupportedAdType):
		return http.StatusBadRequest
	case errors.Is(err, mediator.ErrAdapterDisabled):
		return http.StatusConflict
	case errors.Is(err, mediator.ErrBackoffActive):
		return http.StatusTooManyRequests
	case errors.Is(err, mediator.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorCode is the short machine-readable error for a status
func errorCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusConflict:
		return "network_disabled"
	case http.StatusTooManyRequests:
		return "cooldown_active"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusGatewayTimeout:
		return "timeout"
	default:
		return "internal_error"
	}
}

// WriteJSON writes v as a JSON response
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error().Err(err).Msg("failed to encode response")
	}
}

func sendError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: errorCode(status), Message: message})
}

func sendHostError(w http.ResponseWriter, err error) {
	sendError(w, StatusForError(err), err.Error())
}

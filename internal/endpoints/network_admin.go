package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/thenexusengine/tne_mediation/internal/storage"
	"github.com/thenexusengine/tne_mediation/pkg/logger"
)

// NetworkWriter stores network documents. *storage.RedisSource implements it.
type NetworkWriter interface {
	Put(ctx context.Context, doc *storage.NetworkDocument) error
}

// NetworkToggler enables and disables stored networks. *storage.NetworkStore implements it.
type NetworkToggler interface {
	SetEnabled(ctx context.Context, network string, enabled bool) error
}

// NetworkAdminHandler edits stored network configuration. Changes apply on the
// next start.
// Routes:
//
//	PUT /admin/networks/{network}          - Store a network document (Redis)
//	PUT /admin/networks/{network}/enabled  - Enable or disable a network (PostgreSQL)
type NetworkAdminHandler struct {
	writer  NetworkWriter
	toggler NetworkToggler
}

// NewNetworkAdminHandler creates a network admin handler. Either store may be nil.
func NewNetworkAdminHandler(writer NetworkWriter, toggler NetworkToggler) *NetworkAdminHandler {
	return &NetworkAdminHandler{writer: writer, toggler: toggler}
}

// Register adds the handler's routes to mux
func (h *NetworkAdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("PUT /admin/networks/{network}", h.PutNetwork)
	mux.HandleFunc("PUT /admin/networks/{network}/enabled", h.SetEnabled)
}

// PutNetwork stores a network document
func (h *NetworkAdminHandler) PutNetwork(w http.ResponseWriter, r *http.Request) {
	if h.writer == nil {
		sendError(w, http.StatusServiceUnavailable, "network documents require a Redis connection")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := storage.DecodeNetworkDocument(data)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	network := r.PathValue("network")
	if doc.Network == "" {
		doc.Network = network
	}
	if doc.Network != network {
		sendError(w, http.StatusBadRequest, "network name does not match path")
		return
	}
	if _, err := doc.NetworkConfig(); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.writer.Put(r.Context(), doc); err != nil {
		logger.Log.Error().Err(err).Str("network", network).Msg("Failed to store network document")
		sendError(w, http.StatusInternalServerError, "failed to store network")
		return
	}

	logger.Log.Info().Str("network", network).Bool("enabled", doc.Enabled).Msg("Network document stored")
	WriteJSON(w, http.StatusOK, doc)
}

// SetEnabled toggles a stored network
func (h *NetworkAdminHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	if h.toggler == nil {
		sendError(w, http.StatusServiceUnavailable, "enabling networks requires a database connection")
		return
	}

	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		sendError(w, http.StatusBadRequest, `body must be {"enabled": bool}`)
		return
	}

	network := r.PathValue("network")
	if err := h.toggler.SetEnabled(r.Context(), network, *body.Enabled); err != nil {
		if errors.Is(err, storage.ErrNetworkNotFound) {
			sendError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.Log.Error().Err(err).Str("network", network).Msg("Failed to toggle network")
		sendError(w, http.StatusInternalServerError, "failed to update network")
		return
	}

	logger.Log.Info().Str("network", network).Bool("enabled", *body.Enabled).Msg("Network toggled")
	WriteJSON(w, http.StatusOK, map[string]interface{}{"network": network, "enabled": *body.Enabled})
}

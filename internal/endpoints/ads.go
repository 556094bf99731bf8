package endpoints

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/thenexusengine/tne_mediation/internal/config"
	"github.com/thenexusengine/tne_mediation/internal/mediation"
)

// AdResponse is returned by the ad action endpoints
type AdResponse struct {
	Network  string `json:"network"`
	AdType   string `json:"ad_type"`
	Instance string `json:"instance"`
	Ready    *bool  `json:"ready,omitempty"`
	Shown    *bool  `json:"shown,omitempty"`
}

// AdHandler drives ad instances through the host.
// Routes:
//
//	POST /v1/networks/{network}/{adType}/prepare?instance=&placement=
//	POST /v1/networks/{network}/{adType}/show?instance=&placement=
//	POST /v1/networks/{network}/{adType}/hide?instance=
//	GET  /v1/networks/{network}/{adType}/ready?instance=
//	POST /v1/consent {"personalized": bool}
//	POST /v1/pause   {"paused": bool}
type AdHandler struct {
	host Host
}

// NewAdHandler creates an ad action handler
func NewAdHandler(host Host) *AdHandler {
	return &AdHandler{host: host}
}

// Register adds the handler's routes to mux
func (h *AdHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/networks/{network}/{adType}/prepare", withCommandTimeout(h.Prepare))
	mux.HandleFunc("POST /v1/networks/{network}/{adType}/show", withCommandTimeout(h.Show))
	mux.HandleFunc("POST /v1/networks/{network}/{adType}/hide", withCommandTimeout(h.Hide))
	mux.HandleFunc("GET /v1/networks/{network}/{adType}/ready", withCommandTimeout(h.Ready))
	mux.HandleFunc("POST /v1/consent", withCommandTimeout(h.Consent))
	mux.HandleFunc("POST /v1/pause", withCommandTimeout(h.Pause))
}

// withCommandTimeout bounds how long a request waits for the tick loop
func withCommandTimeout(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), config.CommandTimeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

// adTarget is the network, ad type and instance addressed by a request
type adTarget struct {
	network   string
	adType    mediation.AdType
	instance  string
	placement string
}

func parseAdTarget(r *http.Request) (adTarget, bool) {
	t := adTarget{
		network:   r.PathValue("network"),
		adType:    mediation.ParseAdType(r.PathValue("adType")),
		instance:  r.URL.Query().Get("instance"),
		placement: r.URL.Query().Get("placement"),
	}
	if t.instance == "" {
		t.instance = mediation.DefaultInstanceName
	}
	return t, t.adType != mediation.AdTypeUnknown
}

func (t adTarget) response() AdResponse {
	return AdResponse{Network: t.network, AdType: t.adType.String(), Instance: t.instance}
}

func unknownAdType(w http.ResponseWriter, r *http.Request) {
	sendError(w, http.StatusBadRequest, "unknown ad type "+r.PathValue("adType"))
}

// Prepare requests a load
func (h *AdHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	t, ok := parseAdTarget(r)
	if !ok {
		unknownAdType(w, r)
		return
	}
	if err := h.host.Prepare(r.Context(), t.network, t.adType, t.instance, t.placement); err != nil {
		sendHostError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, t.response())
}

// Show displays an instance if it is ready
func (h *AdHandler) Show(w http.ResponseWriter, r *http.Request) {
	t, ok := parseAdTarget(r)
	if !ok {
		unknownAdType(w, r)
		return
	}
	shown, err := h.host.Show(r.Context(), t.network, t.adType, t.instance, t.placement)
	if err != nil {
		sendHostError(w, err)
		return
	}
	resp := t.response()
	resp.Shown = &shown
	WriteJSON(w, http.StatusOK, resp)
}

// Hide hides an instance
func (h *AdHandler) Hide(w http.ResponseWriter, r *http.Request) {
	t, ok := parseAdTarget(r)
	if !ok {
		unknownAdType(w, r)
		return
	}
	if err := h.host.Hide(r.Context(), t.network, t.adType, t.instance); err != nil {
		sendHostError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, t.response())
}

// Ready reports whether an instance can be shown now
func (h *AdHandler) Ready(w http.ResponseWriter, r *http.Request) {
	t, ok := parseAdTarget(r)
	if !ok {
		unknownAdType(w, r)
		return
	}
	ready, err := h.host.IsReady(r.Context(), t.network, t.adType, t.instance)
	if err != nil {
		sendHostError(w, err)
		return
	}
	resp := t.response()
	resp.Ready = &ready
	WriteJSON(w, http.StatusOK, resp)
}

// Consent forwards the personalized-ads consent to every network
func (h *AdHandler) Consent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Personalized *bool `json:"personalized"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Personalized == nil {
		sendError(w, http.StatusBadRequest, `body must be {"personalized": bool}`)
		return
	}
	if err := h.host.SetPersonalizedAds(r.Context(), *body.Personalized); err != nil {
		sendHostError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"personalized": *body.Personalized})
}

// Pause forwards application pause and resume to every network
func (h *AdHandler) Pause(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Paused *bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Paused == nil {
		sendError(w, http.StatusBadRequest, `body must be {"paused": bool}`)
		return
	}
	if err := h.host.SetApplicationPaused(r.Context(), *body.Paused); err != nil {
		sendHostError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"paused": *body.Paused})
}

package endpoints

import (
	"net/http"
	"time"

	"github.com/thenexusengine/tne_mediation/internal/adapters"
)

// StatusHandler serves a snapshot of every registered network
type StatusHandler struct {
	host Host
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(host Host) *StatusHandler {
	return &StatusHandler{host: host}
}

// ServeHTTP handles status requests
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	networks, err := h.host.Status(r.Context())
	if err != nil {
		sendHostError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"networks":  networks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// NetworkInfo describes one network binding compiled into the binary
type NetworkInfo struct {
	Name       string   `json:"name"`
	Enabled    bool     `json:"enabled"`
	AdTypes    []string `json:"ad_types"`
	SDKVersion string   `json:"sdk_version,omitempty"`
	Registered bool     `json:"registered"`
}

// InfoNetworksHandler lists the available network bindings
type InfoNetworksHandler struct {
	registry   *adapters.Registry
	host       Host
	sdkVersion func() string
}

// NewInfoNetworksHandler creates a network info handler. sdkVersion reports
// the version of the SDK backing registered networks that declare none.
func NewInfoNetworksHandler(registry *adapters.Registry, host Host, sdkVersion func() string) *InfoNetworksHandler {
	return &InfoNetworksHandler{registry: registry, host: host, sdkVersion: sdkVersion}
}

// ServeHTTP handles network info requests
func (h *InfoNetworksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	registered := make(map[string]bool)
	for _, name := range h.host.Networks() {
		registered[name] = true
	}

	out := make([]NetworkInfo, 0)
	for _, name := range h.registry.ListNetworks() {
		n, ok := h.registry.Get(name)
		if !ok {
			continue
		}
		info := NetworkInfo{
			Name:       name,
			Enabled:    n.Info.Enabled,
			AdTypes:    make([]string, 0, len(n.Info.AdTypes)),
			SDKVersion: n.Info.SDKVersion,
			Registered: registered[name],
		}
		if info.SDKVersion == "" && info.Registered && h.sdkVersion != nil {
			info.SDKVersion = h.sdkVersion()
		}
		for _, t := range n.Info.AdTypes {
			info.AdTypes = append(info.AdTypes, t.String())
		}
		out = append(out, info)
	}
	WriteJSON(w, http.StatusOK, out)
}

package controller

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	store   Pinger
	backend string
	missing []string
}

// NewHealthController reports on the status store and on the provider
// credentials; missing lists the credential variables that were not set or
// could not be used.
func NewHealthController(store Pinger, backend string, missing []string) *HealthController {
	return &HealthController{store: store, backend: backend, missing: missing}
}

type HealthResponse struct {
	Status  string   `json:"status"`
	Store   string   `json:"store,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Store: h.backend}
	if len(h.missing) > 0 {
		resp.Status = "degraded"
		resp.Missing = h.missing
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	if len(h.missing) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "not ready",
			Reason:  "provider credentials missing or invalid",
			Missing: h.missing,
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status: "not ready",
				Store:  h.backend,
				Reason: "status store unavailable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "ready", Store: h.backend})
}

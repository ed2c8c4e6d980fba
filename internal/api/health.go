package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger is satisfied by every docstore backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store   Pinger
	backend string
	env     string
	version string
}

func NewHealthHandler(store Pinger, backend, env, version string) *HealthHandler {
	return &HealthHandler{
		store:   store,
		backend: backend,
		env:     env,
		version: version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	deps := map[string]string{h.backend: "ok"}
	if err := h.store.Ping(ctx); err != nil {
		deps[h.backend] = "down"
		status = "error"
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	})
}

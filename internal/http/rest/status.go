// Package rest exposes the service's liveness and metrics endpoints.
package rest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/restricted_saver/internal/logctx"
	"github.com/italolelis/restricted_saver/internal/telemetry"
)

// StatusHandler serves the liveness probe and Prometheus scrape endpoint.
type StatusHandler struct {
	tel *telemetry.Telemetry
}

func NewStatusHandler(tel *telemetry.Telemetry) *StatusHandler {
	return &StatusHandler{tel: tel}
}

func (h *StatusHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.root)
	r.Get("/health", h.health)

	if h.tel != nil {
		r.Method(http.MethodGet, "/metrics", h.tel.Handler())
	}

	return r
}

func (h *StatusHandler) root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("bot working fine"))
}

func (h *StatusHandler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to write health response", "err", err)
	}
}

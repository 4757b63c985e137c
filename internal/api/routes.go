package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes attaches all admin routes to mux.
// Keeping this separate from handlers.go means the full route surface
// is visible at a glance without scrolling through handler logic.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Liveness
	mux.Handle("GET /healthz", withRequestID(http.HandlerFunc(h.Healthz)))

	// Observability over the store, cache and search projection
	mux.Handle("GET /api/stats", withRequestID(http.HandlerFunc(h.Stats)))
	mux.Handle("GET /api/search", withRequestID(http.HandlerFunc(h.Search)))

	// Metrics — left unwrapped; scrape traffic doesn't need a request ID.
	mux.Handle("GET /metrics", promhttp.Handler())
}

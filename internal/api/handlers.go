// Package api is the admin HTTP surface: a read-only view over the store,
// the entity cache and the search projection. It never touches AMQP — the
// probe's correctness never depends on this package, and no handler here
// may import internal/amqp.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"go-polyglot-persistence/internal/store"
)

// EntityCache is the recent-entity read contract.
type EntityCache interface {
	Recent(ctx context.Context, n int) ([]store.Identity, error)
}

// EntitySearch is the full-text search contract.
type EntitySearch interface {
	SearchEntities(ctx context.Context, term string) (json.RawMessage, error)
}

// Store is the aggregate-counts contract, and also backs the health check.
type Store interface {
	EntityCounts(ctx context.Context) (distinct int64, total int64, err error)
}

// Handler holds every dependency the admin HTTP layer needs. Cache and
// Search may be nil: a nil Search makes /api/search answer 503, and a nil
// Cache makes /api/stats omit its recent identities.
type Handler struct {
	Store  Store
	Cache  EntityCache
	Search EntitySearch
}

// Healthz — GET /healthz
//
// Liveness probe: confirms the store responds within a short timeout.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if _, _, err := h.Store.EntityCounts(ctx); err != nil {
		slog.Error("healthz failed", "component", "admin_api", "request_id", requestID(ctx), "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok\n"))
}

type statsResponse struct {
	DistinctEntities  int64            `json:"distinct_entities"`
	TotalObservations int64            `json:"total_observations"`
	Recent            []store.Identity `json:"recent,omitempty"`
}

// Stats — GET /api/stats
//
// Reports aggregate observation counts plus, when the entity cache is
// configured, the most recently observed identities.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	distinct, total, err := h.Store.EntityCounts(ctx)
	if err != nil {
		slog.Error("stats query failed", "component", "admin_api", "request_id", requestID(ctx), "error", err)
		http.Error(w, "failed to fetch stats", http.StatusInternalServerError)
		return
	}

	resp := statsResponse{DistinctEntities: distinct, TotalObservations: total}

	if h.Cache != nil {
		recent, err := h.Cache.Recent(ctx, 20)
		if err != nil {
			slog.Error("recent entities lookup failed", "component", "admin_api", "request_id", requestID(ctx), "error", err)
		} else {
			resp.Recent = recent
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Search — GET /api/search?q=
//
// Proxies a full-text match over indexed payload bodies to Elasticsearch.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.Search == nil {
		http.Error(w, "search backend not configured", http.StatusServiceUnavailable)
		return
	}

	term := r.URL.Query().Get("q")
	if term == "" {
		http.Error(w, "missing required query parameter: q", http.StatusBadRequest)
		return
	}

	result, err := h.Search.SearchEntities(r.Context(), term)
	if err != nil {
		slog.Error("search failed", "component", "admin_api", "request_id", requestID(r.Context()), "term", term, "error", err)
		http.Error(w, "search engine error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(result)
}

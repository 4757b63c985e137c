package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go-polyglot-persistence/internal/store"
)

type fakeStore struct {
	distinct, total int64
	err             error
}

func (f *fakeStore) EntityCounts(ctx context.Context) (int64, int64, error) {
	return f.distinct, f.total, f.err
}

type fakeCache struct {
	recent []store.Identity
	err    error
}

func (f *fakeCache) Recent(ctx context.Context, n int) ([]store.Identity, error) {
	return f.recent, f.err
}

type fakeSearch struct {
	result json.RawMessage
	err    error
}

func (f *fakeSearch) SearchEntities(ctx context.Context, term string) (json.RawMessage, error) {
	return f.result, f.err
}

func TestHealthzOK(t *testing.T) {
	h := &Handler{Store: &fakeStore{distinct: 1, total: 2}}

	w := httptest.NewRecorder()
	h.Healthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHealthzFailsWhenStoreErrors(t *testing.T) {
	h := &Handler{Store: &fakeStore{err: errors.New("connection refused")}}

	w := httptest.NewRecorder()
	h.Healthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestStatsIncludesRecentWhenCacheConfigured(t *testing.T) {
	recent := []store.Identity{{ID: 1, VHost: "/", Exchange: "amq.topic", RoutingKey: "rk"}}
	h := &Handler{
		Store: &fakeStore{distinct: 5, total: 10},
		Cache: &fakeCache{recent: recent},
	}

	w := httptest.NewRecorder()
	h.Stats(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp statsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.DistinctEntities != 5 || resp.TotalObservations != 10 {
		t.Fatalf("unexpected counts: %+v", resp)
	}
	if len(resp.Recent) != 1 || resp.Recent[0] != recent[0] {
		t.Fatalf("expected recent identities to be included, got %+v", resp.Recent)
	}
}

func TestStatsOmitsRecentWhenCacheNil(t *testing.T) {
	h := &Handler{Store: &fakeStore{distinct: 5, total: 10}}

	w := httptest.NewRecorder()
	h.Stats(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	var resp statsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Recent != nil {
		t.Fatalf("expected no recent field without a configured cache, got %+v", resp.Recent)
	}
}

func TestStatsDegradesGracefullyWhenCacheErrors(t *testing.T) {
	h := &Handler{
		Store: &fakeStore{distinct: 1, total: 1},
		Cache: &fakeCache{err: errors.New("redis down")},
	}

	w := httptest.NewRecorder()
	h.Stats(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected the stats endpoint to still succeed without recent entities, got %d", w.Code)
	}
}

func TestStatsFailsWhenStoreErrors(t *testing.T) {
	h := &Handler{Store: &fakeStore{err: errors.New("db down")}}

	w := httptest.NewRecorder()
	h.Stats(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestSearchRequiresQueryParam(t *testing.T) {
	h := &Handler{Search: &fakeSearch{}}

	w := httptest.NewRecorder()
	h.Search(w, httptest.NewRequest(http.MethodGet, "/api/search", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing q param, got %d", w.Code)
	}
}

func TestSearchReturns503WhenUnconfigured(t *testing.T) {
	h := &Handler{}

	w := httptest.NewRecorder()
	h.Search(w, httptest.NewRequest(http.MethodGet, "/api/search?q=foo", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when search is not configured, got %d", w.Code)
	}
}

func TestSearchProxiesResult(t *testing.T) {
	h := &Handler{Search: &fakeSearch{result: json.RawMessage(`{"hits":{"total":1}}`)}}

	w := httptest.NewRecorder()
	h.Search(w, httptest.NewRequest(http.MethodGet, "/api/search?q=foo", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != `{"hits":{"total":1}}` {
		t.Fatalf("expected the raw ES response to be proxied verbatim, got %q", w.Body.String())
	}
}

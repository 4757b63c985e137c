package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestIDSetsHeaderAndContext(t *testing.T) {
	var sawID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawID = requestID(r.Context())
	})

	w := httptest.NewRecorder()
	withRequestID(inner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	header := w.Header().Get("X-Request-Id")
	if header == "" {
		t.Fatalf("expected X-Request-Id header to be set")
	}
	if sawID != header {
		t.Fatalf("expected the inner handler's context id %q to match the response header %q", sawID, header)
	}
}

func TestWithRequestIDAssignsDistinctIDsPerRequest(t *testing.T) {
	seen := map[string]struct{}{}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen[requestID(r.Context())] = struct{}{}
	})
	wrapped := withRequestID(inner)

	for i := 0; i < 3; i++ {
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	}

	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct request ids, got %d", len(seen))
	}
}

func TestRequestIDEmptyWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	if id := requestID(req.Context()); id != "" {
		t.Fatalf("expected no request id on a bare context, got %q", id)
	}
}

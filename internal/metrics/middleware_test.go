package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/runs/{id}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/v1/runs", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	okBefore := testutil.ToFloat64(opsRequestsTotal.WithLabelValues("GET", "/v1/runs/{id}", "200"))
	conflictBefore := testutil.ToFloat64(opsRequestsTotal.WithLabelValues("POST", "/v1/runs", "409"))
	missBefore := testutil.ToFloat64(opsRequestsTotal.WithLabelValues("GET", "unmatched", "404"))

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/v1/runs/run-1", nil),
		httptest.NewRequest(http.MethodGet, "/v1/runs/run-2", nil),
		httptest.NewRequest(http.MethodPost, "/v1/runs", nil),
		httptest.NewRequest(http.MethodGet, "/nowhere", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, okBefore+2, testutil.ToFloat64(opsRequestsTotal.WithLabelValues("GET", "/v1/runs/{id}", "200")),
		"implicit 200 is recorded under the pattern, not the path")
	assert.Equal(t, conflictBefore+1, testutil.ToFloat64(opsRequestsTotal.WithLabelValues("POST", "/v1/runs", "409")))
	assert.Equal(t, missBefore+1, testutil.ToFloat64(opsRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	assert.Positive(t, testutil.CollectAndCount(opsRequestDurationSeconds))
}

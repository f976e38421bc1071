package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-FPIndex/internal/application/indexing"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/chemistry"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/index/local"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-FPIndex/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-FPIndex/internal/interfaces/http/middleware"
)

const testAPIKey = "test-key"

func newTestRouter(t *testing.T) (http.Handler, prometheus.MetricsCollector) {
	t.Helper()
	s := fingerprint.DefaultSettings(fingerprint.AlgorithmPattern)
	factory, err := fingerprint.NewFactory(chemistry.NewToolkit(nil), fingerprint.NewRegistry(), s, s)
	require.NoError(t, err)

	idx, err := local.Open(filepath.Join(t.TempDir(), "index"), s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "router"}, nil)
	require.NoError(t, err)
	metrics := prometheus.NewFPMetrics(collector)

	svc, err := indexing.NewService(factory, idx, idx, nil,
		indexing.WithLocalIndex(idx), indexing.WithMetrics(metrics), indexing.WithHitLimits(10, 50))
	require.NoError(t, err)

	return NewRouter(RouterConfig{
		SearchHandler: handlers.NewSearchHandler(svc, nil, 0),
		IndexHandler:  handlers.NewIndexHandler(svc, nil, nil, 0),
		HealthHandler: handlers.NewHealthHandler("test", metrics, handlers.CheckFunc{
			Component: "index",
			Fn:        func(ctx context.Context) error { _, err := idx.NumDocs(ctx); return err },
		}),
		APIKeyAuth:       middleware.NewAPIKeyAuth([]string{testAPIKey}, nil),
		RateLimiter:      middleware.NewRateLimiter(middleware.RateLimitConfig{}),
		Metrics:          metrics,
		MetricsCollector: collector,
	}), collector
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authorized {
		req.Header.Set("X-API-Key", testAPIKey)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_IndexAndSearch(t *testing.T) {
	h, _ := newTestRouter(t)

	for _, m := range []map[string]interface{}{
		{"id": "ethanol", "structure": "CCO"},
		{"id": "propanol", "structure": "CCCO", "properties": map[string]string{"source": "test"}},
	} {
		w := do(t, h, http.MethodPost, "/api/v1/index/molecules", m, true)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := do(t, h, http.MethodPost, "/api/v1/search/substructure", map[string]interface{}{"query": "CCO"}, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res indexing.SearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 2, res.TotalHits)
	assert.Positive(t, res.Query.Count)

	w = do(t, h, http.MethodDelete, "/api/v1/index/molecules/ethanol", nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/index/stats", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var st indexing.IndexStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 1, st.Docs)
}

func TestRouter_Fingerprint(t *testing.T) {
	h, _ := newTestRouter(t)

	w := do(t, h, http.MethodPost, "/api/v1/fingerprints", map[string]string{"structure": "OCC", "kind": "query"}, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res indexing.FingerprintResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "query", res.Kind)
	assert.Equal(t, len(res.Positions), res.Query.Count)
}

func TestRouter_ErrorMapping(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"parse failure", "/api/v1/fingerprints", map[string]string{"structure": "C1CC"}, http.StatusBadRequest, "FP_006"},
		{"absent fingerprint", "/api/v1/fingerprints", map[string]string{"structure": "C*"}, http.StatusUnprocessableEntity, "FP_003"},
		{"unknown kind", "/api/v1/fingerprints", map[string]string{"structure": "CCO", "kind": "other"}, http.StatusBadRequest, "COMMON_002"},
		{"unknown field", "/api/v1/search/substructure", map[string]string{"smiles": "CCO"}, http.StatusBadRequest, "COMMON_002"},
		{"too many hits", "/api/v1/search/substructure", map[string]interface{}{"query": "CCO", "max_hits": 51}, http.StatusBadRequest, "COMMON_002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.path, tt.body, false)
			assert.Equal(t, tt.status, w.Code)
			var resp handlers.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestRouter_WritesRequireAPIKey(t *testing.T) {
	h, _ := newTestRouter(t)

	w := do(t, h, http.MethodPost, "/api/v1/index/molecules", map[string]string{"id": "m", "structure": "CCO"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/index/stats", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_BatchReportsSkipped(t *testing.T) {
	h, _ := newTestRouter(t)

	w := do(t, h, http.MethodPost, "/api/v1/index/batch", map[string]interface{}{
		"molecules": []map[string]string{
			{"id": "a", "structure": "CCO"},
			{"id": "b", "structure": "C1CC"},
		},
	}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res indexing.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Indexed)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "b", res.Skipped[0].ID)

	w = do(t, h, http.MethodPost, "/api/v1/index/batch", map[string]interface{}{"molecules": []interface{}{}}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_UnconfiguredFeatures(t *testing.T) {
	h, _ := newTestRouter(t)

	w := do(t, h, http.MethodPost, "/api/v1/index/rebuild", nil, true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/index/snapshots", nil, true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	h, _ := newTestRouter(t)

	w := do(t, h, http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"alive"`)

	w = do(t, h, http.MethodGet, "/readyz", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"index"`)

	do(t, h, http.MethodPost, "/api/v1/fingerprints", map[string]string{"structure": "CCO"}, false)
	w = do(t, h, http.MethodGet, "/metrics", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `route="/api/v1/fingerprints"`), body)
	assert.Contains(t, body, "router_fingerprints_total")
	assert.Contains(t, body, `router_health_check_status{component="index"} 1`)
}

func TestRouter_NilHandlers(t *testing.T) {
	h := NewRouter(RouterConfig{})
	w := do(t, h, http.MethodPost, "/api/v1/search/substructure", map[string]string{"query": "CCO"}, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

//Personal.AI order the ending

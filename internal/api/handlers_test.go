package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miragesec/mirage/internal/metrics"
	"github.com/miragesec/mirage/internal/state"
)

func newTestAPI(t *testing.T) (*APIServer, string) {
	t.Helper()
	dir := t.TempDir()
	return NewAPIServer("127.0.0.1:0", state.NewStore(dir), metrics.New()), dir
}

func doGet(t *testing.T, srv *APIServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	srv, _ := newTestAPI(t)

	rr := doGet(t, srv, "/api/health")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestStatsReflectsCounters(t *testing.T) {
	srv, _ := newTestAPI(t)
	srv.metrics.Proxied()
	srv.metrics.Proxied()
	srv.metrics.DecoyServed("fake_credentials")

	rr := doGet(t, srv, "/api/stats")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Status        string           `json:"status"`
		UptimeSeconds int64            `json:"uptime_seconds"`
		Requests      map[string]int64 `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, int64(2), body.Requests["proxied"])
	assert.Equal(t, int64(1), body.Requests["decoys_served"])
}

func TestDeceptionsListsRegistryWithoutContent(t *testing.T) {
	srv, dir := newTestAPI(t)

	registry := `{
		"endpoints": {
			"/.env": {"response_type": "fake_credentials", "content": "DB_PASSWORD=hunter2", "content_type": "text/plain"},
			"/admin": {"response_type": "fake_admin_panel", "content": "<html></html>", "content_type": "text/html"}
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, state.DeceptionsFile), []byte(registry), 0o644))

	rr := doGet(t, srv, "/api/deceptions")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Status    string              `json:"status"`
		Count     int                 `json:"count"`
		Endpoints []map[string]string `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Endpoints, 2)

	byPath := map[string]map[string]string{}
	for _, ep := range body.Endpoints {
		byPath[ep["endpoint"]] = ep
	}
	require.Contains(t, byPath, "/.env")
	assert.Equal(t, "fake_credentials", byPath["/.env"]["response_type"])
	assert.Equal(t, "text/plain", byPath["/.env"]["content_type"])
	_, leaked := byPath["/.env"]["content"]
	assert.False(t, leaked, "decoy content must not be exposed")
}

func TestDeceptionsEmptyWhenNoRegistry(t *testing.T) {
	srv, _ := newTestAPI(t)

	rr := doGet(t, srv, "/api/deceptions")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Count     int                 `json:"count"`
		Endpoints []map[string]string `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Zero(t, body.Count)
	assert.Empty(t, body.Endpoints)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestAPI(t)
	srv.metrics.DecoyServed("honeytoken")

	rr := doGet(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "mirage_decoys_served_total")
}

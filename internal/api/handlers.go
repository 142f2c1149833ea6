package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/miragesec/mirage/internal/metrics"
	"github.com/miragesec/mirage/internal/state"
)

// APIServer exposes read-only operator endpoints: health, counters and the
// currently registered decoy endpoints. It listens on its own address and
// is never reachable through the proxy port.
type APIServer struct {
	listenAddr string
	store      *state.Store
	metrics    *metrics.Metrics
	started    time.Time
}

func NewAPIServer(listenAddr string, store *state.Store, m *metrics.Metrics) *APIServer {
	return &APIServer{
		listenAddr: listenAddr,
		store:      store,
		metrics:    m,
		started:    time.Now(),
	}
}

func (s *APIServer) Start() error {
	return http.ListenAndServe(s.listenAddr, s.Router())
}

// Router builds the admin route table.
func (s *APIServer) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/health", s.corsMiddleware(s.handleHealth)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/stats", s.corsMiddleware(s.handleStats)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/deceptions", s.corsMiddleware(s.handleDeceptions)).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	return r
}

func (s *APIServer) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"requests":       s.metrics.Snapshot(),
	})
}

// handleDeceptions lists the registered decoy endpoints and their response
// types from a fresh registry read. Decoy content is deliberately withheld.
func (s *APIServer) handleDeceptions(w http.ResponseWriter, r *http.Request) {
	registry := s.store.LoadDeceptions()

	endpoints := make([]map[string]string, 0, len(registry))
	for path, rec := range registry {
		endpoints = append(endpoints, map[string]string{
			"endpoint":      path,
			"response_type": rec.ResponseType,
			"content_type":  rec.ContentType,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"count":     len(endpoints),
		"endpoints": endpoints,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

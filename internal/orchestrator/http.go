package orchestrator

import (
	"encoding/json"
	"net/http"
)

// HealthHandler serves 200 "ok" while the supervisor is healthy and 503
// once every source is failing on storage.
func (s *Supervisor) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Healthy() {
			http.Error(w, "storage unavailable for all sources", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// StatsHandler serves the supervisor counters as JSON.
func (s *Supervisor) StatsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.Stats())
	})
}

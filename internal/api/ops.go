package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type opsStatus struct {
	Status   string `json:"status"`
	InFlight int64  `json:"in_flight"`
	Capacity int64  `json:"capacity"`
}

// NewOpsRouter serves liveness and readiness probes on a separate listener so
// probes are never queued behind estimation traffic.
func NewOpsRouter(h *TestHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, opsStatus{Status: "ok", InFlight: h.InFlight(), Capacity: h.Capacity()})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		status := opsStatus{Status: "ready", InFlight: h.InFlight(), Capacity: h.Capacity()}
		code := http.StatusOK
		if h.Saturated() {
			status.Status = "saturated"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

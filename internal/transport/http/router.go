// Package httptransport exposes the operational HTTP surface: health and
// Prometheus metrics. Enrollment and sync are driven programmatically, not
// over REST.
package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"registrar/pkg/platform/circuit"
)

// HealthFunc probes one named dependency.
type HealthFunc func(ctx context.Context) error

// NewRouter builds the operational router. checks maps dependency names to
// probes; breaker, when non-nil, surfaces the record-store circuit state in
// the health payload.
func NewRouter(checks map[string]HealthFunc, breaker *circuit.Breaker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, probe := range checks {
			if err := probe(req.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
				continue
			}
			body[name] = "ok"
		}
		if breaker != nil {
			body["record_store_circuit"] = breaker.State().String()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/marcelsud/tower-poller/metrics"
	"github.com/marcelsud/tower-poller/runner"
)

// StatusProvider reports input statuses, usually the orchestrator
type StatusProvider interface {
	Statuses() []runner.Status
	Status(name string) (runner.Status, bool)
	Err(name string) error
}

// HealthChecker is satisfied by checkpoint stores that can reach their backend
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// AdminHandlers sets up the admin API routes. metricsHandler serves the
// Prometheus scrape endpoint and may be nil, as may health.
func AdminHandlers(ctx context.Context, inputs StatusProvider, collector metrics.Collector, metricsHandler http.Handler, health HealthChecker) *chi.Mux {
	logger := httplog.NewLogger("tower-poller-admin", httplog.Options{
		JSON:     true,
		LogLevel: "debug",
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if health != nil {
			if err := health.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/inputs", getInputs(inputs).ServeHTTP)
		r.Get("/inputs/{name}", getInput(inputs).ServeHTTP)
		if collector != nil {
			r.Get("/metrics", getMetrics(collector).ServeHTTP)
		}
	})

	return r
}

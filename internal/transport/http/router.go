// Package httptransport assembles the HTTP surface: registration and
// admin endpoints, the API-key-gated lookup API, health probes, and
// Prometheus metrics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dataregistry/internal/platform/metrics"
	"dataregistry/internal/platform/middleware"
	"dataregistry/internal/ratelimit"
)

const defaultRequestTimeout = 30 * time.Second

// Registrar is implemented by every handler package.
type Registrar interface {
	Register(r chi.Router)
}

// Deps collects everything the router mounts. Public handlers manage
// their own auth (admin bearer tokens, verification links); the lookup
// handler is mounted under /api/v1 behind API key auth and the rate
// limiter.
type Deps struct {
	Logger *slog.Logger

	Public []Registrar
	Lookup Registrar

	Keys    ratelimit.KeyValidator
	Limiter *ratelimit.Limiter

	Metrics *metrics.Metrics

	// Ready reports whether downstream dependencies are reachable.
	// Nil means /readyz always succeeds.
	Ready func(ctx context.Context) error

	RequestTimeout time.Duration
}

// NewRouter wires the middleware chain and mounts all handlers.
func NewRouter(deps Deps) http.Handler {
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(instrument(deps.Metrics))
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady(deps.Ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	for _, h := range deps.Public {
		h.Register(r)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ratelimit.RequireAPIKey(deps.Keys))
		if deps.Limiter != nil {
			r.Use(deps.Limiter.Middleware)
		}
		deps.Lookup.Register(r)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func handleReady(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check != nil {
			if err := check(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// instrument records request latency against the matched chi route
// pattern so path parameters do not explode label cardinality.
func instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(route, strconv.Itoa(sw.status), time.Since(start).Seconds())
		})
	}
}

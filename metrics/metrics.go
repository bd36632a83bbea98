// Package metrics exposes the daemon's Prometheus collectors and the server
// that serves them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors groups the counters the request handlers update.
type Collectors struct {
	SessionsStarted prometheus.Counter
	Authorizations  *prometheus.CounterVec
	Resolutions     *prometheus.CounterVec
	Seals           *prometheus.CounterVec
	Relays          *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewCollectors creates the collectors under namespace and registers them
// with reg.
func NewCollectors(namespace string, reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions minted by the unsecure route.",
		}),
		Authorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorizations_total",
			Help:      "Session authorization decisions.",
		}, []string{"decision"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Value resolutions by outcome.",
		}, []string{"outcome"}),
		Seals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seals_total",
			Help:      "Value writes by outcome.",
		}, []string{"outcome"}),
		Relays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_total",
			Help:      "Relay notifications by outcome.",
		}, []string{"outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency per route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.SessionsStarted,
		c.Authorizations,
		c.Resolutions,
		c.Seals,
		c.Relays,
		c.RequestDuration,
	)
	return c
}

// ObserveSince records the time elapsed since start for route.
func (c *Collectors) ObserveSince(route string, start time.Time) {
	c.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}

// MetricsServer serves a private registry on its own listener.
type MetricsServer struct {
	registry   *prometheus.Registry
	collectors *Collectors
	srv        *http.Server
}

// New creates a metrics server for addr with collectors namespaced by name.
func New(name, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &MetricsServer{
		registry:   registry,
		collectors: NewCollectors(name, registry),
	}

	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	m.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return m, nil
}

// Collectors returns the application collectors.
func (m *MetricsServer) Collectors() *Collectors {
	return m.collectors
}

// Registry returns the underlying registry.
func (m *MetricsServer) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}

// Package metrics exposes Prometheus counters for credential exchanges and resolutions.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exchange attempt results.
const (
	ExchangeResultSuccess   = "success"
	ExchangeResultFailed    = "failed"
	ExchangeResultMalformed = "malformed"
	ExchangeResultExhausted = "exhausted"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	exchangeAttempts *prometheus.CounterVec
	resolutions      *prometheus.CounterVec
	resolveErrors    prometheus.Counter
}

// NewMetrics registers all collectors on a fresh registry under namespace.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		exchangeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tvm_exchange_attempts_total",
			Help:      "Token vending machine requests by result.",
		}, []string{"result"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Completed resolutions by selected storage provider.",
		}, []string{"provider"}),
		resolveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolution_errors_total",
			Help:      "Resolutions aborted by an error.",
		}),
	}
	m.registry.MustRegister(m.exchangeAttempts, m.resolutions, m.resolveErrors)
	return m
}

func (m *Metrics) ExchangeAttempt(result string) {
	if m == nil {
		return
	}
	m.exchangeAttempts.WithLabelValues(result).Inc()
}

// Resolution records a finished resolution. provider is "none" when nothing matched.
func (m *Metrics) Resolution(provider string) {
	if m == nil {
		return
	}
	if provider == "" {
		provider = "none"
	}
	m.resolutions.WithLabelValues(provider).Inc()
}

func (m *Metrics) ResolutionError() {
	if m == nil {
		return
	}
	m.resolveErrors.Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collected metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MetricsServer serves /metrics on its own listener.
type MetricsServer struct {
	*Metrics
	srv *http.Server
}

func New(namespace, listenAddr string) (*MetricsServer, error) {
	m := NewMetrics(namespace)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	return &MetricsServer{
		Metrics: m,
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

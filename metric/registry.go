package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the Prometheus registry plus the service metrics registered
// against it. The HTTP gateway mounts Handler() at /metrics.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	metrics            *Metrics
}

// NewRegistry creates a registry with all service metrics plus the Go
// runtime and process collectors registered.
func NewRegistry() *Registry {
	prometheusRegistry := prometheus.NewRegistry()

	r := &Registry{
		prometheusRegistry: prometheusRegistry,
		metrics:            NewMetrics(),
	}

	prometheusRegistry.MustRegister(
		r.metrics.EventsReceived,
		r.metrics.SyncOperations,
		r.metrics.SyncDuration,
		r.metrics.ReconcileRuns,
		r.metrics.MappingBackend,
		r.metrics.MappingSize,
		r.metrics.NATSConnected,
		r.metrics.NATSRTT,
		r.metrics.NATSReconnects,
	)

	prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Metrics returns the service metrics
func (r *Registry) Metrics() *Metrics {
	return r.metrics
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Handler returns the Prometheus exposition handler for this registry
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(
		r.prometheusRegistry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	)
}

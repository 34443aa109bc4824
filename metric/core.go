package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all sync-service metrics.
type Metrics struct {
	// Event and sync metrics
	EventsReceived *prometheus.CounterVec
	SyncOperations *prometheus.CounterVec
	SyncDuration   *prometheus.HistogramVec
	ReconcileRuns  *prometheus.CounterVec

	// Mapping backend metrics
	MappingBackend *prometheus.GaugeVec
	MappingSize    prometheus.Gauge

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSRTT        prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all service metrics
func NewMetrics() *Metrics {
	return &Metrics{
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "owuisync",
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Total number of bucket notification records received",
			},
			[]string{"event_type"},
		),

		SyncOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "owuisync",
				Subsystem: "sync",
				Name:      "operations_total",
				Help:      "Total number of sync operations by outcome",
			},
			[]string{"operation", "status"},
		),

		SyncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "owuisync",
				Subsystem: "sync",
				Name:      "duration_seconds",
				Help:      "Sync operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		ReconcileRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "owuisync",
				Subsystem: "reconcile",
				Name:      "runs_total",
				Help:      "Total number of reconciliation passes by outcome",
			},
			[]string{"status"},
		),

		MappingBackend: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "owuisync",
				Subsystem: "mapping",
				Name:      "backend_info",
				Help:      "Active mapping store backend (1 for the active backend)",
			},
			[]string{"backend"},
		),

		MappingSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "owuisync",
				Subsystem: "mapping",
				Name:      "entries",
				Help:      "Number of object-to-artifact mapping entries",
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "owuisync",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "owuisync",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "owuisync",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

// RecordEventReceived increments the notification counter for an event type
func (c *Metrics) RecordEventReceived(eventType string) {
	c.EventsReceived.WithLabelValues(eventType).Inc()
}

// RecordSyncOperation increments the sync operation counter
func (c *Metrics) RecordSyncOperation(operation, status string) {
	c.SyncOperations.WithLabelValues(operation, status).Inc()
}

// RecordSyncDuration records how long a sync operation took
func (c *Metrics) RecordSyncDuration(operation string, duration time.Duration) {
	c.SyncDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordReconcileRun increments the reconciliation pass counter
func (c *Metrics) RecordReconcileRun(status string) {
	c.ReconcileRuns.WithLabelValues(status).Inc()
}

// RecordMappingBackend marks the active mapping backend
func (c *Metrics) RecordMappingBackend(backend string) {
	c.MappingBackend.WithLabelValues(backend).Set(1)
}

// RecordMappingSize updates the mapping entry count
func (c *Metrics) RecordMappingSize(n int) {
	c.MappingSize.Set(float64(n))
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

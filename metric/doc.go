// Package metric provides Prometheus-based metrics for the sync service.
//
// All metrics live under the "owuisync" namespace. A single Registry owns
// the Prometheus registry, the service metrics, and the Go runtime
// collectors; the HTTP gateway mounts Registry.Handler() at /metrics.
//
// Recorded dimensions:
//
//   - owuisync_events_received_total{event_type}: notification records seen
//   - owuisync_sync_operations_total{operation,status}: per-object outcomes
//   - owuisync_sync_duration_seconds{operation}: operation latency
//   - owuisync_reconcile_runs_total{status}: full reconciliation passes
//   - owuisync_mapping_backend_info{backend} / owuisync_mapping_entries
//   - owuisync_nats_*: mapping store connectivity when the KV backend is active
package metric

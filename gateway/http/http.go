// Package http provides the HTTP gateway: bucket notification intake,
// reconciliation trigger, health and metrics endpoints.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cvaz1306/owui-kb-s3-sync-webhook/errors"
	"github.com/cvaz1306/owui-kb-s3-sync-webhook/health"
	"github.com/cvaz1306/owui-kb-s3-sync-webhook/metric"
	"github.com/cvaz1306/owui-kb-s3-sync-webhook/syncengine"
)

const (
	eventCreatedPrefix = "s3:ObjectCreated:"
	eventRemovedPrefix = "s3:ObjectRemoved:"
)

// Syncer is the engine surface the gateway drives.
type Syncer interface {
	HandleEvent(ctx context.Context, event syncengine.ChangeEvent) error
	Reconcile(ctx context.Context) (*syncengine.Report, error)
}

// Config holds the gateway's listener settings.
type Config struct {
	Addr            string        `json:"addr"`
	MaxRequestSize  int64         `json:"max_request_size"`
	RequestTimeout  time.Duration `json:"request_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// Validate applies defaults and rejects unusable settings.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = ":5005"
	}
	if c.MaxRequestSize <= 0 {
		c.MaxRequestSize = 1 << 20 // 1 MiB, notification batches are small
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return nil
}

// Gateway serves the sync service's HTTP surface.
type Gateway struct {
	config  Config
	syncer  Syncer
	monitor *health.Monitor
	metrics *metric.Registry
	logger  *slog.Logger

	server    *http.Server
	running   atomic.Bool
	startTime time.Time

	// Metrics (atomic operations)
	requestsTotal   atomic.Uint64
	requestsSuccess atomic.Uint64
	requestsFailed  atomic.Uint64

	// reconcileBusy serializes manual reconciliation triggers
	reconcileBusy atomic.Bool
}

// NewGateway creates an HTTP gateway. monitor and metrics may be nil.
func NewGateway(config Config, syncer Syncer, monitor *health.Monitor,
	metrics *metric.Registry, logger *slog.Logger) (*Gateway, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Gateway", "NewGateway", "config validation")
	}
	if syncer == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Gateway", "NewGateway",
			"sync engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Gateway{
		config:  config,
		syncer:  syncer,
		monitor: monitor,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Routes returns the gateway's handler tree. Exposed separately from Start
// so tests can drive it through httptest.
func (g *Gateway) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", g.handleEvents)
	mux.HandleFunc("/reconcile", g.handleReconcile)
	mux.HandleFunc("/healthz", g.handleHealthz)
	if g.metrics != nil {
		mux.Handle("/metrics", g.metrics.Handler())
	}
	return mux
}

// Start begins serving. It blocks until the listener fails or Stop is called.
func (g *Gateway) Start() error {
	if g.running.Load() {
		return errors.WrapInvalid(fmt.Errorf("gateway already running"),
			"Gateway", "Start", "double start")
	}

	g.server = &http.Server{
		Addr:         g.config.Addr,
		Handler:      g.Routes(),
		ReadTimeout:  g.config.RequestTimeout,
		WriteTimeout: g.config.RequestTimeout,
	}
	g.running.Store(true)
	g.startTime = time.Now()

	g.logger.Info("gateway listening", "addr", g.config.Addr)
	err := g.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "Gateway", "Start", "serve on "+g.config.Addr)
	}
	return nil
}

// Stop drains in-flight requests within the shutdown timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.running.Load() || g.server == nil {
		return nil
	}
	g.running.Store(false)

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	if err := g.server.Shutdown(shutdownCtx); err != nil {
		return errors.WrapTransient(err, "Gateway", "Stop", "graceful shutdown")
	}
	return nil
}

// notification mirrors the S3 bucket notification envelope.
type notification struct {
	Records []notificationRecord `json:"Records"`
}

type notificationRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// handleEvents ingests a bucket notification batch. A well-formed batch
// always gets 200 even when individual records fail; failures are logged and
// counted so redelivery storms cannot amplify through error responses.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	requestID := getOrGenerateRequestID(r)
	w.Header().Set("X-Request-ID", requestID)
	g.requestsTotal.Add(1)

	if r.Method != http.MethodPost {
		g.writeError(w, http.StatusMethodNotAllowed,
			fmt.Sprintf("method %s not allowed", r.Method))
		g.requestsFailed.Add(1)
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, g.config.MaxRequestSize+1))
	if err != nil {
		g.writeError(w, http.StatusBadRequest, "failed to read request body")
		g.requestsFailed.Add(1)
		return
	}
	if int64(len(body)) > g.config.MaxRequestSize {
		g.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds maximum size of %d bytes", g.config.MaxRequestSize))
		g.requestsFailed.Add(1)
		return
	}

	var batch notification
	if err := json.Unmarshal(body, &batch); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid notification payload")
		g.requestsFailed.Add(1)
		return
	}
	if batch.Records == nil {
		g.writeError(w, http.StatusBadRequest, "notification payload missing Records")
		g.requestsFailed.Add(1)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.config.RequestTimeout)
	defer cancel()

	for _, record := range batch.Records {
		g.processRecord(ctx, requestID, record)
	}

	g.requestsSuccess.Add(1)
	g.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// processRecord decodes and dispatches one notification record. Record-level
// failures never propagate to the HTTP response.
func (g *Gateway) processRecord(ctx context.Context, requestID string, record notificationRecord) {
	if g.metrics != nil {
		g.metrics.Metrics().RecordEventReceived(record.EventName)
	}

	var eventType syncengine.EventType
	switch {
	case strings.HasPrefix(record.EventName, eventCreatedPrefix):
		eventType = syncengine.EventCreated
	case strings.HasPrefix(record.EventName, eventRemovedPrefix):
		eventType = syncengine.EventRemoved
	default:
		g.logger.Debug("ignoring notification event",
			"event_name", record.EventName, "request_id", requestID)
		return
	}

	// Notification keys arrive URL-encoded
	key, err := url.QueryUnescape(record.S3.Object.Key)
	if err != nil {
		g.logger.Error("undecodable object key",
			"key", record.S3.Object.Key, "request_id", requestID, "error", err)
		return
	}
	if key == "" {
		g.logger.Warn("notification record without object key",
			"event_name", record.EventName, "request_id", requestID)
		return
	}

	event := syncengine.ChangeEvent{
		Type:   eventType,
		Bucket: record.S3.Bucket.Name,
		Key:    key,
	}
	if err := g.syncer.HandleEvent(ctx, event); err != nil {
		g.logger.Error("event sync failed",
			"event_type", eventType, "key", key, "request_id", requestID, "error", err)
	}
}

// handleReconcile triggers a full reconciliation pass and returns its report.
// Only one manual pass runs at a time.
func (g *Gateway) handleReconcile(w http.ResponseWriter, r *http.Request) {
	requestID := getOrGenerateRequestID(r)
	w.Header().Set("X-Request-ID", requestID)
	g.requestsTotal.Add(1)

	if r.Method != http.MethodPost {
		g.writeError(w, http.StatusMethodNotAllowed,
			fmt.Sprintf("method %s not allowed", r.Method))
		g.requestsFailed.Add(1)
		return
	}

	if !g.reconcileBusy.CompareAndSwap(false, true) {
		g.writeError(w, http.StatusConflict, "reconciliation already in progress")
		g.requestsFailed.Add(1)
		return
	}
	defer g.reconcileBusy.Store(false)

	report, err := g.syncer.Reconcile(r.Context())
	if g.monitor != nil {
		g.monitor.UpdateFromError("reconcile", err)
	}
	if err != nil {
		g.logger.Error("reconciliation failed", "request_id", requestID, "error", err)
		g.writeError(w, g.mapErrorToHTTPStatus(err), g.sanitizeError(err))
		g.requestsFailed.Add(1)
		return
	}

	g.requestsSuccess.Add(1)
	g.writeJSON(w, http.StatusOK, report)
}

// handleHealthz reports aggregated service health: 200 when healthy or
// degraded, 503 when any part is down.
func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, http.StatusMethodNotAllowed,
			fmt.Sprintf("method %s not allowed", r.Method))
		return
	}

	var status health.Status
	if g.monitor != nil {
		uptime := time.Since(g.startTime).Round(time.Second)
		g.monitor.UpdateHealthy("gateway", fmt.Sprintf("up %s", uptime))
		status = g.monitor.Aggregate("owui-kb-s3-sync-webhook")
	} else {
		status = health.NewHealthy("owui-kb-s3-sync-webhook", "OK")
	}

	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	g.writeJSON(w, code, status)
}

// RequestStats returns total, succeeded and failed request counts.
func (g *Gateway) RequestStats() (total, success, failed uint64) {
	return g.requestsTotal.Load(), g.requestsSuccess.Load(), g.requestsFailed.Load()
}

// mapErrorToHTTPStatus maps classified errors to HTTP status codes
func (g *Gateway) mapErrorToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusInternalServerError
	}

	if errors.IsInvalid(err) {
		return http.StatusBadRequest
	}
	if errors.IsTransient(err) {
		if strings.Contains(err.Error(), "timeout") {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// sanitizeError returns a safe error message for external clients. Full
// detail stays in the logs.
func (g *Gateway) sanitizeError(err error) string {
	if err == nil {
		return "internal server error"
	}
	if errors.IsInvalid(err) {
		return "invalid request"
	}
	if errors.IsTransient(err) {
		return "upstream service unavailable"
	}
	return "internal server error"
}

func (g *Gateway) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("response encoding failed", "error", err)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, code int, message string) {
	g.writeJSON(w, code, map[string]any{
		"error":  message,
		"status": code,
	})
}

// getOrGenerateRequestID extracts the request ID from headers or generates a
// new one so records can be traced through the sync logs
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}

	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

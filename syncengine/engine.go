// Package syncengine implements the synchronization core: incremental
// handling of bucket change events and full reconciliation between a bucket
// and an Open WebUI knowledge collection.
package syncengine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cvaz1306/owui-kb-s3-sync-webhook/errors"
	"github.com/cvaz1306/owui-kb-s3-sync-webhook/mapstore"
	"github.com/cvaz1306/owui-kb-s3-sync-webhook/metric"
	"github.com/cvaz1306/owui-kb-s3-sync-webhook/source"
)

// EventType distinguishes the two bucket notification kinds the engine acts on.
type EventType string

const (
	// EventCreated covers the s3:ObjectCreated:* family
	EventCreated EventType = "created"
	// EventRemoved covers the s3:ObjectRemoved:* family
	EventRemoved EventType = "removed"
)

// ChangeEvent is a single decoded bucket notification record.
type ChangeEvent struct {
	Type   EventType
	Bucket string
	Key    string
}

// Knowledge is the subset of the knowledge API client the engine needs.
type Knowledge interface {
	UploadFile(ctx context.Context, name string, r io.Reader) (string, error)
	AddFileToKnowledge(ctx context.Context, knowledgeID, fileID string) error
	RemoveFileFromKnowledge(ctx context.Context, knowledgeID, fileID string) error
}

// Config holds the engine's fixed wiring.
type Config struct {
	Bucket       string
	KnowledgeID  string
	PruneOrphans bool
}

// Engine drives object synchronization. It is stateless apart from injected
// dependencies; the mapping store serializes its own mutations.
type Engine struct {
	cfg       Config
	store     mapstore.Store
	source    source.Source
	knowledge Knowledge
	metrics   *metric.Metrics
	logger    *slog.Logger
}

// New creates a sync engine. metrics may be nil (recording is skipped).
func New(cfg Config, store mapstore.Store, src source.Source, kb Knowledge,
	metrics *metric.Metrics, logger *slog.Logger) (*Engine, error) {
	if cfg.Bucket == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Engine", "New", "bucket required")
	}
	if cfg.KnowledgeID == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Engine", "New", "knowledge ID required")
	}
	if store == nil || src == nil || kb == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Engine", "New",
			"store, source and knowledge client required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cfg:       cfg,
		store:     store,
		source:    src,
		knowledge: kb,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// HandleEvent dispatches a decoded change event. Unknown event types are
// rejected as invalid.
func (e *Engine) HandleEvent(ctx context.Context, event ChangeEvent) error {
	switch event.Type {
	case EventCreated:
		return e.handleCreated(ctx, event.Key)
	case EventRemoved:
		return e.handleRemoved(ctx, event.Key)
	default:
		return errors.WrapInvalid(errors.ErrInvalidData, "Engine", "HandleEvent",
			fmt.Sprintf("unknown event type %q", event.Type))
	}
}

// handleCreated runs the full registration sequence for a new or overwritten
// object. The mapping entry is written only after the knowledge service has
// confirmed both upload and attachment; any failure leaves the store
// untouched so the next reconciliation pass repairs the gap.
func (e *Engine) handleCreated(ctx context.Context, key string) error {
	start := time.Now()
	err := e.registerObject(ctx, key)
	e.observe("created", start, err)
	if err != nil {
		return err
	}

	e.logger.Info("object registered", "key", key)
	return nil
}

// handleRemoved deregisters an object. An absent mapping entry is a warning,
// not an error: the removal may race an unsynced creation or a prior removal.
func (e *Engine) handleRemoved(ctx context.Context, key string) error {
	start := time.Now()

	artifactID, err := e.store.Get(ctx, key)
	if errors.IsNotFound(err) {
		e.logger.Warn("removal for unmapped object", "key", key)
		e.observe("removed", start, nil)
		return nil
	}
	if err != nil {
		wrapped := errors.Wrap(err, "Engine", "handleRemoved", "look up mapping for "+key)
		e.observe("removed", start, wrapped)
		return wrapped
	}

	if err := e.knowledge.RemoveFileFromKnowledge(ctx, e.cfg.KnowledgeID, artifactID); err != nil {
		// Mapping stays in place so a later event or pruning pass can retry
		wrapped := errors.Wrap(err, "Engine", "handleRemoved", "deregister "+key)
		e.observe("removed", start, wrapped)
		return wrapped
	}

	if _, err := e.store.Remove(ctx, key); err != nil && !errors.IsNotFound(err) {
		wrapped := errors.Wrap(err, "Engine", "handleRemoved", "remove mapping for "+key)
		e.observe("removed", start, wrapped)
		return wrapped
	}

	e.observe("removed", start, nil)
	e.logger.Info("object deregistered", "key", key, "artifact_id", artifactID)
	return nil
}

// registerObject downloads, uploads, attaches and finally maps one object.
func (e *Engine) registerObject(ctx context.Context, key string) error {
	path, cleanup, err := e.source.Download(ctx, e.cfg.Bucket, key)
	if err != nil {
		return errors.Wrap(err, "Engine", "registerObject", "download "+key)
	}
	defer cleanup()

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "Engine", "registerObject", "open downloaded file")
	}
	defer f.Close()

	artifactID, err := e.knowledge.UploadFile(ctx, key, f)
	if err != nil {
		return errors.Wrap(err, "Engine", "registerObject", "upload "+key)
	}

	if err := e.knowledge.AddFileToKnowledge(ctx, e.cfg.KnowledgeID, artifactID); err != nil {
		return errors.Wrap(err, "Engine", "registerObject", "attach "+key)
	}

	if err := e.store.Set(ctx, key, artifactID); err != nil {
		return errors.Wrap(err, "Engine", "registerObject", "record mapping for "+key)
	}

	return nil
}

// Reconcile performs a full bucket pass. Keys with a mapping entry are
// reported as already registered; unmapped keys go through the same
// registration sequence as an incremental create. Per-key failures are
// recorded in the report and never abort the pass.
func (e *Engine) Reconcile(ctx context.Context) (*Report, error) {
	report := NewReport()
	e.logger.Info("reconciliation started", "run_id", report.RunID, "bucket", e.cfg.Bucket)

	keys, err := e.source.ListKeys(ctx, e.cfg.Bucket)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordReconcileRun("error")
		}
		return nil, errors.Wrap(err, "Engine", "Reconcile", "list bucket "+e.cfg.Bucket)
	}

	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		seen[key] = true

		if ctx.Err() != nil {
			if e.metrics != nil {
				e.metrics.RecordReconcileRun("error")
			}
			return nil, errors.Wrap(ctx.Err(), "Engine", "Reconcile", "pass interrupted")
		}

		_, err := e.store.Get(ctx, key)
		if err == nil {
			report.AlreadyInOWUI = append(report.AlreadyInOWUI, key)
			continue
		}
		if !errors.IsNotFound(err) {
			report.AddError(key, err)
			e.logger.Error("mapping lookup failed", "key", key, "error", err)
			continue
		}

		start := time.Now()
		if err := e.registerObject(ctx, key); err != nil {
			e.observe("reconcile", start, err)
			report.AddError(key, err)
			e.logger.Error("reconcile registration failed", "key", key, "error", err)
			continue
		}
		e.observe("reconcile", start, nil)
		report.Uploaded = append(report.Uploaded, key)
	}

	if e.cfg.PruneOrphans {
		e.pruneOrphans(ctx, seen, report)
	}

	status := "success"
	if len(report.Errors) > 0 {
		status = "partial"
	}
	if e.metrics != nil {
		e.metrics.RecordReconcileRun(status)
	}

	e.logger.Info("reconciliation finished",
		"run_id", report.RunID,
		"duration", time.Since(report.StartedAt),
		"uploaded", len(report.Uploaded),
		"already_in_owui", len(report.AlreadyInOWUI),
		"errors", len(report.Errors))

	return report, nil
}

// pruneOrphans deregisters mapping entries whose object no longer exists in
// the bucket. It needs an enumerable store; backends without enumeration
// skip pruning with a log line.
func (e *Engine) pruneOrphans(ctx context.Context, seen map[string]bool, report *Report) {
	lister, ok := e.store.(mapstore.Lister)
	if !ok {
		e.logger.Warn("orphan pruning skipped, mapping backend does not support enumeration")
		return
	}

	entries, err := lister.Entries(ctx)
	if err != nil {
		report.AddError("", errors.Wrap(err, "Engine", "pruneOrphans", "enumerate mappings"))
		return
	}

	for key, artifactID := range entries {
		if seen[key] {
			continue
		}

		if err := e.knowledge.RemoveFileFromKnowledge(ctx, e.cfg.KnowledgeID, artifactID); err != nil {
			report.AddError(key, err)
			e.logger.Error("orphan deregistration failed", "key", key, "error", err)
			continue
		}
		if _, err := e.store.Remove(ctx, key); err != nil && !errors.IsNotFound(err) {
			report.AddError(key, err)
			continue
		}

		report.Pruned = append(report.Pruned, key)
		e.logger.Info("orphan mapping pruned", "key", key, "artifact_id", artifactID)
	}
}

func (e *Engine) observe(operation string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordSyncOperation(operation, status)
	e.metrics.RecordSyncDuration(operation, time.Since(start))
}

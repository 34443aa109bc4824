package mapstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/cvaz1306/owui-kb-s3-sync-webhook/natsclient"
	"github.com/cvaz1306/owui-kb-s3-sync-webhook/pkg/retry"
)

// Backend names accepted in configuration.
const (
	BackendAuto   = "auto"
	BackendKV     = "kv"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// SelectConfig drives the one-time backend selection at process start.
type SelectConfig struct {
	// Backend forces a specific backend; BackendAuto probes the networked
	// backend and falls back to the file-backed one.
	Backend string

	// NATSURL and KVBucket configure the networked backend.
	NATSURL  string
	KVBucket string

	// FilePath configures the file-backed fallback.
	FilePath string

	// ProbeTimeout bounds the connectivity probe. Zero means 5s.
	ProbeTimeout time.Duration
}

// Selection is the outcome of backend selection.
type Selection struct {
	Store   Store
	Backend string

	// Client holds the NATS client when the KV backend was selected, so the
	// caller can close it on shutdown. Nil otherwise.
	Client *natsclient.Client
}

// Select picks the mapping store backend once at startup. The networked
// backend is preferred; a failed connectivity probe degrades to the
// file-backed store with a logged decision. There is no runtime switching.
func Select(ctx context.Context, cfg SelectConfig, logger *slog.Logger) (*Selection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendFile:
		return selectFile(cfg, logger)
	case BackendMemory:
		logger.Info("mapping store backend selected", "backend", BackendMemory)
		return &Selection{Store: NewMemoryStore(), Backend: BackendMemory}, nil
	case BackendKV:
		sel, err := probeKV(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("kv backend required but unavailable: %w", err)
		}
		return sel, nil
	case BackendAuto, "":
		sel, err := probeKV(ctx, cfg, logger)
		if err == nil {
			return sel, nil
		}
		logger.Warn("networked mapping store unavailable, falling back to file backend",
			"nats_url", cfg.NATSURL, "file_path", cfg.FilePath, "error", err)
		return selectFile(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown mapping backend %q", cfg.Backend)
	}
}

func selectFile(cfg SelectConfig, logger *slog.Logger) (*Selection, error) {
	store, err := NewFileStore(cfg.FilePath, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("mapping store backend selected", "backend", BackendFile, "path", cfg.FilePath)
	return &Selection{Store: store, Backend: BackendFile}, nil
}

// probeKV attempts to connect to NATS and open the KV bucket within the
// probe timeout. A handful of quick attempts absorbs startup races with the
// NATS server itself coming up.
func probeKV(ctx context.Context, cfg SelectConfig, logger *slog.Logger) (*Selection, error) {
	if cfg.NATSURL == "" {
		return nil, fmt.Errorf("no NATS URL configured")
	}
	if cfg.KVBucket == "" {
		return nil, fmt.Errorf("no KV bucket configured")
	}

	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := natsclient.NewClient(cfg.NATSURL,
		natsclient.WithName("owui-kb-s3-sync-webhook"),
		natsclient.WithTimeout(timeout),
	)
	if err != nil {
		return nil, err
	}

	var bucket jetstream.KeyValue
	err = retry.Do(probeCtx, retry.Quick(), func() error {
		if !client.IsHealthy() {
			if err := client.Connect(probeCtx); err != nil {
				return err
			}
		}
		var err error
		bucket, err = client.CreateKeyValueBucket(probeCtx, jetstream.KeyValueConfig{
			Bucket:      cfg.KVBucket,
			Description: "object key to knowledge artifact id mappings",
		})
		return err
	})
	if err != nil {
		_ = client.Close(context.Background())
		return nil, err
	}

	logger.Info("mapping store backend selected",
		"backend", BackendKV, "nats_url", cfg.NATSURL, "kv_bucket", cfg.KVBucket)

	return &Selection{
		Store:   NewKVMapStore(client.NewKVStore(bucket)),
		Backend: BackendKV,
		Client:  client,
	}, nil
}

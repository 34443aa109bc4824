// Package main implements the entry point for the owui-kb-s3-sync-webhook
// service, which keeps an S3-compatible bucket in sync with an Open WebUI
// knowledge collection.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/cvaz1306/owui-kb-s3-sync-webhook/config"
	gwhttp "github.com/cvaz1306/owui-kb-s3-sync-webhook/gateway/http"
	"github.com/cvaz1306/owui-kb-s3-sync-webhook/health"
	"github.com/cvaz1306/owui-kb-s3-sync-webhook/knowledge"
	"github.com/cvaz1306/owui-kb-s3-sync-webhook/mapstore"
	"github.com/cvaz1306/owui-kb-s3-sync-webhook/metric"
	"github.com/cvaz1306/owui-kb-s3-sync-webhook/source"
	"github.com/cvaz1306/owui-kb-s3-sync-webhook/syncengine"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "owui-kb-s3-sync-webhook"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()

	metricsRegistry := metric.NewRegistry()
	monitor := health.NewMonitor()

	selection, err := selectMappingStore(ctx, cfg, metricsRegistry, monitor, logger)
	if err != nil {
		return fmt.Errorf("select mapping store: %w", err)
	}
	if selection.Client != nil {
		defer selection.Client.Close(ctx)
	}

	engine, err := buildEngine(ctx, cfg, selection.Store, metricsRegistry, logger)
	if err != nil {
		return err
	}

	gateway, err := gwhttp.NewGateway(gwhttp.Config{
		Addr:            cfg.HTTP.Addr,
		MaxRequestSize:  cfg.HTTP.MaxRequestSize,
		RequestTimeout:  cfg.HTTP.RequestTimeout.Std(),
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout.Std(),
	}, engine, monitor, metricsRegistry, logger)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return runWithSignalHandling(ctx, gateway, selection, metricsRegistry, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting bucket to knowledge sync",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// selectMappingStore runs the one-time backend selection and reports the
// outcome to metrics and the health monitor.
func selectMappingStore(
	ctx context.Context,
	cfg *config.Config,
	metricsRegistry *metric.Registry,
	monitor *health.Monitor,
	logger *slog.Logger,
) (*mapstore.Selection, error) {
	selection, err := mapstore.Select(ctx, mapstore.SelectConfig{
		Backend:      cfg.Mapping.Backend,
		NATSURL:      strings.Join(cfg.NATS.URLs, ","),
		KVBucket:     cfg.NATS.KVBucket,
		FilePath:     cfg.Mapping.FilePath,
		ProbeTimeout: cfg.NATS.ProbeTimeout.Std(),
	}, logger)
	if err != nil {
		return nil, err
	}

	m := metricsRegistry.Metrics()
	m.RecordMappingBackend(selection.Backend)
	m.RecordNATSStatus(selection.Client != nil)
	monitor.UpdateHealthy("mapping", "backend "+selection.Backend)

	if lister, ok := selection.Store.(mapstore.Lister); ok {
		if entries, err := lister.Entries(ctx); err == nil {
			m.RecordMappingSize(len(entries))
		}
	}

	return selection, nil
}

// buildEngine wires the object source and knowledge client into the engine.
func buildEngine(
	ctx context.Context,
	cfg *config.Config,
	store mapstore.Store,
	metricsRegistry *metric.Registry,
	logger *slog.Logger,
) (*syncengine.Engine, error) {
	src, err := source.NewS3Source(ctx, source.S3Config{
		Endpoint:        cfg.S3.Endpoint,
		Region:          cfg.S3.Region,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		ForcePathStyle:  cfg.S3.ForcePathStyle,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create object source: %w", err)
	}

	kb, err := knowledge.NewClient(cfg.Knowledge.BaseURL, cfg.Knowledge.APIKey)
	if err != nil {
		return nil, fmt.Errorf("create knowledge client: %w", err)
	}

	engine, err := syncengine.New(syncengine.Config{
		Bucket:       cfg.S3.Bucket,
		KnowledgeID:  cfg.Knowledge.KnowledgeID,
		PruneOrphans: cfg.Mapping.PruneOrphans,
	}, store, src, kb, metricsRegistry.Metrics(), logger)
	if err != nil {
		return nil, fmt.Errorf("create sync engine: %w", err)
	}

	return engine, nil
}

// runWithSignalHandling serves until SIGINT/SIGTERM, then drains the gateway.
func runWithSignalHandling(
	ctx context.Context,
	gateway *gwhttp.Gateway,
	selection *mapstore.Selection,
	metricsRegistry *metric.Registry,
	shutdownTimeout time.Duration,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- gateway.Start()
	}()

	// Keep the NATS connectivity gauge fresh while the KV backend is active
	if selection.Client != nil {
		go watchNATSHealth(signalCtx, selection, metricsRegistry)
	}

	slog.Info("Sync service started", "mapping_backend", selection.Backend)

	select {
	case err := <-serveErr:
		return err
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := gateway.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stop gateway: %w", err)
	}

	slog.Info("Shutdown complete")
	return nil
}

// watchNATSHealth samples the KV backend connection for metrics.
func watchNATSHealth(ctx context.Context, selection *mapstore.Selection, metricsRegistry *metric.Registry) {
	m := metricsRegistry.Metrics()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			healthy := selection.Client.IsHealthy()
			m.RecordNATSStatus(healthy)
			if healthy {
				if rtt, err := selection.Client.RTT(); err == nil {
					m.RecordNATSRTT(rtt)
				}
			}
		}
	}
}

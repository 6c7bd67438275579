// Package main implements the entry point for the chatrules engine.
// chatrules evaluates automation rules against conversation events and
// schedules the resulting actions with deduplication and audit logging.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360/chatrules/audit"
	"github.com/c360/chatrules/component"
	"github.com/c360/chatrules/config"
	"github.com/c360/chatrules/executor"
	"github.com/c360/chatrules/metric"
	"github.com/c360/chatrules/natsclient"
	"github.com/c360/chatrules/output/monitor"
	"github.com/c360/chatrules/processor/automation"
	"github.com/c360/chatrules/rulestore"
)

// Build information constants
const (
	Version = "1.0.0"
	appName = "chatrules"
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
	configPath := flag.String("config", "", "Path to JSON configuration file")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	shutdownTimeout := flag.Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	slog.SetDefault(setupLogger(cfg.Logging))

	if *validateOnly {
		slog.Info("Configuration is valid")
		return nil
	}

	slog.Info("Starting chatrules engine",
		"version", Version,
		"config_path", *configPath,
		"nats_url", cfg.NATS.URL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithTimeout(cfg.NATS.Timeout),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password),
	)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer func() { _ = client.Close() }()

	registry := metric.NewMetricsRegistry()
	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		go func() {
			if err := metricsServer.Start(); err != nil {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() { _ = metricsServer.Stop() }()
		slog.Info("Metrics server listening", "address", metricsServer.Address())
	}

	rules, err := rulestore.NewKVStore(ctx, client)
	if err != nil {
		return fmt.Errorf("open rule store: %w", err)
	}
	if len(cfg.RuleFiles) > 0 {
		seeded, err := rulestore.Seed(ctx, rules, cfg.RuleFiles, slog.Default())
		if err != nil {
			return fmt.Errorf("seed rules: %w", err)
		}
		slog.Info("Seeded rules from files", "count", seeded, "files", cfg.RuleFiles)
	}

	auditLog, err := audit.NewNATSLog(ctx, client, cfg.Audit.MaxAge)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}

	snapshots, err := automation.NewKVSnapshotSource(ctx, client)
	if err != nil {
		return fmt.Errorf("open snapshot source: %w", err)
	}

	proc, err := automation.NewProcessor(cfg.Engine, automation.Deps{
		Client:    client,
		Rules:     rules,
		Snapshots: snapshots,
		Probe:     snapshots,
		Executors: executor.NewNATSRegistry(client),
		Audit:     auditLog,
		Metrics:   registry,
	})
	if err != nil {
		return fmt.Errorf("create processor: %w", err)
	}

	mon, err := monitor.NewMonitor(cfg.Monitor, client, registry)
	if err != nil {
		return fmt.Errorf("create monitor: %w", err)
	}

	components := []component.LifecycleComponent{proc, mon}
	for _, c := range components {
		if err := c.Initialize(); err != nil {
			return fmt.Errorf("initialize %s: %w", c.Meta().Name, err)
		}
	}
	for _, c := range components {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", c.Meta().Name, err)
		}
		slog.Info("Component started", "name", c.Meta().Name)
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received")

	// Stop in reverse start order
	var stopErr error
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if err := c.Stop(*shutdownTimeout); err != nil {
			slog.Error("Component stop failed", "name", c.Meta().Name, "error", err)
			if stopErr == nil {
				stopErr = err
			}
		}
	}

	slog.Info("Shutdown complete")
	return stopErr
}

// setupLogger builds the default structured logger from config
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

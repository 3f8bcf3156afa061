// Harrier - rule-based transaction fraud monitoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/config"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/ingest"
	"github.com/opensource-finance/harrier/internal/metrics"
	"github.com/opensource-finance/harrier/internal/monitor"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/telemetry"
	"github.com/opensource-finance/harrier/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (yaml, json or toml)")
	analyzeOnStart := flag.Bool("analyze-on-start", true, "run one analysis pass before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(telemetry.NewLogger(cfg.Logging, os.Stdout))

	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"source", cfg.Data.Source,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"runtime_rules", cfg.RuntimeRules,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	shutdownTracing, err := telemetry.SetupTracing(cfg.Tracing, os.Stderr)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	// Repository is optional: driver "none" runs without persistence.
	var repo domain.Repository
	if cfg.Repository.Driver != "none" {
		repo, err = repository.New(cfg.Repository)
		if err != nil {
			slog.Error("failed to initialize repository", "error", err)
			os.Exit(1)
		}
		defer repo.Close()
		slog.Info("repository initialized", "driver", cfg.Repository.Driver)
	}

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	var mt *metrics.Metrics
	if cfg.Metrics.Enabled {
		mt = metrics.New()
	}

	engine, err := newEngine(cfg, mt)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized",
		"rules", len(engine.Rules()),
		"runtime_rules", len(engine.RuntimeRules()),
	)

	var source monitor.Source = ingest.FileSource{Path: cfg.Data.InputPath}
	if cfg.Data.Source == domain.SourceRepository {
		source = ingest.RepositorySource{Repo: repo}
	}

	opts := []monitor.Option{
		monitor.WithCache(cacheImpl, cfg.Cache.ReportTTL, cfg.Cache.LocalTTL),
		monitor.WithBus(busImpl),
		monitor.WithExports(cfg.Data.OutputPath, cfg.Data.ReportPath),
		monitor.WithVersion(Version),
	}
	if repo != nil {
		opts = append(opts, monitor.WithRepository(repo))
	}
	if mt != nil {
		opts = append(opts, monitor.WithMetrics(mt))
	}
	mon := monitor.New(engine, source, opts...)

	if *analyzeOnStart {
		if _, err := mon.Run(ctx); err != nil {
			slog.Warn("initial analysis failed, profiles stay empty until POST /generate-report", "error", err)
		}
	}

	var asyncWorker *worker.Worker
	if cfg.AsyncWorker {
		asyncWorker = worker.NewWorker(busImpl, mon)
		if err := asyncWorker.Start(worker.Config{}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	srv := api.NewServer(cfg.Server, mon, cacheImpl, busImpl, mt, cfg.Metrics.Path, Version)
	if asyncWorker != nil {
		srv.SetWorker(asyncWorker)
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
}

// newEngine builds the engine with the full batch rule set and the configured
// runtime subset.
func newEngine(cfg *domain.Config, mt *metrics.Metrics) (*rules.Engine, error) {
	kinds, err := rules.ParseKinds(cfg.RuntimeRules)
	if err != nil {
		return nil, err
	}
	runtime, err := rules.Set(cfg.Rules, kinds)
	if err != nil {
		return nil, err
	}

	opts := []rules.Option{
		rules.WithRules(rules.DefaultSet(cfg.Rules)...),
		rules.WithRuntimeRules(runtime...),
	}
	if mt != nil {
		opts = append(opts, rules.WithRecorder(mt))
	}
	return rules.NewEngine(cfg.Rules, opts...), nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  HARRIER - transaction fraud monitoring")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /generate-report           - Run batch analysis and write the report")
	fmt.Println("    GET  /report                    - Latest report")
	fmt.Println("    GET  /transactions              - Annotated transactions (?suspicious=true&filter=CEL)")
	fmt.Println("    POST /fraud-check               - Check a single transaction")
	fmt.Println("    GET  /fraud-check/{requestId}   - Cached check result")
	fmt.Println("    POST /transactions/import       - Append history to the repository")
	fmt.Println("    GET  /runs                      - Recent analysis runs")
	fmt.Println("    GET  /runs/{id}                 - Analysis run by ID")
	fmt.Println("    GET  /health                    - Health check")
	if cfg.Metrics.Enabled {
		fmt.Printf("    GET  %-27s - Prometheus metrics\n", cfg.Metrics.Path)
	}
	fmt.Println()
}

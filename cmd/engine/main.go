package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/rightsizer/rightsizer/internal/apiserver"
	"github.com/rightsizer/rightsizer/internal/cloud/aws"
	"github.com/rightsizer/rightsizer/internal/config"
	"github.com/rightsizer/rightsizer/internal/engine"
	"github.com/rightsizer/rightsizer/internal/report"
	"github.com/rightsizer/rightsizer/internal/savings"
	"github.com/rightsizer/rightsizer/internal/scanner"
	"github.com/rightsizer/rightsizer/internal/series"
	"github.com/rightsizer/rightsizer/internal/store"
	"github.com/rightsizer/rightsizer/pkg/shapes"
)

func main() {
	var configFile string
	var once bool
	var logLevel string

	flag.StringVar(&configFile, "config", "/etc/rightsizer/config.yaml", "Path to config file")
	flag.BoolVar(&once, "once", false, "Run a single scan and exit")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	setupLogging(logLevel)

	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		slog.Warn("failed to load config file, falling back to defaults/env",
			"path", configFile, "error", err)
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting rightsizer",
		"cloudProvider", cfg.CloudProvider,
		"region", cfg.Region,
		"tenant", cfg.Tenant,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(store.Config{
		Path:          cfg.Database.Path,
		RetentionDays: cfg.Database.RetentionDays,
	})
	if err != nil {
		slog.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	writer := store.NewWriter(db.RawDB(), 4096)
	writer.Run(ctx)
	defer writer.Drain()

	history := store.NewHistoryStore(db.RawDB(), nil)
	archive := store.NewReportArchive(db.RawDB(), writer)

	catalog, provider, err := buildCatalog(ctx, cfg)
	if err != nil {
		slog.Error("building shape catalog", "error", err)
		os.Exit(1)
	}

	var pricer engine.Pricer
	var inventory scanner.Inventory
	if provider != nil {
		pricer = provider.Pricing()
		inventory = provider.NewInventory()
	}

	reports, err := report.NewWriter(cfg.Scan.ReportsDir)
	if err != nil {
		slog.Error("creating report writer", "error", err)
		os.Exit(1)
	}
	defer reports.Close()

	loader := series.NewLoader(cfg.Scan.MetricsDir, series.LoaderConfig{
		Step:           time.Duration(cfg.Series.StepMinutes) * time.Minute,
		MinAllowedDays: cfg.Series.MinAllowedDays,
		MaxDays:        cfg.Series.MaxDays,
		Location:       cfg.Location(),
	})

	assembler := engine.NewAssembler(cfg, catalog, history, history, pricer,
		savings.NewCalculator("USD"))
	group := engine.NewGroupAssembler(archive, nil)
	scan := scanner.New(cfg, loader, assembler, group, history, archive, reports, inventory)

	go serveMetrics(cfg)

	if cfg.APIServer.Enabled {
		api := apiserver.NewServer(cfg, history, archive)
		go func() {
			slog.Info("api server listening", "addr", api.Addr)
			if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("api server failed", "error", err)
			}
		}()
		defer shutdownServer(api)
	}

	if cfg.Scan.Schedule == "" {
		once = true
	}
	if once {
		if err := scan.Scan(ctx); err != nil {
			slog.Error("scan failed", "error", err)
			os.Exit(1)
		}
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Scan.Schedule, func() {
		if err := scan.Scan(ctx); err != nil {
			slog.Error("scheduled scan failed", "error", err)
		}
		cutoff := time.Now().AddDate(0, 0, -db.RetentionDays())
		if err := db.Prune(cutoff.Unix()); err != nil {
			slog.Warn("pruning old rows", "error", err)
		}
	}); err != nil {
		slog.Error("registering scan schedule", "schedule", cfg.Scan.Schedule, "error", err)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()
	slog.Info("scan schedule registered", "schedule", cfg.Scan.Schedule)

	<-ctx.Done()
	slog.Info("shutting down")
}

// buildCatalog loads the static shape catalog and, when cloud API access is
// enabled, seeds it from EC2 and keeps it refreshed in the background.
func buildCatalog(ctx context.Context, cfg *config.Config) (*shapes.StaticCatalog, *aws.Provider, error) {
	var catalog *shapes.StaticCatalog
	var err error
	if cfg.Catalog.File != "" {
		catalog, err = shapes.LoadCatalogFile(cfg.Catalog.File)
		if err != nil {
			return nil, nil, fmt.Errorf("loading catalog file: %w", err)
		}
	} else {
		catalog = shapes.NewStaticCatalog(nil)
	}

	if !cfg.Catalog.UseCloudAPI {
		return catalog, nil, nil
	}
	if cfg.CloudProvider != "aws" {
		return nil, nil, fmt.Errorf("cloud catalog not supported for provider %q", cfg.CloudProvider)
	}

	provider, err := aws.NewProvider(ctx, cfg.Region)
	if err != nil {
		return nil, nil, err
	}
	if err := provider.RefreshCatalog(ctx, catalog); err != nil {
		slog.Warn("initial catalog refresh failed, using static contents", "error", err)
	}
	go provider.RunCatalogRefresh(ctx, catalog, cfg.Catalog.RefreshEvery)
	return catalog, provider, nil
}

func serveMetrics(cfg *config.Config) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := cfg.Metrics.Addr
	slog.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server failed", "error", err)
	}
}

func shutdownServer(srv *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api server shutdown", "error", err)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

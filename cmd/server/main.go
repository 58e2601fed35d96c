package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flight-replay/backend/internal/api"
	"github.com/flight-replay/backend/internal/config"
	"github.com/flight-replay/backend/internal/logging"
	"github.com/flight-replay/backend/internal/observability"
	"github.com/flight-replay/backend/internal/pipeline"
	"github.com/flight-replay/backend/internal/session"
	"github.com/flight-replay/backend/internal/storage"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	ctx := context.Background()

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		logger.Error(ctx, "failed to create directories", logging.Err(err))
		os.Exit(1)
	}

	fileStore, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		logger.Error(ctx, "failed to initialize storage", logging.Err(err))
		os.Exit(1)
	}

	artifacts, err := session.NewArtifactStore(cfg.Storage.OutputDirectory, logger)
	if err != nil {
		logger.Error(ctx, "failed to initialize checkpoint store", logging.Err(err))
		os.Exit(1)
	}
	// uploads are not persisted across restarts, so older checkpoints are orphans
	if n := artifacts.CleanupOrphaned(nil); n > 0 {
		logger.Info(ctx, "removed orphaned checkpoints", logging.Int("files", n))
	}

	collector, err := observability.NewPipelineCollector(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error(ctx, "failed to register metrics", logging.Err(err))
		os.Exit(1)
	}

	runner := pipeline.NewRunner(logger, collector)
	sessionMgr := session.NewManager(runner, session.Config{
		TempDir:     cfg.Storage.TempDirectory,
		MaxSessions: cfg.Processing.MaxSessions,
		MaxRateHz:   cfg.Processing.MaxRateHz,
		SampleStore: storage.SampleStoreOptions{
			Threads:     cfg.Processing.DuckDBThreads,
			MemoryLimit: cfg.Processing.DuckDBMemoryLimit,
		},
		Artifacts: artifacts,
		Logger:    logger,
	})

	// Start background session cleanup
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Processing.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				sessionMgr.CleanupOldSessions(time.Duration(cfg.Processing.SessionTimeoutMinutes) * time.Minute)
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.SetupMiddleware(e)

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))
	e.Use(api.RequestLogger(logger, collector, cfg.Logging.RequestLogging))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.Contains(path, "/upload") ||
				strings.HasSuffix(path, "/progress") ||
				strings.HasSuffix(path, "/fdr")
		},
		ErrorMessage: "Request timeout - query took too long",
	}))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Accept") == "text/event-stream"
		},
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:      fileStore,
		SessionMgr: sessionMgr,
		Artifacts:  artifacts,
		Files: api.FileHandlerOptions{
			AllowedExtensions: cfg.AllowedExtensions(),
			AllowDeletion:     cfg.Storage.AllowFileDeletion,
		},
		Defaults: api.ReplayDefaults{
			RateHz:       cfg.Processing.RateHz,
			AltitudeUnit: cfg.Processing.AltitudeUnit,
		},
		Metrics: collector.Handler(),
		Version: Version,
	}))

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Flight Data Replay Server                       ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", *configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.Storage.DataDirectory)
	fmt.Printf("║  Rate:      %-46s║\n", fmt.Sprintf("%g Hz (%s)", cfg.Processing.RateHz, cfg.Processing.AltitudeUnit))
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "server stopped", logging.Err(err))
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info(ctx, "shutting down")

	stopCleanup()
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "graceful shutdown failed", logging.Err(err))
	}
	sessionMgr.Close()
}

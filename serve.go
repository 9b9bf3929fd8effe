package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/giygas/prescription-analyzer/config"
	"github.com/giygas/prescription-analyzer/handlers"
	"github.com/giygas/prescription-analyzer/health"
	"github.com/giygas/prescription-analyzer/logging"
	"github.com/giygas/prescription-analyzer/scheduler"
	"github.com/giygas/prescription-analyzer/server"
	"github.com/giygas/prescription-analyzer/validation"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API server.

Endpoints:
  - POST /process-prescription      - multipart image upload
  - POST /api/generic-alternatives  - JSON list of medicines
  - POST /medicine-info             - scraped medicine information
  - GET  /prices/{medicine}         - pharmacy price comparison
  - GET  /health, /metrics

The server stops on SIGINT or SIGTERM and flushes the generics cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	closeLogs := initLogging(cfg, os.Stdout)
	defer closeLogs()

	logging.Info("Configuration loaded",
		"env", cfg.Env,
		"ocr_method", cfg.OCRMethod,
		"fallback_enabled", cfg.FallbackEnabled,
		"cache_file", cfg.CacheFile,
	)

	a := newApp(cfg)
	defer func() {
		if err := a.Close(); err != nil {
			logging.Error("Failed to release resources", "error", err)
		}
	}()

	healthChecker := health.NewHealthChecker(cfg.OCRMethod, cfg.FallbackEnabled, a.cache, a.providers...)

	sched := scheduler.NewScheduler(a.cache, healthChecker, scheduler.DefaultIntervals)
	if err := sched.Start(); err != nil {
		logging.Error("Failed to start scheduler", "error", err)
		return err
	}
	defer sched.Stop()

	handler := handlers.NewHTTPHandler(handlers.Dependencies{
		Analyzer:   a.analyzer,
		Resolver:   a.resolver,
		Scraper:    a.scraper,
		Health:     healthChecker,
		Validator:  validation.NewValidator(),
		OCRMethod:  cfg.OCRMethod,
		MaxUpload:  cfg.MaxRequestBody,
		SitemapURL: cfg.SitemapURL,
	})
	srv := server.NewServer(cfg, handler)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logging.Error("Server failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logging.Info("Server exited")
	return nil
}

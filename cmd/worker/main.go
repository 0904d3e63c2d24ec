// Package main is the entry point for the SkillForge LMS background worker.
//
// The worker owns the periodic jobs that the request path deliberately does
// not block on:
// - Backfilling PDF artifacts for certificates whose inline render failed
//
// Certificate issuance itself stays in the API server; the worker only
// repairs side effects, so running zero or many workers never affects
// correctness.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/skillforge/skillforge-lms/config"

	// Infrastructure layer
	"github.com/skillforge/skillforge-lms/internal/infrastructure/persistence/postgres"
	"github.com/skillforge/skillforge-lms/internal/infrastructure/scheduler"
	"github.com/skillforge/skillforge-lms/internal/infrastructure/scheduler/jobs"
	"github.com/skillforge/skillforge-lms/internal/infrastructure/service"

	// Packages
	"github.com/skillforge/skillforge-lms/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting SkillForge LMS worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
	)

	if !cfg.Scheduler.Enabled {
		return fmt.Errorf("scheduler is disabled, nothing for the worker to do")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (the worker needs an up to date schema too)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REPOSITORIES & SERVICES
	// The worker needs just enough of the issuance stack to re-render
	// artifacts: the certificate store and a renderer client.
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing services...")
	contentRepo := postgres.NewContentRepository(dbConn)
	progressRepo := postgres.NewProgressRepository(dbConn)
	submissionRepo := postgres.NewSubmissionRepository(dbConn)
	certRepo := postgres.NewCertificateRepository(dbConn)

	if cfg.Renderer.BaseURL == "" {
		return fmt.Errorf("RENDERER_BASE_URL is required for the worker")
	}
	renderer := service.NewHTTPRenderer(cfg.Renderer.BaseURL, func(name string, from, to circuitbreaker.State) {
		log.Warn("renderer circuit state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	}).WithTimeout(cfg.Renderer.RequestTimeout)

	// Ledger reads only, no cache: the backfill job never touches summaries.
	aggregator := service.NewProgressAggregator(contentRepo, progressRepo, nil, log)

	issuer := service.NewCertificateIssuer(
		aggregator,
		contentRepo,
		submissionRepo,
		certRepo,
		renderer,
		nil, // issuance notifications are sent by the API server
		nil,
		[]byte(cfg.Certificate.Secret),
		log,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SCHEDULER & JOBS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing scheduler...")
	sched := scheduler.NewScheduler(log)

	renderJob := jobs.NewRenderPendingArtifactsJob(certRepo, issuer, log, jobs.RenderPendingArtifactsConfig{
		Timeout: cfg.Scheduler.JobTimeout,
	})
	if err := sched.Register(renderJob, scheduler.NewIntervalSchedule(cfg.Scheduler.RenderArtifactsInterval)); err != nil {
		return fmt.Errorf("failed to register render job: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("SkillForge LMS worker is running",
		"render_interval", cfg.Scheduler.RenderArtifactsInterval.String(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler gracefully", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configures structured logging from the observability settings.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if cfg.App.Debug || cfg.Observability.LogLevel == "debug" {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

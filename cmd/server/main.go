// Package main is the entry point of the SkillForge LMS API server.
//
// The server owns the whole request path: the step completion ledger, the
// cached progress reads, the submission review workflow and certificate
// verification. Certification runs inside this process too, triggered by
// domain events published after each committed write.
//
// The architecture follows Clean Architecture and DDD:
// - Domain: pure business logic without external dependencies
// - Application: use case orchestration (Commands/Queries/Event Handlers)
// - Infrastructure: repositories, cache, messaging, external services
// - Interface: HTTP handlers
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/skillforge/skillforge-lms/config"

	// Application layer
	"github.com/skillforge/skillforge-lms/internal/application/command"
	"github.com/skillforge/skillforge-lms/internal/application/eventhandler"
	"github.com/skillforge/skillforge-lms/internal/application/query"

	// Domain layer
	"github.com/skillforge/skillforge-lms/internal/domain/shared"

	// Infrastructure layer
	"github.com/skillforge/skillforge-lms/internal/infrastructure/messaging"
	"github.com/skillforge/skillforge-lms/internal/infrastructure/persistence/postgres"
	"github.com/skillforge/skillforge-lms/internal/infrastructure/persistence/redis"
	"github.com/skillforge/skillforge-lms/internal/infrastructure/service"

	// Interface layer
	httpserver "github.com/skillforge/skillforge-lms/internal/interface/http"
	"github.com/skillforge/skillforge-lms/internal/interface/http/handlers"

	// Packages
	"github.com/skillforge/skillforge-lms/pkg/circuitbreaker"
	"github.com/skillforge/skillforge-lms/pkg/logger"
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
	log.Info("starting SkillForge LMS API server",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
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
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("running database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	status, err := migrator.Status(ctx)
	if err != nil {
		log.Warn("failed to get migration status", "error", err)
	} else {
		appliedCount := 0
		for _, m := range status {
			if m.IsApplied {
				appliedCount++
			}
		}
		log.Info("migrations completed", "applied", appliedCount, "total", len(status))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional, progress reads fall back to the ledger without it)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var progressCache *redis.ProgressCache
	var certCache *redis.CertificateCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			progressCache = redis.NewProgressCache(redisCache, log)
			certCache = redis.NewCertificateCache(redisCache, log)
			log.Info("Redis connection established")
		}
	} else {
		log.Info("Redis disabled by configuration, serving from the ledger only")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	contentRepo := postgres.NewContentRepository(dbConn)
	progressRepo := postgres.NewProgressRepository(dbConn)
	submissionRepo := postgres.NewSubmissionRepository(dbConn)
	certRepo := postgres.NewCertificateRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS & DISPATCHER
	// Delivery is synchronous unless the async flag is on: the certification
	// trigger then runs before the write request returns, so a completing
	// write produces the certificate in-line.
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	busCfg := messaging.DefaultConfig()
	busCfg.Logger = log
	busCfg.AsyncMode = cfg.Features.IsEnabled(config.FeatureEventsAsyncDelivery, nil)
	if busCfg.AsyncMode {
		log.Info("async event delivery enabled, certificates may trail the triggering write")
	}
	eventBus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	dispatcherCfg := messaging.DefaultDispatcherConfig(eventBus)
	dispatcherCfg.Logger = log
	dispatcher := messaging.NewDispatcher(dispatcherCfg)
	dispatcher.Use(messaging.RecoveryMiddleware(log))
	dispatcher.Use(messaging.LoggingMiddleware(log))
	defer dispatcher.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing services...")
	aggregator := service.NewProgressAggregator(contentRepo, progressRepo, progressCache, log)

	var renderer service.ArtifactRenderer
	switch {
	case cfg.Renderer.BaseURL == "":
		log.Info("no renderer configured, certificate PDFs will be backfilled by the worker")
	case !cfg.Features.IsEnabled(config.FeatureCertificateInlineRender, nil):
		log.Info("inline rendering disabled by feature flag, certificate PDFs will be backfilled by the worker")
	default:
		renderer = service.NewHTTPRenderer(cfg.Renderer.BaseURL, func(name string, from, to circuitbreaker.State) {
			log.Warn("renderer circuit state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		}).WithTimeout(cfg.Renderer.RequestTimeout)
	}

	var notifier service.Notifier
	if cfg.Features.IsEnabled(config.FeatureNotifyCertificateIssued, nil) {
		var mailer service.Mailer
		if cfg.Mail.Enabled {
			mailer = service.NewSMTPMailer(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username, cfg.Mail.Password, cfg.Mail.From)
		} else {
			mailer = service.NewLogMailer(log)
		}
		notifier = service.NewEmailNotifier(mailer, log)
	} else {
		log.Info("issuance notifications disabled by feature flag")
	}

	issuer := service.NewCertificateIssuer(
		aggregator,
		contentRepo,
		submissionRepo,
		certRepo,
		renderer,
		notifier,
		eventBus,
		[]byte(cfg.Certificate.Secret),
		log,
	)
	if certCache != nil {
		issuer = issuer.WithVerificationCache(certCache)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. APPLICATION LAYER (Commands & Queries)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")
	setStepCmd := command.NewSetStepCompletionHandler(contentRepo, progressRepo, aggregator, eventBus, log)
	submitWorkCmd := command.NewSubmitWorkHandler(contentRepo, submissionRepo, eventBus, log)
	reviewCmd := command.NewReviewSubmissionHandler(submissionRepo, eventBus, log)
	toggleItemCmd := command.NewToggleImprovementHandler(submissionRepo)

	dashboardCache := progressCache
	if !cfg.Features.IsEnabled(config.FeatureProgressDashboardCache, nil) {
		log.Info("dashboard caching disabled by feature flag")
		dashboardCache = nil
	}

	lessonQuery := query.NewGetLessonProgressHandler(aggregator, submissionRepo)
	courseQuery := query.NewGetCourseProgressHandler(contentRepo, aggregator, submissionRepo, certRepo)
	dashboardQuery := query.NewGetDashboardHandler(contentRepo, aggregator, certRepo, dashboardCache)
	certQuery := query.NewGetCertificateHandler(certRepo)
	if certCache != nil {
		certQuery = certQuery.WithVerificationCache(certCache)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("registering event handlers...")
	trigger := eventhandler.NewCertificationTriggerHandler(issuer, log, eventhandler.DefaultCertificationTriggerConfig())

	if err := dispatcher.Register(shared.EventStepCompletionChanged, "certification_trigger", trigger.HandleStepCompletionChanged); err != nil {
		return fmt.Errorf("failed to register step handler: %w", err)
	}
	if err := dispatcher.Register(shared.EventSubmissionApproved, "certification_trigger", trigger.HandleSubmissionApproved); err != nil {
		return fmt.Errorf("failed to register approval handler: %w", err)
	}
	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.NewDatabaseCheck(dbConn))
	if redisCache != nil {
		health.AddCheck("cache", handlers.NewCacheCheck(redisCache))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server...")
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.Server.Host
	httpCfg.Port = cfg.Server.Port
	httpCfg.ReadTimeout = cfg.Server.ReadTimeout
	httpCfg.WriteTimeout = cfg.Server.WriteTimeout
	httpCfg.IdleTimeout = cfg.Server.IdleTimeout
	httpCfg.EnableCORS = cfg.Server.EnableCORS
	httpCfg.AllowedOrigins = cfg.Server.AllowedOrigins
	httpCfg.RateLimitPerMinute = cfg.Server.RateLimitPerMinute
	httpCfg.APIKeys = cfg.Server.APIKeys

	httpDeps := httpserver.Dependencies{
		SetStepCompletionHandler: setStepCmd,
		SubmitWorkHandler:        submitWorkCmd,
		ReviewSubmissionHandler:  reviewCmd,
		ToggleImprovementHandler: toggleItemCmd,
		GetLessonProgressHandler: lessonQuery,
		GetCourseProgressHandler: courseQuery,
		GetDashboardHandler:      dashboardQuery,
		GetCertificateHandler:    certQuery,
		CertificateIssuer:        issuer,
		Logger:                   logger.Default(),
		HealthChecker:            health,
	}
	if redisCache != nil {
		// Assigned only when connected; a typed nil would defeat the limiter's
		// own nil check.
		httpDeps.RateCounter = redisCache
	}

	httpServer := httpserver.NewServer(httpCfg, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 13. START
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", "address", httpServer.Address())
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 14. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("SkillForge LMS API server is running", "address", httpServer.Address())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		log.Error("service error", "error", err)
		return err
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		return err
	}

	// Dispatcher, event bus and database close through the defers above.

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configures structured logging from the observability settings.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Observability.LogLevel),
	}
	if cfg.App.Debug {
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

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apphttp "leadcrm_backend/internal/http"
	"leadcrm_backend/internal/http/router"
	"leadcrm_backend/internal/inbound"
	"leadcrm_backend/internal/leads/repository"
	"leadcrm_backend/internal/nurturing"
	"leadcrm_backend/internal/realtime"
	"leadcrm_backend/internal/whatsapp"
	"leadcrm_backend/migrations"
	"leadcrm_backend/platform/config"
	"leadcrm_backend/platform/db"
	"leadcrm_backend/platform/errtrack"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"
	"leadcrm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "version", version)

	if err := errtrack.Init(cfg.SentryDSN, cfg.Env, version); err != nil {
		log.Warn("error tracking disabled", "error", err)
	}
	defer errtrack.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if cfg.MigrationsEnabled {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, pool, migrations.FS)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	var publisher *realtime.Publisher
	if rdb := newRedisClient(ctx, cfg, log); rdb != nil {
		defer func() { _ = rdb.Close() }()
		publisher = realtime.NewPublisher(rdb, log)
	}

	catalog, err := loadCatalog(cfg.GetNurturingPlansFile(), log)
	if err != nil {
		log.Error("failed to load nurturing plans", "error", err)
		panic("failed to load nurturing plans: " + err.Error())
	}

	whatsappClient := whatsapp.NewClient(cfg, log)
	if whatsappClient == nil {
		log.Warn("WA_GATEWAY_URL not configured; outbound whatsapp disabled")
	}

	val := validator.New()
	m := metrics.New()
	repo := repository.New(pool)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	inboundSvc := inbound.NewService(inbound.NewStore(repo), whatsappClient, publisher, catalog, log, m, inbound.Options{
		OptOutWindow: cfg.GetOptOutWindow(),
	})
	inboundModule := inbound.NewModule(inboundSvc, val, cfg.GetWAWebhookKey(), log, m)
	if cfg.GetWAWebhookKey() == "" {
		log.Warn("WA_WEBHOOK_KEY not configured; inbound webhook is unauthenticated")
	}

	nurturingModule := nurturing.NewModule(repo, log, m)
	realtimeModule := realtime.NewModule(publisher, repo, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:  cfg,
		Logger:  log,
		Health:  db.NewPoolAdapter(pool),
		Metrics: m,
		Modules: []apphttp.Module{
			inboundModule,
			nurturingModule,
			realtimeModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			errtrack.Capture(ctx, err, map[string]string{"component": "http"})
			errtrack.Flush()
			panic("server error: " + err.Error())
		}
	}
}

// loadCatalog tolerates a missing file so the API can run without nurturing
// plans; a present but invalid file is an error.
func loadCatalog(path string, log *logger.Logger) (*nurturing.Catalog, error) {
	catalog, err := nurturing.LoadCatalog(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("nurturing plans file not found; new leads get no plan", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	log.Info("nurturing plans loaded", "path", path, "plans", catalog.Len())
	return catalog, nil
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("%s: %w", name, lastErr)
}

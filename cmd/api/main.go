package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rental_inspections_backend/internal/adapters"
	"rental_inspections_backend/internal/adapters/storage"
	"rental_inspections_backend/internal/email"
	"rental_inspections_backend/internal/events"
	"rental_inspections_backend/internal/evidence"
	apphttp "rental_inspections_backend/internal/http"
	"rental_inspections_backend/internal/http/router"
	"rental_inspections_backend/internal/inspections"
	"rental_inspections_backend/internal/inspections/authz"
	"rental_inspections_backend/internal/notification"
	"rental_inspections_backend/internal/notification/outbox"
	"rental_inspections_backend/migrations"
	"rental_inspections_backend/platform/config"
	"rental_inspections_backend/platform/db"
	"rental_inspections_backend/platform/idempotency"
	"rental_inspections_backend/platform/logger"
	"rental_inspections_backend/platform/retry"
	"rental_inspections_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	startupAttempts   = 5
	startupBaseDelay  = 2 * time.Second
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MigrationsEnabled {
		err := retry.Do(ctx, log, "database migrations", startupAttempts, startupBaseDelay, func() error {
			return db.RunMigrations(ctx, cfg, migrations.FS)
		})
		must(log, "run database migrations", err)
		log.Info("database migrations complete")
	}

	pool, err := retry.Value(ctx, log, "database connection", startupAttempts, startupBaseDelay, func() (*pgxpool.Pool, error) {
		return db.NewPool(ctx, cfg)
	})
	must(log, "connect to database", err)
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	gateway := evidence.NewGateway(initObjectStore(ctx, cfg, log), cfg, log)

	idempotencyStore, closeIdempotency := initIdempotency(ctx, cfg, log)
	defer closeIdempotency()

	sender, err := email.NewSender(cfg)
	must(log, "initialize email sender", err)

	// Events become outbox rows here; the scheduler process delivers them.
	notification.New(outbox.New(pool), adapters.NewUserDirectory(pool), sender, cfg, log).RegisterHandlers(eventBus)

	inspectionsModule := inspections.NewModule(pool, eventBus, gateway, authz.MustNew(), validator.New(), cfg, log)

	engine := router.New(&apphttp.App{
		Config:      cfg,
		Logger:      log,
		Health:      db.PoolAdapter{Pool: pool},
		EventBus:    eventBus,
		Idempotency: idempotencyStore,
		Modules:     []apphttp.Module{inspectionsModule},
	})
	serve(ctx, log, &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: readHeaderTimeout,
	})
}

func serve(ctx context.Context, log *logger.Logger, srv *http.Server) {
	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if !errors.Is(err, http.ErrServerClosed) {
			must(log, "serve http", err)
		}
	}
}

// initObjectStore returns nil when MinIO is not configured; the gateway then
// answers every upload with an upload error.
func initObjectStore(ctx context.Context, cfg *config.Config, log *logger.Logger) evidence.ObjectStore {
	if !cfg.IsMinIOEnabled() {
		log.Warn("MINIO_ENDPOINT not configured; evidence uploads disabled")
		return nil
	}
	store, err := storage.NewMinIOStore(cfg)
	must(log, "initialize storage service", err)

	bucket := cfg.GetEvidenceBucket()
	err = retry.Do(ctx, log, "ensure evidence bucket", startupAttempts, startupBaseDelay, func() error {
		return store.EnsureBucketExists(ctx, bucket)
	})
	must(log, "ensure evidence bucket", err)
	log.Info("storage service initialized", "evidenceBucket", bucket)
	return store
}

func initIdempotency(ctx context.Context, cfg config.IdempotencyConfig, log *logger.Logger) (*idempotency.Store, func()) {
	if !cfg.IsIdempotencyEnabled() {
		log.Warn("REDIS_URL not configured; idempotency keys disabled")
		return nil, func() {}
	}
	client, err := idempotency.NewRedisClient(ctx, cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to connect idempotency store; continuing without it", "error", err)
		return nil, func() {}
	}
	return idempotency.NewStore(client, cfg.GetIdempotencyTTL()), func() { _ = client.Close() }
}

func must(log *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	log.Error("failed to "+step, "error", err)
	panic("failed to " + step + ": " + err.Error())
}

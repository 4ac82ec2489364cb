package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rental_inspections_backend/internal/adapters"
	"rental_inspections_backend/internal/email"
	"rental_inspections_backend/internal/events"
	"rental_inspections_backend/internal/notification"
	"rental_inspections_backend/internal/notification/outbox"
	"rental_inspections_backend/internal/scheduler"
	"rental_inspections_backend/platform/config"
	"rental_inspections_backend/platform/db"
	"rental_inspections_backend/platform/logger"
	"rental_inspections_backend/platform/retry"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The scheduler process owns notification delivery: it claims due outbox
// rows, queues them on asynq, and consumes the queue with the same
// notification module the API uses to write them.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "queue", cfg.GetAsynqQueueName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := retry.Value(ctx, log, "database connection", 5, 2*time.Second, func() (*pgxpool.Pool, error) {
		return db.NewPool(ctx, cfg)
	})
	must(log, "connect to database", err)
	defer pool.Close()

	sender, err := email.NewSender(cfg)
	must(log, "initialize email sender", err)

	eventBus := events.NewInMemoryBus(log)
	outboxRepo := outbox.New(pool)
	notification.New(outboxRepo, adapters.NewUserDirectory(pool), sender, cfg, log).RegisterHandlers(eventBus)

	dispatcher, err := scheduler.NewNotificationOutboxDispatcher(cfg, outboxRepo, log)
	must(log, "initialize outbox dispatcher", err)
	defer func() { _ = dispatcher.Close() }()
	go dispatcher.Run(ctx)

	go scheduler.NewNotificationOutboxCleanup(outboxRepo, cfg, log).Run(ctx)

	worker, err := scheduler.NewWorker(cfg, eventBus, log)
	must(log, "initialize scheduler worker", err)
	worker.Run(ctx)
}

func must(log *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	log.Error("failed to "+step, "error", err)
	panic("failed to " + step + ": " + err.Error())
}

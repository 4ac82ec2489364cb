package scheduler

import (
	"context"
	"time"

	"rental_inspections_backend/internal/notification/outbox"
	"rental_inspections_backend/platform/config"
	"rental_inspections_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	defaultDispatchInterval = 2 * time.Second
	dispatchBatchSize       = 50
)

// maxTaskRetries bounds queue-level retries. Only failures before a row is
// marked processing reach them; delivery retries are rescheduled on the row.
const maxTaskRetries = 3

// OutboxClaimer hands out due outbox records exactly once.
type OutboxClaimer interface {
	ClaimPending(ctx context.Context, limit int) ([]outbox.Record, error)
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NotificationOutboxDispatcher polls the outbox and turns due records into
// asynq tasks.
type NotificationOutboxDispatcher struct {
	client   taskEnqueuer
	closer   func() error
	queue    string
	repo     OutboxClaimer
	log      *logger.Logger
	interval time.Duration
}

func NewNotificationOutboxDispatcher(cfg config.SchedulerConfig, repo OutboxClaimer, log *logger.Logger) (*NotificationOutboxDispatcher, error) {
	opt, err := clientOpt(cfg)
	if err != nil {
		return nil, err
	}

	client := asynq.NewClient(opt)
	return &NotificationOutboxDispatcher{
		client:   client,
		closer:   client.Close,
		queue:    queueName(cfg),
		repo:     repo,
		log:      log,
		interval: defaultDispatchInterval,
	}, nil
}

func (d *NotificationOutboxDispatcher) Close() error {
	if d == nil || d.closer == nil {
		return nil
	}
	return d.closer()
}

func (d *NotificationOutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d.dispatch(ctx)
	}
}

// dispatch claims one batch. Records that cannot be enqueued go back to
// pending for the next tick.
func (d *NotificationOutboxDispatcher) dispatch(ctx context.Context) int {
	records, err := d.repo.ClaimPending(ctx, dispatchBatchSize)
	if err != nil {
		d.log.DatabaseError("claim notification outbox", err)
		return 0
	}

	enqueued := 0
	for _, rec := range records {
		task, err := NewNotificationOutboxDueTask(NotificationOutboxDuePayload{
			OutboxID: rec.ID.String(),
		})
		if err != nil {
			msg := err.Error()
			_ = d.repo.MarkPending(ctx, rec.ID, &msg)
			continue
		}

		_, err = d.client.EnqueueContext(ctx, task, asynq.ProcessAt(rec.RunAt), asynq.Queue(d.queue), asynq.MaxRetry(maxTaskRetries))
		if err != nil {
			d.log.Warn("outbox enqueue failed", "outboxId", rec.ID.String(), "error", err)
			msg := err.Error()
			_ = d.repo.MarkPending(ctx, rec.ID, &msg)
			continue
		}
		enqueued++
	}
	return enqueued
}

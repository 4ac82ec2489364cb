package scheduler

import (
	"context"
	"time"

	"rental_inspections_backend/platform/config"
	"rental_inspections_backend/platform/logger"
)

const (
	defaultOutboxCleanupInterval = time.Hour
	defaultSucceededRetention    = 14 * 24 * time.Hour
	defaultFailedRetention       = 30 * 24 * time.Hour
)

// OutboxPurger deletes finished outbox records.
type OutboxPurger interface {
	DeleteFinishedBefore(ctx context.Context, succeededBefore, failedBefore time.Time) (int64, error)
}

// NotificationOutboxCleanup periodically removes old finished outbox records.
type NotificationOutboxCleanup struct {
	repo               OutboxPurger
	log                *logger.Logger
	interval           time.Duration
	succeededRetention time.Duration
	failedRetention    time.Duration
	now                func() time.Time
}

// NewNotificationOutboxCleanup reads its windows from cfg; zero values fall
// back to hourly runs with 14 and 30 day retention.
func NewNotificationOutboxCleanup(repo OutboxPurger, cfg config.OutboxRetentionConfig, log *logger.Logger) *NotificationOutboxCleanup {
	interval := cfg.GetOutboxCleanupInterval()
	succeededRetention := cfg.GetOutboxSucceededRetention()
	failedRetention := cfg.GetOutboxFailedRetention()
	if interval <= 0 {
		interval = defaultOutboxCleanupInterval
	}
	if succeededRetention <= 0 {
		succeededRetention = defaultSucceededRetention
	}
	if failedRetention <= 0 {
		failedRetention = defaultFailedRetention
	}

	return &NotificationOutboxCleanup{
		repo:               repo,
		log:                log,
		interval:           interval,
		succeededRetention: succeededRetention,
		failedRetention:    failedRetention,
		now:                time.Now,
	}
}

func (c *NotificationOutboxCleanup) Run(ctx context.Context) {
	if c == nil || c.repo == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *NotificationOutboxCleanup) cleanup(ctx context.Context) {
	now := c.now()
	succeededBefore := now.Add(-c.succeededRetention)
	failedBefore := now.Add(-c.failedRetention)

	deleted, err := c.repo.DeleteFinishedBefore(ctx, succeededBefore, failedBefore)
	if err != nil {
		c.log.DatabaseError("purge notification outbox", err)
		return
	}

	if deleted > 0 {
		c.log.Info("notification outbox cleanup deleted finished records", "deleted", deleted)
	}
}

package http

import (
	"context"

	"rental_inspections_backend/internal/events"
	"rental_inspections_backend/platform/config"
	"rental_inspections_backend/platform/idempotency"
	"rental_inspections_backend/platform/logger"
)

// RouterConfig is the slice of configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs the readiness probe.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is everything main wires up before the router is built.
type App struct {
	Config   RouterConfig
	Logger   *logger.Logger
	Health   HealthChecker
	EventBus events.Bus
	// Idempotency replays POST responses by Idempotency-Key. Nil disables it.
	Idempotency *idempotency.Store
	Modules     []Module
}

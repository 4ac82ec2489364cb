// Package inspections provides the rental inspection and dispute module.
package inspections

import (
	"rental_inspections_backend/internal/adapters"
	"rental_inspections_backend/internal/events"
	apphttp "rental_inspections_backend/internal/http"
	"rental_inspections_backend/internal/inspections/authz"
	"rental_inspections_backend/internal/inspections/handler"
	"rental_inspections_backend/internal/inspections/ports"
	"rental_inspections_backend/internal/inspections/repository"
	"rental_inspections_backend/internal/inspections/service"
	"rental_inspections_backend/platform/config"
	"rental_inspections_backend/platform/logger"
	"rental_inspections_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the inspections domain module
type Module struct {
	handler *handler.Handler
}

// NewModule creates a new inspections module with all dependencies wired
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, gateway ports.EvidenceGateway, guard *authz.Guard, val *validator.Validator, cfg config.HTTPConfig, log *logger.Logger) *Module {
	repo := repository.New(pool)
	bookings := adapters.NewBookingReader(pool)
	svc := service.New(repo, bookings, gateway, guard, eventBus, log)

	return &Module{
		handler: handler.New(svc, val, cfg.GetMaxUploadMemory(), cfg.GetMaxRequestBodySize(), log),
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "inspections"
}

// RegisterRoutes registers the module's routes
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
	m.handler.RegisterAdminRoutes(ctx.Admin)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)

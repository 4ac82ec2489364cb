// Package http defines how bounded contexts plug their routes into the
// shared gin engine.
package http

import (
	"rental_inspections_backend/platform/config"

	"github.com/gin-gonic/gin"
)

// Module is an HTTP-facing bounded context.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext hands modules the prepared route groups. Protected already
// runs AuthRequired (and idempotency replay when enabled); Admin adds the
// admin role check under /api/v1/admin.
type RouterContext struct {
	Engine         *gin.Engine
	V1             *gin.RouterGroup
	Protected      *gin.RouterGroup
	Admin          *gin.RouterGroup
	Config         config.JWTConfig
	AuthMiddleware gin.HandlerFunc
}

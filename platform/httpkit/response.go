package httpkit

import (
	"errors"
	"net/http"

	"rental_inspections_backend/platform/apperr"
	"rental_inspections_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Envelope is the uniform response body for every endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON sends a successful envelope with the given status code.
func JSON(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// OK sends a 200 OK envelope.
func OK(c *gin.Context, message string, data any) {
	JSON(c, http.StatusOK, message, data)
}

// Created sends a 201 Created envelope.
func Created(c *gin.Context, message string, data any) {
	JSON(c, http.StatusCreated, message, data)
}

// Error sends an error envelope with the given status code and message.
func Error(c *gin.Context, status int, message string, details any) {
	c.JSON(status, Envelope{
		Success: false,
		Message: message,
		Error:   http.StatusText(status),
		Details: details,
	})
}

// Abort sends an error envelope and stops the handler chain.
func Abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Envelope{
		Success: false,
		Message: message,
		Error:   http.StatusText(status),
	})
}

// HandleError writes err as an envelope and reports whether there was one.
// Untyped errors become a generic 500; incidents are logged with their cause.
func HandleError(c *gin.Context, log *logger.Logger, err error) bool {
	if err == nil {
		return false
	}

	var domainErr *apperr.Error
	if !errors.As(err, &domainErr) {
		domainErr = apperr.Infrastructure(c.FullPath(), err)
	}

	if domainErr.IsIncident() && log != nil {
		log.WithContext(c.Request.Context()).Incident(c.Request.Method, c.Request.URL.Path, domainErr.Kind.String(), domainErr.HTTPStatus(), err, c.ClientIP())
	}

	c.JSON(domainErr.HTTPStatus(), Envelope{
		Success: false,
		Message: domainErr.Message,
		Error:   domainErr.Kind.String(),
		Details: domainErr.Details,
	})
	return true
}

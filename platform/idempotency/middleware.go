package idempotency

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"rental_inspections_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderKey is the request header clients use to tag a retryable request.
	HeaderKey = "Idempotency-Key"
	// HeaderReplayed marks a response served from the store.
	HeaderReplayed = "Idempotent-Replayed"

	maxKeyLength = 255
)

type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// backend is the part of Store the middleware uses.
type backend interface {
	Lookup(ctx context.Context, key string) (*Record, error)
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
	Save(ctx context.Context, key string, rec Record) error
}

// Middleware replays the stored response of a previous POST with the same
// key for the same caller and path. Requests without the header pass
// through unchanged. Server errors are not stored so the client can retry.
// userKey returns the caller scope; requests with an empty scope pass through.
func Middleware(store *Store, userKey func(*gin.Context) string, log *logger.Logger) gin.HandlerFunc {
	if store == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware(store, userKey, log)
}

func middleware(store backend, userKey func(*gin.Context) string, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderKey))
		if raw == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if len(raw) > maxKeyLength {
			abort(c, http.StatusBadRequest, "idempotency key too long")
			return
		}
		scope := userKey(c)
		if scope == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := scope + ":" + c.Request.URL.Path + ":" + raw

		rec, err := store.Lookup(ctx, key)
		if err != nil {
			if log != nil {
				log.WithContext(ctx).Warn("idempotency lookup failed", "error", err)
			}
			c.Next()
			return
		}
		if rec != nil {
			replay(c, rec)
			return
		}

		if err := store.Acquire(ctx, key); err != nil {
			if errors.Is(err, ErrInFlight) {
				abort(c, http.StatusConflict, err.Error())
				return
			}
			if log != nil {
				log.WithContext(ctx).Warn("idempotency lock failed", "error", err)
			}
			c.Next()
			return
		}
		detached := context.WithoutCancel(ctx)
		defer func() { _ = store.Release(detached, key) }()

		// A duplicate may have finished between the lookup and the lock.
		if rec, err := store.Lookup(ctx, key); err == nil && rec != nil {
			replay(c, rec)
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status >= http.StatusInternalServerError {
			return
		}
		if err := store.Save(detached, key, Record{
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		}); err != nil && log != nil {
			log.WithContext(ctx).Warn("idempotency save failed", "error", err)
		}
	}
}

func replay(c *gin.Context, rec *Record) {
	c.Header(HeaderReplayed, "true")
	c.Data(rec.Status, rec.ContentType, rec.Body)
	c.Abort()
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": message,
		"error":   http.StatusText(status),
	})
}

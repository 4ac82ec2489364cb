package httpkit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"rental_inspections_backend/platform/config"
	"rental_inspections_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// ContextUserIDKey is the gin context key for the authenticated user ID.
	ContextUserIDKey = "userID"
	// ContextRolesKey is the gin context key for the user's roles.
	ContextRolesKey = "roles"

	accessTokenType = "access"
	bearerPrefix    = "Bearer "
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// roleList accepts the roles claim as either a single string or an array.
type roleList []string

func (r *roleList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*r = roleList{single}
		return nil
	}
	var many []any
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	out := make(roleList, 0, len(many))
	for _, item := range many {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	*r = out
	return nil
}

type accessClaims struct {
	Type  string   `json:"type"`
	Roles roleList `json:"roles"`
	jwt.RegisteredClaims
}

// AuthRequired validates the bearer access token issued by the identity
// service and stores the caller's ID and roles on the gin context.
func AuthRequired(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, roles, err := authenticate(c.GetHeader("Authorization"), cfg.GetJWTAccessSecret())
		if err != nil {
			Abort(c, http.StatusUnauthorized, err.Error())
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Set(ContextRolesKey, roles)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.UserIDKey, userID.String()))
		c.Next()
	}
}

// RequireRole rejects callers lacking role with 403.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetIdentity(c).HasRole(role) {
			Abort(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Next()
	}
}

func authenticate(header, secret string) (uuid.UUID, []string, error) {
	raw, found := strings.CutPrefix(header, bearerPrefix)
	raw = strings.TrimSpace(raw)
	if !found || raw == "" {
		return uuid.Nil, nil, errMissingToken
	}

	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil || claims.Type != accessTokenType {
		return uuid.Nil, nil, errInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, nil, errInvalidToken
	}
	roles := []string(claims.Roles)
	if roles == nil {
		roles = []string{}
	}
	return userID, roles, nil
}

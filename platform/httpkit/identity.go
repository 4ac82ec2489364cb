// Package httpkit holds the gin middleware, response envelope and caller
// identity shared by every HTTP module.
package httpkit

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Role names carried in access token claims.
const (
	RoleAdmin     = "admin"
	RoleInspector = "inspector"
	RoleUser      = "user"
)

// Identity is the caller as established by AuthRequired.
type Identity interface {
	UserID() uuid.UUID
	Roles() []string
	HasRole(role string) bool
	IsAuthenticated() bool
}

type identity struct {
	userID        uuid.UUID
	roles         []string
	authenticated bool
}

func (i *identity) UserID() uuid.UUID        { return i.userID }
func (i *identity) Roles() []string          { return i.roles }
func (i *identity) HasRole(role string) bool { return slices.Contains(i.roles, role) }
func (i *identity) IsAuthenticated() bool    { return i.authenticated }

// PrimaryRole collapses a role list to the most privileged known role.
// Tokens without a known role act as plain users.
func PrimaryRole(id Identity) string {
	for _, role := range []string{RoleAdmin, RoleInspector} {
		if id.HasRole(role) {
			return role
		}
	}
	return RoleUser
}

// GetIdentity reads the caller from the gin context. The result is
// unauthenticated when AuthRequired has not run or set a malformed ID.
func GetIdentity(c *gin.Context) Identity {
	raw, _ := c.Get(ContextUserIDKey)
	uid, ok := raw.(uuid.UUID)
	if !ok {
		return &identity{}
	}
	rawRoles, _ := c.Get(ContextRolesKey)
	roles, _ := rawRoles.([]string)
	return &identity{userID: uid, roles: roles, authenticated: true}
}

// MustGetIdentity returns the caller or aborts with 401 and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		Abort(c, http.StatusUnauthorized, "unauthorized")
		return nil
	}
	return id
}

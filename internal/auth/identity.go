// Package auth resolves the caller's identity and enforces per-route role
// requirements before any store is touched. Authentication itself lives in an
// upstream collaborator; this service trusts the identity headers that
// collaborator forwards and only decides what the identity may do.
package auth

import (
	"github.com/gin-gonic/gin"
)

// Role is the coarse access level carried by an identity
type Role string

const (
	RoleAdmin  Role = "admin"
	RolePatron Role = "patron"
)

// Headers set by the upstream auth gateway.
const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-User-Role"
)

const identityKey = "auth.identity"

// Identity is the authenticated caller as resolved by the gateway
type Identity struct {
	UserID string
	Role   Role
}

// IdentityFrom returns the identity stored by the gate middleware, if any.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

func parseIdentity(c *gin.Context) (Identity, bool) {
	userID := c.GetHeader(HeaderUserID)
	role := Role(c.GetHeader(HeaderRole))

	if userID == "" {
		return Identity{}, false
	}
	if role != RoleAdmin && role != RolePatron {
		return Identity{}, false
	}

	return Identity{UserID: userID, Role: role}, true
}

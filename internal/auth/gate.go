package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Gate is the single place role requirements are declared and enforced.
// Rejections happen before handlers run, so they can have no side effects.
type Gate struct {
	issuePatronOnly bool
	log             *zap.Logger
}

// NewGate creates the policy gate. When issuePatronOnly is set, admin
// identities are refused the issue operation.
func NewGate(issuePatronOnly bool, logger *zap.Logger) *Gate {
	return &Gate{
		issuePatronOnly: issuePatronOnly,
		log:             logger,
	}
}

// Authenticate aborts with 401 unless the request carries a valid identity.
func (g *Gate) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := parseIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated identity holds one of
// the given roles. Must run after Authenticate.
func (g *Gate) RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		for _, role := range roles {
			if identity.Role == role {
				c.Next()
				return
			}
		}

		g.log.Warn("Operation forbidden for role",
			zap.String("user_id", identity.UserID),
			zap.String("role", string(identity.Role)),
			zap.String("path", c.FullPath()),
		)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	}
}

// IssuePolicy gates the issue operation. By default any authenticated identity
// may issue; the patron-only policy tightens that to patrons.
func (g *Gate) IssuePolicy() gin.HandlerFunc {
	if !g.issuePatronOnly {
		return func(c *gin.Context) { c.Next() }
	}
	return g.RequireRole(RolePatron)
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testRouter(gate *Gate) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.GET("/me", gate.Authenticate(), func(c *gin.Context) {
		identity, _ := IdentityFrom(c)
		c.String(http.StatusOK, "%s:%s", identity.UserID, identity.Role)
	})
	router.GET("/admin", gate.Authenticate(), gate.RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.POST("/issue", gate.Authenticate(), gate.IssuePolicy(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return router
}

func do(router *gin.Engine, method, path, userID string, role Role) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
		req.Header.Set(HeaderRole, string(role))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	router := testRouter(NewGate(false, zap.NewNop()))

	w := do(router, http.MethodGet, "/me", "alice", RolePatron)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice:patron", w.Body.String())
}

func TestAuthenticateMissingIdentity(t *testing.T) {
	router := testRouter(NewGate(false, zap.NewNop()))

	w := do(router, http.MethodGet, "/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateUnknownRole(t *testing.T) {
	router := testRouter(NewGate(false, zap.NewNop()))

	w := do(router, http.MethodGet, "/me", "alice", Role("superuser"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	router := testRouter(NewGate(false, zap.NewNop()))

	w := do(router, http.MethodGet, "/admin", "root", RoleAdmin)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/admin", "alice", RolePatron)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestIssuePolicyDefault(t *testing.T) {
	router := testRouter(NewGate(false, zap.NewNop()))

	// Any authenticated identity may issue by default.
	w := do(router, http.MethodPost, "/issue", "root", RoleAdmin)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodPost, "/issue", "alice", RolePatron)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIssuePolicyPatronOnly(t *testing.T) {
	router := testRouter(NewGate(true, zap.NewNop()))

	w := do(router, http.MethodPost, "/issue", "alice", RolePatron)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodPost, "/issue", "root", RoleAdmin)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

package httpapi

import (
	"time"

	"github.com/OmRakhade/library-admin/internal/auth"
	"github.com/OmRakhade/library-admin/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires routes to handlers with the policy gate in front of every
// protected operation, so authorization failures never reach a store.
func NewRouter(h *Handlers, gate *auth.Gate, m *metrics.Metrics, log *zap.Logger, requestTimeout time.Duration) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(
		gin.Recovery(),
		RequestID(),
		RequestLogger(log),
		Observe(m),
		RequestTimeout(requestTimeout),
	)

	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	books := router.Group("/books")
	{
		books.GET("", h.ListBooks)
		books.POST("", gate.Authenticate(), gate.RequireRole(auth.RoleAdmin), h.CreateBook)
		books.DELETE("/:id", gate.Authenticate(), gate.RequireRole(auth.RoleAdmin), h.DeleteBook)
		books.POST("/issue", gate.Authenticate(), gate.IssuePolicy(), h.IssueBook)
		books.POST("/return", gate.Authenticate(), h.ReturnBook)
		books.GET("/issued", gate.Authenticate(), h.ListIssued)
	}

	return router
}

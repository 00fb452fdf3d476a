// Package server assembles the gin engine: middleware chain, health check,
// and the route groups contributed by each feature package.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"surgeval-backend/internal/jobs"
	"surgeval-backend/internal/shared/config"
	"surgeval-backend/internal/shared/server/middleware"
	"surgeval-backend/internal/shared/server/respond"
	"surgeval-backend/internal/uploads"
)

// RouterDeps carries the handlers mounted on the router.
type RouterDeps struct {
	Jobs    *jobs.Handler
	Uploads *uploads.Handler
}

// NewRouter constructs the gin engine with middleware and routes registered.
func NewRouter(cfg config.Config, deps RouterDeps) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})

	if deps.Jobs != nil {
		deps.Jobs.Register(api)
		internal := api.Group("/internal", middleware.InternalAuth(cfg.ProcessSecret))
		deps.Jobs.RegisterInternal(internal)
	}
	if deps.Uploads != nil {
		deps.Uploads.Register(api)
	}

	return r
}

// Addr returns the listen address for the configured port.
func Addr(cfg config.Config) string {
	return ":" + cfg.Port
}

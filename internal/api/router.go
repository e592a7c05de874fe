// Package api provides the portal's HTTP API.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router wraps the Gin engine with portal handlers.
type Router struct {
	engine  *gin.Engine
	handler *Handler
}

// NewRouter creates a new API router.
func NewRouter(handler *Handler) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	// Middleware
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(LoggingMiddleware(handler.logger))

	r := &Router{
		engine:  engine,
		handler: handler,
	}

	r.setupRoutes()

	return r
}

// setupRoutes configures all API routes.
func (r *Router) setupRoutes() {
	// Health check
	r.engine.GET("/health", r.handler.HealthCheck)

	api := r.engine.Group("/api")
	{
		api.POST("/authorize-guest", r.handler.AuthorizeGuest)

		if r.handler.jwt == nil {
			return
		}

		api.POST("/admin/login", r.handler.AdminLogin)

		admin := api.Group("/admin")
		admin.Use(r.handler.AuthMiddleware())
		{
			admin.GET("/settings", r.handler.GetSettings)
			admin.PUT("/settings", r.handler.UpdateSettings)
			admin.POST("/controller/test", r.handler.TestController)

			if r.handler.guests != nil {
				admin.GET("/guests", r.handler.ListGuests)
				admin.GET("/stats", r.handler.GetStats)
			}
		}
	}
}

// Engine returns the underlying Gin engine.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}

// internal/app/router.go
package app

import (
	authHandler "github.com/rgavrysh/renovator-app-sub001/internal/handlers/auth"
	wsHandler "github.com/rgavrysh/renovator-app-sub001/internal/handlers/ws"
	"github.com/rgavrysh/renovator-app-sub001/internal/metrics"
	"github.com/rgavrysh/renovator-app-sub001/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	AuthHandler    *authHandler.AuthHandler
	WSHandler      *wsHandler.WSHandler
	AuthMiddleware *middleware.AuthMiddleware
	Metrics        *metrics.Metrics
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Metrics ====================
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Metrics.Registry, promhttp.HandlerOpts{})))

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.GET("/login", h.AuthHandler.Login)
		authPublic.GET("/callback", h.AuthHandler.Callback)
		authPublic.POST("/callback", h.AuthHandler.Callback)
		authPublic.POST("/refresh", h.AuthHandler.Refresh)
		authPublic.POST("/logout", h.AuthHandler.Logout)
	}

	// ==================== Authenticated Auth Routes ====================
	authProtected := api.Group("/auth")
	authProtected.Use(h.AuthMiddleware.Auth())
	{
		authProtected.GET("/me", h.AuthHandler.GetMe)
		authProtected.POST("/logout-all", h.AuthHandler.LogoutAll)
	}
}

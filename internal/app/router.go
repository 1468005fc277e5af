package app

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"xixu.io/notifier/internal/api/handlers"
	"xixu.io/notifier/internal/api/middleware"
	"xixu.io/notifier/internal/config"
	"xixu.io/notifier/internal/pkg/logger"
)

// defaultAllowedOrigins is used when server.allowed_origins is empty.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
}

func newRouter(cfg *config.Config, server *handlers.Server, jwtCfg middleware.JWTConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), cors.New(buildCORSConfig(cfg)), middleware.ErrorHandler())

	v1 := router.Group("/api/v1")

	// Public probes.
	v1.GET("/health/live", server.GetLiveness)
	v1.GET("/health/ready", server.GetReadiness)

	authed := v1.Group("", middleware.JWTAuth(jwtCfg))

	authed.POST("/notifications", middleware.RequirePermission(middleware.PermissionNotificationSend), server.SendNotification)
	authed.POST("/notifications/training-completion", middleware.RequirePermission(middleware.PermissionNotificationSend), server.SendTrainingCompletion)
	authed.POST("/notifications/welcome", middleware.RequirePermission(middleware.PermissionNotificationSend), server.SendWelcome)
	authed.GET("/notifications/logs", middleware.RequirePermission(middleware.PermissionNotificationRead), server.ListDispatchLogs)
	authed.GET("/templates", middleware.RequirePermission(middleware.PermissionNotificationRead), server.ListTemplates)

	authed.GET("/jobs", middleware.RequirePermission(middleware.PermissionJobRead), server.ListJobs)
	authed.POST("/jobs/:name/run", middleware.RequirePermission(middleware.PermissionJobRun), server.RunJob)

	level := gin.WrapH(logger.HTTPHandler())
	admin := authed.Group("", middleware.RequirePermission(middleware.PermissionAdmin))
	admin.GET("/log/level", level)
	admin.PUT("/log/level", level)

	return router
}

// buildCORSConfig never combines a wildcard origin with credentials.
func buildCORSConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: cfg.Server.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}

	if cfg.Server.UnsafeAllowAllOrigins {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
		return c
	}

	origins := slices.DeleteFunc(slices.Clone(cfg.Server.AllowedOrigins), func(o string) bool {
		return o == "*" || o == ""
	})
	if len(origins) == 0 {
		origins = slices.Clone(defaultAllowedOrigins)
	}
	c.AllowOrigins = origins
	return c
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xixu.io/notifier/internal/pkg/logger"
)

const healthCheckTimeout = 3 * time.Second

// GetLiveness handles GET /health/live.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetReadiness handles GET /health/ready. Every configured dependency is
// checked; one failure marks the service degraded.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := make(map[string]string, len(s.checks))
	allHealthy := true

	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			logger.Warn("readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = "error"
			allHealthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, httpStatus := "ok", http.StatusOK
	if !allHealthy {
		status, httpStatus = "degraded", http.StatusServiceUnavailable
	}
	body := gin.H{"status": status, "checks": checks}
	if s.poolStats != nil {
		body["pools"] = s.poolStats()
	}
	c.JSON(httpStatus, body)
}

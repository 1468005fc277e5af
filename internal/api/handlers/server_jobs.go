package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "xixu.io/notifier/internal/pkg/errors"
	"xixu.io/notifier/internal/pkg/logger"
	"xixu.io/notifier/internal/scheduler"
)

// ListJobs handles GET /jobs.
func (s *Server) ListJobs(c *gin.Context) {
	if s.jobs == nil {
		_ = c.Error(apperrors.ServiceUnavailable(apperrors.CodeSchedulerDisabled, "scheduler is disabled"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": s.jobs.Status()})
}

// RunJob handles POST /jobs/:name/run. The job runs in the background under
// the same reentrancy guard as scheduled ticks.
func (s *Server) RunJob(c *gin.Context) {
	if s.jobs == nil {
		_ = c.Error(apperrors.ServiceUnavailable(apperrors.CodeSchedulerDisabled, "scheduler is disabled"))
		return
	}
	name := c.Param("name")

	if err := s.jobs.Trigger(name); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrJobNotFound):
			_ = c.Error(apperrors.ErrJobNotFoundf(name))
		case errors.Is(err, scheduler.ErrJobRunning):
			_ = c.Error(apperrors.ErrJobAlreadyRunningf(name))
		default:
			_ = c.Error(apperrors.Wrap(err, apperrors.CodeJobTriggerFailed, "failed to trigger job", http.StatusServiceUnavailable))
		}
		return
	}

	logger.Info("job triggered manually",
		zap.String("job", name),
		zap.String("actor", actorFromCtx(c)),
	)
	c.JSON(http.StatusAccepted, gin.H{"job": name, "status": "triggered"})
}

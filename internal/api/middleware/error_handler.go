// Package middleware provides HTTP middleware for the notifier admin API.
package middleware

import (

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "xixu.io/notifier/internal/pkg/errors"
	"xixu.io/notifier/internal/pkg/logger"
)

// ErrorHandler is a Gin middleware that provides centralized error handling.
// It captures errors added via c.Error() and returns a consistent JSON response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		requestID := GetRequestID(c.Request.Context())

		if appErr, ok := apperrors.IsAppError(err); ok {
			logger.Warn("Request error",
				zap.String("code", appErr.Code),
				zap.String("message", appErr.Message),
				zap.Int("status", appErr.HTTPStatus),
				zap.String("request_id", requestID),
				zap.Error(appErr.Err),
			)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		logger.Error("Unhandled request error", zap.String("request_id", requestID), zap.Error(err))
		internal := apperrors.Internal(apperrors.CodeInternal, "An internal error occurred")
		c.JSON(internal.HTTPStatus, internal)
	}
}

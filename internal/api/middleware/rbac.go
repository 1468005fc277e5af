package middleware

import (
	"slices"

	"github.com/gin-gonic/gin"

	apperrors "xixu.io/notifier/internal/pkg/errors"
)

// Permissions checked by the admin API.
const (
	PermissionAdmin            = "platform:admin"
	PermissionNotificationSend = "notification:send"
	PermissionNotificationRead = "notification:read"
	PermissionJobRead          = "job:read"
	PermissionJobRun           = "job:run"
)

// RequirePermission returns middleware that checks if the authenticated user
// has a specific permission. PermissionAdmin grants every permission.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		perms, exists := c.Get("permissions")
		if !exists {
			abortForbidden(c, "no permissions in context")
			return
		}
		permList, ok := perms.([]string)
		if !ok {
			abortForbidden(c, "invalid permissions type")
			return
		}

		if slices.Contains(permList, PermissionAdmin) || slices.Contains(permList, permission) {
			c.Next()
			return
		}

		abortForbidden(c, "insufficient permissions")
	}
}

func abortForbidden(c *gin.Context, message string) {
	appErr := apperrors.Forbidden(apperrors.CodeForbidden, message)
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
}

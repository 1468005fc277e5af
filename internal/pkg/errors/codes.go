package errors

import "net/http"

// Error codes returned by the admin API.
// Errors carry code + params; clients translate. Backend logs stay in English.

// Notification error codes.
const (
	CodeTemplateNotFound  = "TEMPLATE_NOT_FOUND"
	CodeRecipientNotFound = "RECIPIENT_NOT_FOUND"
	CodeDispatchFailed    = "DISPATCH_FAILED"
	CodeCertificateLink   = "CERTIFICATE_LINK_FAILED"

	CodeDispatchLogUnavailable = "DISPATCH_LOG_UNAVAILABLE"
)

// Scheduler error codes.
const (
	CodeJobNotFound       = "JOB_NOT_FOUND"
	CodeJobAlreadyRunning = "JOB_ALREADY_RUNNING"
	CodeJobTriggerFailed  = "JOB_TRIGGER_FAILED"
	CodeSchedulerDisabled = "SCHEDULER_DISABLED"
)

// Directory error codes.
const (
	CodeDirectoryUnavailable = "DIRECTORY_UNAVAILABLE"
)

// CodeInternal is returned for errors that are not an AppError.
const CodeInternal = "INTERNAL_ERROR"

// Validation error codes.
const (
	CodeInvalidRequestField = "INVALID_REQUEST_FIELD"
	CodeValidationFailed    = "VALIDATION_FAILED"
)

// Auth error codes.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeForbidden    = "FORBIDDEN"
)

// Convenience constructors using predefined codes.

// ErrTemplateNotFoundf creates a template not found error for a notification kind.
func ErrTemplateNotFoundf(kind string) *AppError {
	return &AppError{
		Code:       CodeTemplateNotFound,
		Message:    "notification template not found",
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]interface{}{"kind": kind},
	}
}

// ErrRecipientNotFoundf creates a recipient not found error.
func ErrRecipientNotFoundf(recipientID string) *AppError {
	return &AppError{
		Code:       CodeRecipientNotFound,
		Message:    "recipient not found",
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]interface{}{"recipient_id": recipientID},
	}
}

// ErrJobNotFoundf creates a scheduled job not found error.
func ErrJobNotFoundf(name string) *AppError {
	return &AppError{
		Code:       CodeJobNotFound,
		Message:    "scheduled job not found",
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]interface{}{"job": name},
	}
}

// ErrJobAlreadyRunningf reports that a manual trigger hit the reentrancy guard.
func ErrJobAlreadyRunningf(name string) *AppError {
	return &AppError{
		Code:       CodeJobAlreadyRunning,
		Message:    "scheduled job is already running",
		HTTPStatus: http.StatusConflict,
		Params:     map[string]interface{}{"job": name},
	}
}

// ErrInvalidRequestFieldf creates a bad request error for a missing or malformed field.
func ErrInvalidRequestFieldf(fieldName string) *AppError {
	return &AppError{
		Code:       CodeInvalidRequestField,
		Message:    "invalid request field: " + fieldName,
		HTTPStatus: http.StatusBadRequest,
		Params:     map[string]interface{}{"field": fieldName},
	}
}

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "xixu.io/notifier/internal/pkg/errors"
)

// bindError converts a gin binding failure into a 400 with one entry per
// invalid field.
func bindError(err error) *apperrors.AppError {
	appErr := apperrors.Wrap(err, apperrors.CodeValidationFailed, "invalid request body", http.StatusBadRequest)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErr
	}
	fields := make([]apperrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperrors.FieldError{
			Field: jsonFieldName(fe.Field()),
			Code:  fe.Tag(),
		})
	}
	return appErr.WithFieldErrors(fields)
}

// jsonFieldName maps a Go field name like RecipientID to recipient_id.
func jsonFieldName(goName string) string {
	var b strings.Builder
	runes := []rune(goName)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

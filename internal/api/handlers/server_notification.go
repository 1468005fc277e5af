package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xixu.io/notifier/internal/directory"
	"xixu.io/notifier/internal/notification"
	apperrors "xixu.io/notifier/internal/pkg/errors"
	"xixu.io/notifier/internal/pkg/logger"
)

// SendNotificationRequest is the body of POST /notifications.
type SendNotificationRequest struct {
	Kind        notification.Kind `json:"kind" binding:"required"`
	RecipientID string            `json:"recipient_id" binding:"required"`
	Data        notification.Data `json:"data"`
}

// TrainingCompletionRequest is the body of POST /notifications/training-completion.
type TrainingCompletionRequest struct {
	RecipientID    string     `json:"recipient_id" binding:"required"`
	TrainingTitle  string     `json:"training_title" binding:"required"`
	Score          *float64   `json:"score" binding:"required"`
	CompletionDate *time.Time `json:"completion_date"`
	// CertificateKey is the object key of the issued certificate, if any.
	CertificateKey string `json:"certificate_key"`
}

// WelcomeRequest is the body of POST /notifications/welcome.
type WelcomeRequest struct {
	RecipientID string `json:"recipient_id" binding:"required"`
}

// SendNotification handles POST /notifications.
func (s *Server) SendNotification(c *gin.Context) {
	var req SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	s.dispatch(c, req.Kind, req.RecipientID, req.Data)
}

// SendTrainingCompletion handles POST /notifications/training-completion.
func (s *Server) SendTrainingCompletion(c *gin.Context) {
	var req TrainingCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	completed := s.now()
	if req.CompletionDate != nil {
		completed = *req.CompletionDate
	}
	data := notification.Data{
		"trainingTitle":  req.TrainingTitle,
		"score":          *req.Score,
		"completionDate": s.formatDate(completed),
		"profileUrl":     s.link("/profile"),
	}

	if req.CertificateKey != "" {
		url, appErr := s.certificateURL(c.Request.Context(), req.CertificateKey)
		if appErr != nil {
			_ = c.Error(appErr)
			return
		}
		data[notification.KeyCertificateURL] = url
	}

	s.dispatch(c, notification.KindTrainingCompletion, req.RecipientID, data)
}

// SendWelcome handles POST /notifications/welcome.
func (s *Server) SendWelcome(c *gin.Context) {
	var req WelcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	s.dispatch(c, notification.KindWelcome, req.RecipientID, notification.Data{
		"loginUrl": s.link("/login"),
	})
}

// ListTemplates handles GET /templates.
func (s *Server) ListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"kinds": s.templates.Kinds()})
}

// ListDispatchLogs handles GET /notifications/logs?recipient_id=&limit=.
func (s *Server) ListDispatchLogs(c *gin.Context) {
	if s.logs == nil {
		_ = c.Error(apperrors.ServiceUnavailable(apperrors.CodeDispatchLogUnavailable, "dispatch log store is not configured"))
		return
	}
	recipientID := c.Query("recipient_id")
	if recipientID == "" {
		_ = c.Error(apperrors.ErrInvalidRequestFieldf("recipient_id"))
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			_ = c.Error(apperrors.ErrInvalidRequestFieldf("limit"))
			return
		}
		limit = n
	}

	entries, err := s.logs.ListByRecipient(c.Request.Context(), recipientID, limit)
	if err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeDispatchLogUnavailable, "failed to read dispatch log", http.StatusServiceUnavailable))
		return
	}

	items := make([]dispatchLogItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, dispatchLogToAPI(e))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// dispatch loads the recipient and sends. Channel failures are reported in
// the body with status 200; only lookup errors fail the request.
func (s *Server) dispatch(c *gin.Context, kind notification.Kind, recipientID string, data notification.Data) {
	ctx := c.Request.Context()

	recipient, err := s.recipients.FindRecipient(ctx, recipientID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			_ = c.Error(apperrors.ErrRecipientNotFoundf(recipientID))
			return
		}
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeDirectoryUnavailable, "user directory unavailable", http.StatusServiceUnavailable))
		return
	}

	data = withRecipientName(data, recipient)
	result, err := s.dispatcher.Send(ctx, notification.Request{Kind: kind, Recipient: recipient, Data: data})
	if err != nil {
		if errors.Is(err, notification.ErrTemplateNotFound) {
			_ = c.Error(apperrors.ErrTemplateNotFoundf(string(kind)))
			return
		}
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeDispatchFailed, "dispatch failed", http.StatusInternalServerError))
		return
	}

	logger.Info("notification dispatched via API",
		zap.String("kind", string(kind)),
		zap.String("recipient", recipientID),
		zap.String("notification_id", result.ID),
		zap.Bool("delivered", result.Delivered()),
		zap.String("actor", actorFromCtx(c)),
	)
	c.JSON(http.StatusOK, resultToAPI(result))
}

func (s *Server) certificateURL(ctx context.Context, key string) (string, *apperrors.AppError) {
	if s.certificates == nil {
		return "", apperrors.ServiceUnavailable(apperrors.CodeCertificateLink, "certificate storage is not configured")
	}
	url, err := s.certificates.CertificateURL(ctx, key)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeCertificateLink, "failed to resolve certificate link", http.StatusBadGateway).
			WithParams(map[string]interface{}{"certificate_key": key})
	}
	return url, nil
}

// withRecipientName fills the {name} greeting from the directory unless the
// caller supplied one.
func withRecipientName(data notification.Data, recipient notification.Recipient) notification.Data {
	if data == nil {
		data = notification.Data{}
	}
	if _, ok := data["name"]; !ok {
		data["name"] = recipient.Name
	}
	return data
}

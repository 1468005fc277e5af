package notification

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"xixu.io/notifier/internal/pkg/logger"
)

// LogEntry is the record written once per dispatch attempt.
type LogEntry struct {
	NotificationID string
	Kind           Kind
	RecipientID    string
	Subject        string
	Channels       []ChannelResult
	CreatedAt      time.Time
}

// LogSink stores dispatch log entries.
type LogSink interface {
	Record(ctx context.Context, entry LogEntry) error
}

// ZapLogSink writes each entry as one structured log line.
type ZapLogSink struct{}

// Record implements LogSink.
func (ZapLogSink) Record(_ context.Context, entry LogEntry) error {
	fields := []zap.Field{
		zap.String("notification_id", entry.NotificationID),
		zap.String("kind", string(entry.Kind)),
		zap.String("recipient", entry.RecipientID),
		zap.String("subject", entry.Subject),
		zap.Time("created_at", entry.CreatedAt),
	}
	for _, c := range entry.Channels {
		fields = append(fields, zap.String("channel_"+string(c.Channel), string(c.Status)))
	}
	logger.Info("notification logged", fields...)
	return nil
}

// MultiLogSink records to every sink and joins their errors.
type MultiLogSink []LogSink

// Record implements LogSink.
func (m MultiLogSink) Record(ctx context.Context, entry LogEntry) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ LogSink = ZapLogSink{}
	_ LogSink = MultiLogSink(nil)
)

// Package repository persists dispatch logs in PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"xixu.io/notifier/internal/notification"
)

// DefaultListLimit caps ListByRecipient when no limit is given.
const DefaultListLimit = 50

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notification_logs (
	id              BIGSERIAL PRIMARY KEY,
	notification_id TEXT        NOT NULL UNIQUE,
	kind            TEXT        NOT NULL,
	recipient_id    TEXT        NOT NULL,
	subject         TEXT        NOT NULL,
	channels        JSONB       NOT NULL DEFAULT '[]'::jsonb,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS notification_logs_recipient_created_idx
	ON notification_logs (recipient_id, created_at DESC);
CREATE INDEX IF NOT EXISTS notification_logs_created_idx
	ON notification_logs (created_at);
`

// DB is the subset of *pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// NotificationLogStore stores one row per dispatch.
type NotificationLogStore struct {
	db DB
}

// NewNotificationLogStore creates a store backed by db.
func NewNotificationLogStore(db DB) *NotificationLogStore {
	return &NotificationLogStore{db: db}
}

// EnsureSchema creates the log table and its indexes if missing.
func (s *NotificationLogStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create notification_logs: %w", err)
	}
	return nil
}

// Record implements notification.LogSink. Recording the same notification
// twice keeps the first row.
func (s *NotificationLogStore) Record(ctx context.Context, entry notification.LogEntry) error {
	if entry.NotificationID == "" {
		return errors.New("notification id is required")
	}
	channels, err := json.Marshal(loggedChannels(entry.Channels))
	if err != nil {
		return fmt.Errorf("encode channels: %w", err)
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO notification_logs (notification_id, kind, recipient_id, subject, channels, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (notification_id) DO NOTHING`,
		entry.NotificationID, string(entry.Kind), entry.RecipientID, entry.Subject, channels, created.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert notification log %s: %w", entry.NotificationID, err)
	}
	return nil
}

// ListByRecipient returns the newest entries for a recipient.
func (s *NotificationLogStore) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]notification.LogEntry, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	rows, err := s.db.Query(ctx, `
		SELECT notification_id, kind, recipient_id, subject, channels, created_at
		FROM notification_logs
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notification logs: %w", err)
	}
	defer rows.Close()

	var out []notification.LogEntry
	for rows.Next() {
		var (
			entry    notification.LogEntry
			kind     string
			channels []byte
		)
		if err := rows.Scan(&entry.NotificationID, &kind, &entry.RecipientID, &entry.Subject, &channels, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification log: %w", err)
		}
		entry.Kind = notification.Kind(kind)
		if err := json.Unmarshal(channels, &entry.Channels); err != nil {
			return nil, fmt.Errorf("decode channels of %s: %w", entry.NotificationID, err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// DeleteBefore removes entries created before cutoff.
func (s *NotificationLogStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM notification_logs WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete notification logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// loggedChannels copies failure messages into Reason, which is what gets
// serialized.
func loggedChannels(in []notification.ChannelResult) []notification.ChannelResult {
	out := make([]notification.ChannelResult, len(in))
	for i, c := range in {
		if c.Reason == "" && c.Err != nil {
			c.Reason = c.Err.Error()
		}
		c.Err = nil
		out[i] = c
	}
	return out
}

var _ notification.LogSink = (*NotificationLogStore)(nil)

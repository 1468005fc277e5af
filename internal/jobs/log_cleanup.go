package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"xixu.io/notifier/internal/pkg/logger"
)

// DefaultLogRetention is how long dispatch log rows are kept.
const DefaultLogRetention = 90 * 24 * time.Hour

// LogPruner deletes dispatch log rows created before a cutoff.
type LogPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// LogCleanupArgs is the periodic dispatch log retention job.
type LogCleanupArgs struct{}

// Kind implements river.JobArgs.
func (LogCleanupArgs) Kind() string { return "dispatch_log_cleanup" }

// InsertOpts ensures at most one cleanup job is enqueued per day.
func (LogCleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// LogCleanupWorker deletes dispatch log rows older than the retention.
type LogCleanupWorker struct {
	river.WorkerDefaults[LogCleanupArgs]
	store     LogPruner
	retention time.Duration
	now       func() time.Time
}

// NewLogCleanupWorker creates a cleanup worker. Non-positive retention
// falls back to DefaultLogRetention.
func NewLogCleanupWorker(store LogPruner, retention time.Duration) *LogCleanupWorker {
	if retention <= 0 {
		retention = DefaultLogRetention
	}
	return &LogCleanupWorker{store: store, retention: retention, now: time.Now}
}

// Work implements river.Worker.
func (w *LogCleanupWorker) Work(ctx context.Context, _ *river.Job[LogCleanupArgs]) error {
	if w == nil || w.store == nil {
		return fmt.Errorf("dispatch log cleanup worker is not initialized")
	}

	cutoff := w.now().UTC().Add(-w.retention)
	deleted, err := w.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete dispatch logs before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	logger.Info("dispatch log cleanup completed",
		zap.Int64("deleted_rows", deleted),
		zap.String("cutoff", cutoff.Format(time.RFC3339)),
		zap.Duration("retention", w.retention),
	)
	return nil
}

// PeriodicLogCleanup returns the daily River periodic job for the worker.
func PeriodicLogCleanup() *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(24*time.Hour),
		func() (river.JobArgs, *river.InsertOpts) {
			return LogCleanupArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}

package modules

import (
	"context"

	"github.com/riverqueue/river"

	"xixu.io/notifier/internal/api/handlers"
	"xixu.io/notifier/internal/jobs"
)

// RetentionModule prunes the dispatch log through River and exposes the log
// to the API. It requires the database.
type RetentionModule struct {
	infra *Infrastructure
}

// NewRetentionModule creates the module. infra.DB must be set.
func NewRetentionModule(infra *Infrastructure) *RetentionModule {
	return &RetentionModule{infra: infra}
}

func (m *RetentionModule) Name() string { return "dispatch-log-retention" }

func (m *RetentionModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Logs = m.infra.DB.Logs
}

func (m *RetentionModule) RegisterWorkers(workers *river.Workers) {
	if workers == nil || m.infra.DB == nil {
		return
	}
	river.AddWorker(workers, jobs.NewLogCleanupWorker(m.infra.DB.Logs, m.infra.Config.River.LogRetention))
}

func (m *RetentionModule) PeriodicJobs() []*river.PeriodicJob {
	return []*river.PeriodicJob{jobs.PeriodicLogCleanup()}
}

func (m *RetentionModule) Shutdown(context.Context) error { return nil }

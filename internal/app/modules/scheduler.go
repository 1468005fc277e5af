package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"

	"xixu.io/notifier/internal/api/handlers"
	"xixu.io/notifier/internal/jobs"
	"xixu.io/notifier/internal/scheduler"
)

// SchedulerModule registers the reminder scans on the cron scheduler.
type SchedulerModule struct {
	scheduler *scheduler.Scheduler
}

// NewSchedulerModule registers the four scans with their configured specs.
func NewSchedulerModule(infra *Infrastructure, notifier jobs.Notifier) (*SchedulerModule, error) {
	cfg := infra.Config.Scheduler

	reminders := jobs.NewReminders(infra.Directory, notifier, jobs.RemindersConfig{
		FrontendURL:       cfg.FrontendURL,
		Location:          infra.Location,
		DateLayout:        cfg.DateLayout,
		CertificateWindow: cfg.CertificateWindow,
		ReminderWindow:    cfg.ReminderWindow,
		ReportPeriod:      cfg.ReportPeriod,
	})

	s := scheduler.New(scheduler.Options{Location: infra.Location, Pools: infra.Pools})
	for _, job := range reminders.Jobs(jobs.Schedules{
		CertificateExpiry:   cfg.CertificateExpiry,
		TrainingReminders:   cfg.TrainingReminders,
		MentorshipReminders: cfg.MentorshipReminders,
		WeeklyReport:        cfg.WeeklyReport,
	}) {
		if err := s.Register(job); err != nil {
			return nil, fmt.Errorf("register job %s: %w", job.Name, err)
		}
	}
	return &SchedulerModule{scheduler: s}, nil
}

func (m *SchedulerModule) Name() string { return "scheduler" }

func (m *SchedulerModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Jobs = m.scheduler
}

func (m *SchedulerModule) RegisterWorkers(*river.Workers) {}

// Start begins firing cron ticks.
func (m *SchedulerModule) Start(context.Context) error {
	m.scheduler.Start()
	return nil
}

// Shutdown stops ticks and waits for running scans until ctx ends.
func (m *SchedulerModule) Shutdown(ctx context.Context) error {
	return m.scheduler.Stop(ctx)
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"xixu.io/notifier/internal/directory"
	"xixu.io/notifier/internal/notification"
	"xixu.io/notifier/internal/pkg/logger"
	"xixu.io/notifier/internal/scheduler"
)

// Job names as registered with the scheduler.
const (
	JobCertificateExpiry   = "certificate-expiry"
	JobTrainingReminders   = "training-reminders"
	JobMentorshipReminders = "mentorship-reminders"
	JobWeeklyReport        = "weekly-report"
)

// ErrCollaboratorQuery wraps directory failures of a job run. The run
// produces no requests; the next tick queries again.
var ErrCollaboratorQuery = errors.New("collaborator query failed")

// Defaults used for missing training session details.
const (
	DefaultSessionTime     = "09:00"
	DefaultSessionLocation = "عنوان التدريب"
)

// Directory is the read side the scans need.
type Directory interface {
	ExpiringCertificates(ctx context.Context, from, to time.Time) ([]directory.Certificate, error)
	UpcomingTrainings(ctx context.Context, from, to time.Time) ([]directory.Training, error)
	UpcomingMentorships(ctx context.Context, from, to time.Time) ([]directory.Mentorship, error)
	ActiveManagers(ctx context.Context) ([]directory.Manager, error)
	DepartmentStats(ctx context.Context, department string, since time.Time) (directory.DepartmentStats, error)
}

// Notifier dispatches a single request.
type Notifier interface {
	Send(ctx context.Context, req notification.Request) (*notification.Result, error)
}

// Schedules holds the cron spec of every scan.
type Schedules struct {
	CertificateExpiry   string
	TrainingReminders   string
	MentorshipReminders string
	WeeklyReport        string
}

// DefaultSchedules returns daily scans at 09:00, 08:00 and 07:00 and the
// weekly report on Mondays at 06:00.
func DefaultSchedules() Schedules {
	return Schedules{
		CertificateExpiry:   "0 9 * * *",
		TrainingReminders:   "0 8 * * *",
		MentorshipReminders: "0 7 * * *",
		WeeklyReport:        "0 6 * * 1",
	}
}

// RemindersConfig configures the scans.
type RemindersConfig struct {
	// FrontendURL prefixes the links placed in messages.
	FrontendURL string
	// Location is used for the dates shown to recipients.
	Location *time.Location
	// DateLayout formats dates shown to recipients.
	DateLayout string
	// CertificateWindow is how far ahead expiring certificates are found.
	CertificateWindow time.Duration
	// ReminderWindow is how far ahead trainings and sessions are reminded.
	ReminderWindow time.Duration
	// ReportPeriod is the period the weekly report covers.
	ReportPeriod time.Duration
}

func (c RemindersConfig) withDefaults() RemindersConfig {
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.DateLayout == "" {
		c.DateLayout = "2006/01/02"
	}
	if c.CertificateWindow <= 0 {
		c.CertificateWindow = 30 * 24 * time.Hour
	}
	if c.ReminderWindow <= 0 {
		c.ReminderWindow = 24 * time.Hour
	}
	if c.ReportPeriod <= 0 {
		c.ReportPeriod = 7 * 24 * time.Hour
	}
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")
	return c
}

// RunSummary counts what one scan did.
type RunSummary struct {
	Due       int
	Requests  int
	Delivered int
	Failed    int
}

// Reminders implements the recurring scans. Each scan queries the directory
// for due records, maps them to requests and dispatches them one at a time.
type Reminders struct {
	dir      Directory
	notifier Notifier
	cfg      RemindersConfig
	now      func() time.Time
}

// NewReminders creates the scans.
func NewReminders(dir Directory, notifier Notifier, cfg RemindersConfig) *Reminders {
	return &Reminders{
		dir:      dir,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// Jobs returns the scheduler entries for all scans.
func (r *Reminders) Jobs(s Schedules) []scheduler.Job {
	return []scheduler.Job{
		{Name: JobCertificateExpiry, Spec: s.CertificateExpiry, Handler: summarize(JobCertificateExpiry, r.CertificateExpiry)},
		{Name: JobTrainingReminders, Spec: s.TrainingReminders, Handler: summarize(JobTrainingReminders, r.TrainingReminders)},
		{Name: JobMentorshipReminders, Spec: s.MentorshipReminders, Handler: summarize(JobMentorshipReminders, r.MentorshipReminders)},
		{Name: JobWeeklyReport, Spec: s.WeeklyReport, Handler: summarize(JobWeeklyReport, r.WeeklyReport)},
	}
}

func summarize(name string, run func(context.Context) (RunSummary, error)) scheduler.Handler {
	return func(ctx context.Context) error {
		sum, err := run(ctx)
		if err != nil {
			return err
		}
		logger.Info("scan completed",
			zap.String("job", name),
			zap.Int("due", sum.Due),
			zap.Int("requests", sum.Requests),
			zap.Int("delivered", sum.Delivered),
			zap.Int("failed", sum.Failed),
		)
		return nil
	}
}

// CertificateExpiry notifies holders of certificates expiring within the
// certificate window.
func (r *Reminders) CertificateExpiry(ctx context.Context) (RunSummary, error) {
	now := r.now()
	certs, err := r.dir.ExpiringCertificates(ctx, now, now.Add(r.cfg.CertificateWindow))
	if err != nil {
		return RunSummary{}, fmt.Errorf("%w: %s: %v", ErrCollaboratorQuery, JobCertificateExpiry, err)
	}

	reqs := make([]notification.Request, 0, len(certs))
	for _, c := range certs {
		reqs = append(reqs, notification.Request{
			Kind:      notification.KindCertificateExpiry,
			Recipient: c.Holder,
			Data: notification.Data{
				"name":            c.Holder.Name,
				"certificateName": c.Name,
				"daysLeft":        daysLeft(now, c.ExpiryDate),
				"expiryDate":      r.formatDate(c.ExpiryDate),
				"issuer":          c.Issuer,
				"renewalUrl":      r.link("certificates", c.ID),
			},
		})
	}
	return r.dispatchAll(ctx, JobCertificateExpiry, len(certs), reqs), nil
}

// TrainingReminders notifies every participant of trainings starting within
// the reminder window.
func (r *Reminders) TrainingReminders(ctx context.Context) (RunSummary, error) {
	now := r.now()
	trainings, err := r.dir.UpcomingTrainings(ctx, now, now.Add(r.cfg.ReminderWindow))
	if err != nil {
		return RunSummary{}, fmt.Errorf("%w: %s: %v", ErrCollaboratorQuery, JobTrainingReminders, err)
	}

	var reqs []notification.Request
	for _, t := range trainings {
		session := directory.TrainingSession{StartTime: DefaultSessionTime, Location: DefaultSessionLocation}
		if len(t.Sessions) > 0 {
			first := t.Sessions[0]
			session.MeetingLink = first.MeetingLink
			if first.StartTime != "" {
				session.StartTime = first.StartTime
			}
			if first.Location != "" {
				session.Location = first.Location
			}
		}
		for _, p := range t.Participants {
			reqs = append(reqs, notification.Request{
				Kind:      notification.KindTrainingReminder,
				Recipient: p,
				Data: notification.Data{
					"name":          p.Name,
					"trainingTitle": t.Title,
					"date":          r.formatDate(t.StartDate),
					"time":          session.StartTime,
					"location":      session.Location,
					"meetingLink":   MeetingLinkHTML(session.MeetingLink),
					"trainingUrl":   r.link("trainings", t.ID),
				},
			})
		}
	}
	return r.dispatchAll(ctx, JobTrainingReminders, len(trainings), reqs), nil
}

// MentorshipReminders notifies both sides of every mentorship with a session
// in the reminder window. The mentee's message names the mentor and the
// mentor's message names the mentee.
func (r *Reminders) MentorshipReminders(ctx context.Context) (RunSummary, error) {
	now := r.now()
	until := now.Add(r.cfg.ReminderWindow)
	mentorships, err := r.dir.UpcomingMentorships(ctx, now, until)
	if err != nil {
		return RunSummary{}, fmt.Errorf("%w: %s: %v", ErrCollaboratorQuery, JobMentorshipReminders, err)
	}

	var reqs []notification.Request
	for _, m := range mentorships {
		session, ok := m.SessionBetween(now, until)
		if !ok {
			continue
		}
		common := notification.Data{
			"topic":       session.Topic,
			"date":        r.formatDate(session.Date),
			"time":        session.Time,
			"meetingLink": MeetingLinkHTML(session.MeetingLink),
			"sessionUrl":  r.link("mentorships", m.ID),
		}
		reqs = append(reqs,
			mentorshipRequest(m.Mentee, m.Mentor.Name, common),
			mentorshipRequest(m.Mentor, m.Mentee.Name, common),
		)
	}
	return r.dispatchAll(ctx, JobMentorshipReminders, len(mentorships), reqs), nil
}

func mentorshipRequest(to notification.Recipient, counterpart string, common notification.Data) notification.Request {
	data := make(notification.Data, len(common)+2)
	for k, v := range common {
		data[k] = v
	}
	data["name"] = to.Name
	data["mentorName"] = counterpart
	return notification.Request{Kind: notification.KindMentorshipSession, Recipient: to, Data: data}
}

// WeeklyReport sends each active manager the statistics of their
// department over the report period.
func (r *Reminders) WeeklyReport(ctx context.Context) (RunSummary, error) {
	managers, err := r.dir.ActiveManagers(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("%w: %s: %v", ErrCollaboratorQuery, JobWeeklyReport, err)
	}

	since := r.now().Add(-r.cfg.ReportPeriod)
	reqs := make([]notification.Request, 0, len(managers))
	failed := 0
	for _, m := range managers {
		stats, err := r.dir.DepartmentStats(ctx, m.Department, since)
		if err != nil {
			failed++
			logger.Error("department statistics unavailable",
				zap.String("job", JobWeeklyReport),
				zap.String("manager", m.ID),
				zap.String("department", m.Department),
				zap.Error(err),
			)
			continue
		}
		reqs = append(reqs, notification.Request{
			Kind:      notification.KindWeeklyReport,
			Recipient: m.Recipient,
			Data: notification.Data{
				"name":                 m.Name,
				"department":           stats.Department,
				"totalTrainings":       stats.TotalTrainings,
				"completedTrainings":   stats.CompletedTrainings,
				"averageRating":        stats.AverageRating,
				"activeParticipants":   stats.ActiveParticipants,
				"expiringCertificates": stats.ExpiringCertificates,
				"reportUrl":            r.cfg.FrontendURL + "/analytics/weekly",
			},
		})
	}
	sum := r.dispatchAll(ctx, JobWeeklyReport, len(managers), reqs)
	sum.Failed += failed
	return sum, nil
}

// dispatchAll sends requests one at a time. A failing request is logged and
// the batch moves on.
func (r *Reminders) dispatchAll(ctx context.Context, job string, due int, reqs []notification.Request) RunSummary {
	sum := RunSummary{Due: due, Requests: len(reqs)}
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			logger.Warn("scan interrupted",
				zap.String("job", job),
				zap.Int("remaining", len(reqs)-i),
				zap.Error(err),
			)
			sum.Failed += len(reqs) - i
			break
		}

		res, err := r.notifier.Send(ctx, req)
		if err != nil {
			sum.Failed++
			logger.Error("scheduled notification failed",
				zap.String("job", job),
				zap.String("kind", string(req.Kind)),
				zap.String("recipient", req.Recipient.ID),
				zap.Error(err),
			)
			continue
		}
		if res.Delivered() {
			sum.Delivered++
		}
	}
	return sum
}

func (r *Reminders) formatDate(t time.Time) string {
	return t.In(r.cfg.Location).Format(r.cfg.DateLayout)
}

func (r *Reminders) link(section, id string) string {
	return r.cfg.FrontendURL + "/" + section + "/" + id
}

// daysLeft rounds the time until expiry up to whole days.
func daysLeft(now, expiry time.Time) int {
	return int(math.Ceil(expiry.Sub(now).Hours() / 24))
}

// MeetingLinkHTML renders an online meeting link line, or nothing when link
// is empty.
func MeetingLinkHTML(link string) string {
	if link == "" {
		return ""
	}
	return `<p style="color: #34495e; margin: 5px 0;"><strong>رابط الاجتماع:</strong> <a href="` + link + `">انضم إلى الاجتماع</a></p>`
}

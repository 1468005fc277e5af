// Package handlers implements the notifier admin API.
//
// Handlers do not register their own routes; the router in internal/app
// maps paths and permissions onto Server methods.
package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"xixu.io/notifier/internal/notification"
	"xixu.io/notifier/internal/scheduler"
)

// Dispatcher sends one notification.
type Dispatcher interface {
	Send(ctx context.Context, req notification.Request) (*notification.Result, error)
}

// RecipientFinder loads recipients from the user directory.
type RecipientFinder interface {
	FindRecipient(ctx context.Context, id string) (notification.Recipient, error)
}

// TemplateCatalog lists the registered notification kinds.
type TemplateCatalog interface {
	Kinds() []notification.Kind
}

// JobController exposes scheduler status and manual triggers.
type JobController interface {
	Status() []scheduler.JobStatus
	Trigger(name string) error
}

// CertificateLinker resolves certificate object keys to download links.
type CertificateLinker interface {
	CertificateURL(ctx context.Context, objectKey string) (string, error)
}

// DispatchLogReader lists recorded dispatches.
type DispatchLogReader interface {
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]notification.LogEntry, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// PoolStats reports worker pool occupancy.
type PoolStats func() map[string]interface{}

// Server implements the admin API handlers.
type Server struct {
	dispatcher   Dispatcher
	recipients   RecipientFinder
	templates    TemplateCatalog
	jobs         JobController
	certificates CertificateLinker
	logs         DispatchLogReader
	checks       map[string]HealthCheck
	poolStats    PoolStats

	frontendURL string
	location    *time.Location
	dateLayout  string
	now         func() time.Time
}

// ServerDeps holds all dependencies for creating a Server. Certificates,
// Logs and Jobs are optional; their endpoints answer 503 when unset.
type ServerDeps struct {
	Dispatcher   Dispatcher
	Recipients   RecipientFinder
	Templates    TemplateCatalog
	Jobs         JobController
	Certificates CertificateLinker
	Logs         DispatchLogReader
	HealthChecks map[string]HealthCheck
	PoolStats    PoolStats

	FrontendURL string
	Location    *time.Location
	DateLayout  string
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	layout := deps.DateLayout
	if layout == "" {
		layout = "2006/01/02"
	}
	return &Server{
		dispatcher:   deps.Dispatcher,
		recipients:   deps.Recipients,
		templates:    deps.Templates,
		jobs:         deps.Jobs,
		certificates: deps.Certificates,
		logs:         deps.Logs,
		checks:       deps.HealthChecks,
		poolStats:    deps.PoolStats,
		frontendURL:  strings.TrimRight(deps.FrontendURL, "/"),
		location:     loc,
		dateLayout:   layout,
		now:          time.Now,
	}
}

func (s *Server) link(path string) string {
	return s.frontendURL + path
}

func (s *Server) formatDate(t time.Time) string {
	return t.In(s.location).Format(s.dateLayout)
}

// actorFromCtx extracts the authenticated user for audit logging.
func actorFromCtx(c *gin.Context) string {
	if name := c.GetString("username"); name != "" {
		return name
	}
	if uid := c.GetString("user_id"); uid != "" {
		return uid
	}
	return "anonymous"
}

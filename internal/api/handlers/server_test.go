package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"xixu.io/notifier/internal/api/middleware"
	"xixu.io/notifier/internal/directory"
	"xixu.io/notifier/internal/notification"
	"xixu.io/notifier/internal/pkg/logger"
	"xixu.io/notifier/internal/scheduler"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.Set(zap.NewNop())
	os.Exit(m.Run())
}

type fakeDispatcher struct {
	reqs   []notification.Request
	result *notification.Result
	err    error
}

func (f *fakeDispatcher) Send(_ context.Context, req notification.Request) (*notification.Result, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &notification.Result{
		ID:          "n-1",
		Kind:        req.Kind,
		RecipientID: req.Recipient.ID,
		Subject:     "subject",
		Channels: []notification.ChannelResult{
			{Channel: notification.ChannelEmail, Status: notification.StatusDelivered},
			{Channel: notification.ChannelPush, Status: notification.StatusFailed, Err: errors.New("gateway down")},
		},
		SentAt: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
	}, nil
}

type fakeRecipients map[string]notification.Recipient

func (f fakeRecipients) FindRecipient(_ context.Context, id string) (notification.Recipient, error) {
	if id == "broken" {
		return notification.Recipient{}, errors.New("server selection timeout")
	}
	r, ok := f[id]
	if !ok {
		return notification.Recipient{}, directory.ErrNotFound
	}
	return r, nil
}

type fakeTemplates []notification.Kind

func (f fakeTemplates) Kinds() []notification.Kind { return f }

type fakeJobs struct {
	triggered []string
	err       error
}

func (f *fakeJobs) Status() []scheduler.JobStatus {
	return []scheduler.JobStatus{{Name: "certificate-expiry", Spec: "0 9 * * *", Runs: 3}}
}

func (f *fakeJobs) Trigger(name string) error {
	if f.err != nil {
		return f.err
	}
	f.triggered = append(f.triggered, name)
	return nil
}

type fakeLinker struct {
	key string
	err error
}

func (f *fakeLinker) CertificateURL(_ context.Context, key string) (string, error) {
	f.key = key
	if f.err != nil {
		return "", f.err
	}
	return "https://files.example.com/" + key + "?sig=1", nil
}

type fakeLogs struct {
	entries []notification.LogEntry
	limit   int
}

func (f *fakeLogs) ListByRecipient(_ context.Context, _ string, limit int) ([]notification.LogEntry, error) {
	f.limit = limit
	return f.entries, nil
}

type fixture struct {
	server     *Server
	router     *gin.Engine
	dispatcher *fakeDispatcher
	jobs       *fakeJobs
	linker     *fakeLinker
	logs       *fakeLogs
}

func newFixture(t *testing.T, mutate ...func(*ServerDeps)) *fixture {
	t.Helper()
	f := &fixture{
		dispatcher: &fakeDispatcher{},
		jobs:       &fakeJobs{},
		linker:     &fakeLinker{},
		logs:       &fakeLogs{},
	}
	deps := ServerDeps{
		Dispatcher: f.dispatcher,
		Recipients: fakeRecipients{
			"u-1": {ID: "u-1", Name: "أحمد", Email: "ahmad@example.com"},
		},
		Templates:    fakeTemplates{notification.KindWelcome, notification.KindTrainingCompletion},
		Jobs:         f.jobs,
		Certificates: f.linker,
		Logs:         f.logs,
		HealthChecks: map[string]HealthCheck{
			"mongo": func(context.Context) error { return nil },
		},
		FrontendURL: "https://training.example.com/",
		Location:    time.UTC,
	}
	for _, m := range mutate {
		m(&deps)
	}
	f.server = NewServer(deps)
	f.server.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }

	f.router = gin.New()
	f.router.Use(middleware.ErrorHandler())
	f.router.POST("/notifications", f.server.SendNotification)
	f.router.POST("/notifications/training-completion", f.server.SendTrainingCompletion)
	f.router.POST("/notifications/welcome", f.server.SendWelcome)
	f.router.GET("/notifications/logs", f.server.ListDispatchLogs)
	f.router.GET("/templates", f.server.ListTemplates)
	f.router.GET("/jobs", f.server.ListJobs)
	f.router.POST("/jobs/:name/run", f.server.RunJob)
	f.router.GET("/health/live", f.server.GetLiveness)
	f.router.GET("/health/ready", f.server.GetReadiness)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Code        string         `json:"code"`
	Params      map[string]any `json:"params"`
	FieldErrors []struct {
		Field string `json:"field"`
		Code  string `json:"code"`
	} `json:"field_errors"`
}

func TestSendNotification(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/notifications", map[string]any{
		"kind":         "CERTIFICATE_EXPIRY",
		"recipient_id": "u-1",
		"data":         map[string]any{"certificateName": "CISSP", "daysLeft": 12},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := decode[dispatchResult](t, w)
	assert.Equal(t, "n-1", got.ID)
	assert.True(t, got.Delivered)
	require.Len(t, got.Channels, 2)
	assert.Equal(t, "gateway down", got.Channels[1].Reason)

	require.Len(t, f.dispatcher.reqs, 1)
	req := f.dispatcher.reqs[0]
	assert.Equal(t, notification.KindCertificateExpiry, req.Kind)
	assert.Equal(t, "ahmad@example.com", req.Recipient.Email)
	assert.Equal(t, "CISSP", req.Data["certificateName"])
}

func TestSendNotification_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        any
		dispatchErr error
		wantStatus  int
		wantCode    string
	}{
		{
			name:       "missing fields",
			body:       map[string]any{"data": map[string]any{}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "unknown recipient",
			body:       map[string]any{"kind": "WELCOME", "recipient_id": "nobody"},
			wantStatus: http.StatusNotFound,
			wantCode:   "RECIPIENT_NOT_FOUND",
		},
		{
			name:       "directory down",
			body:       map[string]any{"kind": "WELCOME", "recipient_id": "broken"},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "DIRECTORY_UNAVAILABLE",
		},
		{
			name:        "unknown template",
			body:        map[string]any{"kind": "BIRTHDAY", "recipient_id": "u-1"},
			dispatchErr: notification.ErrTemplateNotFound,
			wantStatus:  http.StatusNotFound,
			wantCode:    "TEMPLATE_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.dispatcher.err = tt.dispatchErr

			w := f.do(t, http.MethodPost, "/notifications", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, decode[errorBody](t, w).Code)
		})
	}
}

func TestSendNotification_FieldErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/notifications", map[string]any{"kind": "WELCOME"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode[errorBody](t, w)
	require.Len(t, body.FieldErrors, 1)
	assert.Equal(t, "recipient_id", body.FieldErrors[0].Field)
	assert.Equal(t, "required", body.FieldErrors[0].Code)
	assert.Empty(t, f.dispatcher.reqs)
}

func TestSendTrainingCompletion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/notifications/training-completion", map[string]any{
		"recipient_id":    "u-1",
		"training_title":  "أمن المعلومات",
		"score":           92.5,
		"certificate_key": "2026/u-1/security.pdf",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, f.dispatcher.reqs, 1)
	req := f.dispatcher.reqs[0]
	assert.Equal(t, notification.KindTrainingCompletion, req.Kind)
	assert.Equal(t, "أمن المعلومات", req.Data["trainingTitle"])
	assert.Equal(t, 92.5, req.Data["score"])
	assert.Equal(t, "2026/10/15", req.Data["completionDate"])
	assert.Equal(t, "https://training.example.com/profile", req.Data["profileUrl"])
	assert.Equal(t, "https://files.example.com/2026/u-1/security.pdf?sig=1", req.Data[notification.KeyCertificateURL])
	assert.Equal(t, "2026/u-1/security.pdf", f.linker.key)
}

func TestSendTrainingCompletion_WithoutCertificate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(d *ServerDeps) { d.Certificates = nil })
	w := f.do(t, http.MethodPost, "/notifications/training-completion", map[string]any{
		"recipient_id":    "u-1",
		"training_title":  "Go",
		"score":           0,
		"completion_date": "2026-10-01T21:30:00Z",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	req := f.dispatcher.reqs[0]
	assert.Equal(t, 0.0, req.Data["score"])
	assert.Equal(t, "2026/10/01", req.Data["completionDate"])
	assert.NotContains(t, req.Data, notification.KeyCertificateURL)
}

func TestSendTrainingCompletion_CertificateErrors(t *testing.T) {
	t.Parallel()

	body := map[string]any{"recipient_id": "u-1", "training_title": "Go", "score": 80, "certificate_key": "missing.pdf"}

	f := newFixture(t)
	f.linker.err = errors.New("NoSuchKey")
	w := f.do(t, http.MethodPost, "/notifications/training-completion", body)
	require.Equal(t, http.StatusBadGateway, w.Code)
	got := decode[errorBody](t, w)
	assert.Equal(t, "CERTIFICATE_LINK_FAILED", got.Code)
	assert.Equal(t, "missing.pdf", got.Params["certificate_key"])
	assert.Empty(t, f.dispatcher.reqs)

	f = newFixture(t, func(d *ServerDeps) { d.Certificates = nil })
	w = f.do(t, http.MethodPost, "/notifications/training-completion", body)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSendWelcome(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/notifications/welcome", map[string]any{"recipient_id": "u-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	req := f.dispatcher.reqs[0]
	assert.Equal(t, notification.KindWelcome, req.Kind)
	assert.Equal(t, notification.Data{
		"name":     "أحمد",
		"loginUrl": "https://training.example.com/login",
	}, req.Data)
}

func TestListTemplates(t *testing.T) {
	t.Parallel()

	w := newFixture(t).do(t, http.MethodGet, "/templates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"kinds":["WELCOME","TRAINING_COMPLETION"]}`, w.Body.String())
}

func TestListDispatchLogs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.logs.entries = []notification.LogEntry{{
		NotificationID: "n-9",
		Kind:           notification.KindWelcome,
		RecipientID:    "u-1",
		Channels:       []notification.ChannelResult{{Channel: notification.ChannelEmail, Status: notification.StatusDelivered}},
	}}

	w := f.do(t, http.MethodGet, "/notifications/logs?recipient_id=u-1&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[struct {
		Items []dispatchLogItem `json:"items"`
	}](t, w)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "n-9", got.Items[0].NotificationID)
	assert.Equal(t, 5, f.logs.limit)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/notifications/logs", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/notifications/logs?recipient_id=u-1&limit=x", nil).Code)

	f = newFixture(t, func(d *ServerDeps) { d.Logs = nil })
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/notifications/logs?recipient_id=u-1", nil).Code)
}

func TestJobs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"certificate-expiry"`)

	w = f.do(t, http.MethodPost, "/jobs/weekly-report/run", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, []string{"weekly-report"}, f.jobs.triggered)
}

func TestRunJob_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown", scheduler.ErrJobNotFound, http.StatusNotFound, "JOB_NOT_FOUND"},
		{"running", scheduler.ErrJobRunning, http.StatusConflict, "JOB_ALREADY_RUNNING"},
		{"pool closed", errors.New("submit job: worker pool is closed"), http.StatusServiceUnavailable, "JOB_TRIGGER_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.jobs.err = tt.err
			w := f.do(t, http.MethodPost, "/jobs/weekly-report/run", nil)
			require.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decode[errorBody](t, w).Code)
		})
	}

	f := newFixture(t, func(d *ServerDeps) { d.Jobs = nil })
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/jobs", nil).Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/live", nil).Code)
	w := f.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"mongo":"ok"}}`, w.Body.String())

	f = newFixture(t, func(d *ServerDeps) {
		d.HealthChecks["postgres"] = func(context.Context) error { return errors.New("refused") }
	})
	w = f.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"mongo":"ok","postgres":"error"}}`, w.Body.String())

	f = newFixture(t, func(d *ServerDeps) {
		d.PoolStats = func() map[string]interface{} {
			return map[string]interface{}{"delivery": map[string]int{"running": 1, "free": 9, "cap": 10}}
		}
	})
	w = f.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"mongo":"ok"},"pools":{"delivery":{"running":1,"free":9,"cap":10}}}`, w.Body.String())
}

func TestJSONFieldName(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"RecipientID":   "recipient_id",
		"TrainingTitle": "training_title",
		"Kind":          "kind",
		"URL":           "url",
	} {
		assert.Equal(t, want, jsonFieldName(in), in)
	}
}

type capturingTransport struct {
	sent []notification.Envelope
}

func (t *capturingTransport) VerifyConnection(context.Context) error { return nil }

func (t *capturingTransport) Send(_ context.Context, env notification.Envelope) error {
	t.sent = append(t.sent, env)
	return nil
}

func TestSendEndpoints_GreetRecipientByName(t *testing.T) {
	t.Parallel()

	templates, err := notification.DefaultTemplates()
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		body map[string]any
	}{
		{"welcome", "/notifications/welcome", map[string]any{"recipient_id": "u-1"}},
		{"training completion", "/notifications/training-completion", map[string]any{
			"recipient_id": "u-1", "training_title": "Security 101", "score": 92,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			transport := &capturingTransport{}
			f := newFixture(t, func(d *ServerDeps) {
				d.Dispatcher = notification.NewDispatcher(notification.DispatcherDeps{
					Templates: templates,
					Channels:  []notification.Deliverer{notification.NewEmailChannel(transport, "noreply@example.com", time.Second)},
				})
			})

			w := f.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			require.Len(t, transport.sent, 1)
			assert.Contains(t, transport.sent[0].HTML, "أحمد")
			assert.NotContains(t, transport.sent[0].HTML, "{name}")
		})
	}
}

func TestWithRecipientName(t *testing.T) {
	t.Parallel()

	to := notification.Recipient{ID: "u-1", Name: "أحمد"}
	assert.Equal(t, "أحمد", withRecipientName(nil, to)["name"])
	assert.Equal(t, "Ahmad", withRecipientName(notification.Data{"name": "Ahmad"}, to)["name"])
}

func TestActorFromCtx(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		keys map[string]any
		want string
	}{
		{"username wins", map[string]any{"username": "ops", "user_id": "u-7"}, "ops"},
		{"falls back to user id", map[string]any{"user_id": "u-7"}, "u-7"},
		{"anonymous", nil, "anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			for k, v := range tt.keys {
				c.Set(k, v)
			}
			assert.Equal(t, tt.want, actorFromCtx(c))
		})
	}
}

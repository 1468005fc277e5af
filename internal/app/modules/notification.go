package modules

import (
	"context"
	"fmt"
	"os"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"xixu.io/notifier/internal/api/handlers"
	"xixu.io/notifier/internal/config"
	"xixu.io/notifier/internal/mail"
	"xixu.io/notifier/internal/notification"
	"xixu.io/notifier/internal/pkg/logger"
	"xixu.io/notifier/internal/push"
	"xixu.io/notifier/internal/storage"
)

// NotificationModule wires templates, channels and the dispatcher.
type NotificationModule struct {
	infra        *Infrastructure
	templates    *notification.TemplateStore
	dispatcher   *notification.Dispatcher
	kafka        *push.KafkaGateway
	certificates *storage.CertificateLinker
}

// NewNotificationModule builds the dispatch pipeline. An unreachable mail
// server is logged and does not stop startup.
func NewNotificationModule(ctx context.Context, infra *Infrastructure) (*NotificationModule, error) {
	cfg := infra.Config
	m := &NotificationModule{infra: infra}

	templates, err := loadTemplates(cfg.Notification)
	if err != nil {
		return nil, err
	}
	m.templates = templates

	transport, err := mail.NewSMTPTransport(mail.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		Secure:   cfg.SMTP.Secure,
		Timeout:  cfg.SMTP.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init mail transport: %w", err)
	}
	if err := transport.VerifyConnection(ctx); err != nil {
		logger.Warn("mail transport verification failed", zap.String("host", cfg.SMTP.Host), zap.Error(err))
	} else {
		logger.Info("mail transport verified", zap.String("host", cfg.SMTP.Host))
	}

	var gateway notification.PushGateway = push.LogGateway{}
	if cfg.Push.Mode == config.PushModeKafka {
		m.kafka, err = push.NewKafkaGateway(cfg.Push.Brokers, cfg.Push.Topic)
		if err != nil {
			return nil, fmt.Errorf("init push gateway: %w", err)
		}
		gateway = m.kafka
	}

	if cfg.Storage.Enabled {
		m.certificates, err = storage.NewMinioCertificateLinker(storage.Config{
			Endpoint:   cfg.Storage.Endpoint,
			AccessKey:  cfg.Storage.AccessKey,
			SecretKey:  cfg.Storage.SecretKey,
			UseSSL:     cfg.Storage.UseSSL,
			Bucket:     cfg.Storage.Bucket,
			LinkExpiry: cfg.Storage.LinkExpiry,
		})
		if err != nil {
			return nil, fmt.Errorf("init certificate storage: %w", err)
		}
	}

	m.dispatcher = notification.NewDispatcher(notification.DispatcherDeps{
		Templates: templates,
		Channels: []notification.Deliverer{
			notification.NewEmailChannel(transport, cfg.Notification.FromAddress, cfg.Notification.EmailTimeout),
			notification.NewPushChannel(gateway, cfg.Notification.PushTimeout),
		},
		Events: infra.Emitter,
		Logs:   infra.LogSink,
		Pool:   infra.Pools.Delivery,
	})

	logger.Info("notification pipeline ready",
		zap.Int("templates", len(templates.Kinds())),
		zap.String("push_mode", cfg.Push.Mode),
		zap.Bool("certificate_links", m.certificates != nil),
	)
	return m, nil
}

func loadTemplates(cfg config.NotificationConfig) (*notification.TemplateStore, error) {
	if cfg.TemplatesFile == "" {
		return notification.DefaultTemplates()
	}
	data, err := os.ReadFile(cfg.TemplatesFile)
	if err != nil {
		return nil, fmt.Errorf("read templates file: %w", err)
	}
	return notification.LoadTemplates(data)
}

// Dispatcher returns the dispatcher used by the scheduled scans.
func (m *NotificationModule) Dispatcher() *notification.Dispatcher { return m.dispatcher }

func (m *NotificationModule) Name() string { return "notification" }

func (m *NotificationModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Dispatcher = m.dispatcher
	deps.Templates = m.templates
	deps.Recipients = m.infra.Directory
	if m.certificates != nil {
		deps.Certificates = m.certificates
	}
}

func (m *NotificationModule) RegisterWorkers(*river.Workers) {}

func (m *NotificationModule) Shutdown(context.Context) error {
	if m.kafka != nil {
		return m.kafka.Close()
	}
	return nil
}

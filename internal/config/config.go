// Package config provides configuration management for the notifier.
//
// Configuration is loaded from:
// 1. a local .env file (optional, never overrides the environment)
// 2. config.yaml (optional)
// 3. Environment variables (standard names like SMTP_HOST, MONGO_URI, SERVER_PORT)
// 4. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Push gateway modes.
const (
	PushModeLog   = "log"
	PushModeKafka = "kafka"
)

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Mongo        MongoConfig        `mapstructure:"mongo"`
	Database     DatabaseConfig     `mapstructure:"database"`
	River        RiverConfig        `mapstructure:"river"`
	SMTP         SMTPConfig         `mapstructure:"smtp"`
	Push         PushConfig         `mapstructure:"push"`
	Events       EventsConfig       `mapstructure:"events"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Notification NotificationConfig `mapstructure:"notification"`
	Security     SecurityConfig     `mapstructure:"security"`
	Worker       WorkerConfig       `mapstructure:"worker"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	AllowCredentials      bool     `mapstructure:"allow_credentials"`
	UnsafeAllowAllOrigins bool     `mapstructure:"unsafe_allow_all_origins"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// MongoConfig points at the training platform's database, which owns users,
// certificates, trainings and mentorships.
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings for the dispatch
// log and the River queue. Both share one pool.
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
	// LogRetention is how long dispatch log rows are kept.
	LogRetention time.Duration `mapstructure:"log_retention"`
}

// SMTPConfig contains the mail transport settings.
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Secure   bool          `mapstructure:"secure"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PushConfig selects the push gateway.
type PushConfig struct {
	Mode    string   `mapstructure:"mode"` // log or kafka
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// EventsConfig configures event forwarding to Redis.
type EventsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Channel       string `mapstructure:"channel"`
}

// StorageConfig points at the certificate bucket.
type StorageConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Endpoint   string        `mapstructure:"endpoint"`
	AccessKey  string        `mapstructure:"access_key"`
	SecretKey  string        `mapstructure:"secret_key"`
	UseSSL     bool          `mapstructure:"use_ssl"`
	Bucket     string        `mapstructure:"bucket"`
	LinkExpiry time.Duration `mapstructure:"link_expiry"`
}

// SchedulerConfig configures the periodic scans.
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Timezone string `mapstructure:"timezone"`

	CertificateExpiry   string `mapstructure:"certificate_expiry"`
	TrainingReminders   string `mapstructure:"training_reminders"`
	MentorshipReminders string `mapstructure:"mentorship_reminders"`
	WeeklyReport        string `mapstructure:"weekly_report"`

	FrontendURL       string        `mapstructure:"frontend_url"`
	DateLayout        string        `mapstructure:"date_layout"`
	CertificateWindow time.Duration `mapstructure:"certificate_window"`
	ReminderWindow    time.Duration `mapstructure:"reminder_window"`
	ReportPeriod      time.Duration `mapstructure:"report_period"`
}

// Location resolves Timezone.
func (c SchedulerConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// NotificationConfig contains dispatch settings.
type NotificationConfig struct {
	FromAddress  string        `mapstructure:"from_address"`
	EmailTimeout time.Duration `mapstructure:"email_timeout"`
	PushTimeout  time.Duration `mapstructure:"push_timeout"`
	// TemplatesFile replaces the built-in templates when set.
	TemplatesFile string `mapstructure:"templates_file"`
}

// SecurityConfig contains security-related settings.
type SecurityConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize  int `mapstructure:"general_pool_size"`
	DeliveryPoolSize int `mapstructure:"delivery_pool_size"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/notifier")

	// No prefix: nested keys map as smtp.host → SMTP_HOST.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Security.JWTSecret) < 32 {
		errs = append(errs, errors.New("security.jwt_secret must be at least 32 characters"))
	}
	if _, err := c.Scheduler.Location(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.timezone %q: %w", c.Scheduler.Timezone, err))
	}
	for key, spec := range map[string]string{
		"scheduler.certificate_expiry":   c.Scheduler.CertificateExpiry,
		"scheduler.training_reminders":   c.Scheduler.TrainingReminders,
		"scheduler.mentorship_reminders": c.Scheduler.MentorshipReminders,
		"scheduler.weekly_report":        c.Scheduler.WeeklyReport,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", key, spec, err))
		}
	}
	for key, d := range map[string]time.Duration{
		"smtp.timeout":               c.SMTP.Timeout,
		"notification.email_timeout": c.Notification.EmailTimeout,
		"notification.push_timeout":  c.Notification.PushTimeout,
		"mongo.connect_timeout":      c.Mongo.ConnectTimeout,
		"server.shutdown_timeout":    c.Server.ShutdownTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}
	switch c.Push.Mode {
	case PushModeLog:
	case PushModeKafka:
		if len(c.Push.Brokers) == 0 || c.Push.Topic == "" {
			errs = append(errs, errors.New("push.brokers and push.topic are required in kafka mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("push.mode %q must be %q or %q", c.Push.Mode, PushModeLog, PushModeKafka))
	}
	if c.Notification.FromAddress == "" {
		errs = append(errs, errors.New("notification.from_address must not be empty"))
	}
	if c.Storage.Enabled && (c.Storage.Endpoint == "" || c.Storage.Bucket == "") {
		errs = append(errs, errors.New("storage.endpoint and storage.bucket are required when storage is enabled"))
	}

	return errors.Join(errs...)
}

// ensureSecrets generates a JWT secret when none is configured. Tokens
// signed with it do not survive a restart.
func (c *Config) ensureSecrets() error {
	if c.Security.JWTSecret == "" {
		secret, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate jwt secret: %w", err)
		}
		c.Security.JWTSecret = secret
		logBootstrapWarn(
			"auto-generated jwt_secret; set SECURITY_JWT_SECRET env var for persistence",
			zap.Int("length", len(secret)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Mongo
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "training")
	v.SetDefault("mongo.connect_timeout", "10s")

	// Database
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "notifier")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "notifier")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", true)

	// River
	v.SetDefault("river.max_workers", 5)
	v.SetDefault("river.completed_job_retention_period", "24h")
	v.SetDefault("river.log_retention", "2160h")

	// SMTP
	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.secure", false)
	v.SetDefault("smtp.timeout", "30s")

	// Push
	v.SetDefault("push.mode", PushModeLog)
	v.SetDefault("push.brokers", []string{})
	v.SetDefault("push.topic", "push-intents")

	// Events
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.redis_addr", "localhost:6379")
	v.SetDefault("events.redis_password", "")
	v.SetDefault("events.redis_db", 0)
	v.SetDefault("events.channel", "notifications:events")

	// Storage
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "certificates")
	v.SetDefault("storage.link_expiry", "168h")

	// Scheduler
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.timezone", "Asia/Riyadh")
	v.SetDefault("scheduler.certificate_expiry", "0 9 * * *")
	v.SetDefault("scheduler.training_reminders", "0 8 * * *")
	v.SetDefault("scheduler.mentorship_reminders", "0 7 * * *")
	v.SetDefault("scheduler.weekly_report", "0 6 * * 1")
	v.SetDefault("scheduler.frontend_url", "http://localhost:3000")
	v.SetDefault("scheduler.date_layout", "2006/01/02")
	v.SetDefault("scheduler.certificate_window", "720h")
	v.SetDefault("scheduler.reminder_window", "24h")
	v.SetDefault("scheduler.report_period", "168h")

	// Notification
	v.SetDefault("notification.from_address", "noreply@training.local")
	v.SetDefault("notification.email_timeout", "30s")
	v.SetDefault("notification.push_timeout", "10s")
	v.SetDefault("notification.templates_file", "")

	// Security
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_issuer", "notifier")

	// Worker Pool
	v.SetDefault("worker.general_pool_size", 10)
	v.SetDefault("worker.delivery_pool_size", 50)
}

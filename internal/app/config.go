package app

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/odyssey-erp/odyssey-signup/internal/credential"
)

// Expiry scheduler backends.
const (
	SchedulerAsynq = "asynq"
	SchedulerTimer = "timer"
)

// Mail drivers.
const (
	MailDriverSMTP = "smtp"
	MailDriverLog  = "log"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	ServerName        string        `envconfig:"SERVER_NAME" required:"true"`
	Domain            string        `envconfig:"DOMAIN" required:"true"`
	Port              string        `envconfig:"PORT" required:"true"`
	ListenHost        string        `envconfig:"LISTEN_HOST" default:"0.0.0.0"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	PGDSN string `envconfig:"PG_DSN" required:"true"`
	Salt  string `envconfig:"SALT" required:"true"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	SessionSecret string        `envconfig:"SESSION_SECRET"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	CSRFSecret string `envconfig:"CSRF_SECRET"`

	ConfirmationTTL   time.Duration `envconfig:"CONFIRMATION_TTL" default:"1h"`
	SweepSchedule     string        `envconfig:"SWEEP_SCHEDULE" default:"*/5 * * * *"`
	ExpiryScheduler   string        `envconfig:"EXPIRY_SCHEDULER" default:"asynq"`
	EmbeddedWorker    bool          `envconfig:"EMBEDDED_WORKER" default:"false"`
	WorkerConcurrency int           `envconfig:"WORKER_CONCURRENCY" default:"5"`

	MailDriver   string `envconfig:"MAIL_DRIVER" default:"smtp"`
	SMTPUsername string `envconfig:"SMTP_USERNAME" required:"true"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" required:"true"`
	SMTPHost     string `envconfig:"SMTP_HOST" required:"true"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPFrom     string `envconfig:"SMTP_FROM"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := checkRequired(&cfg); err != nil {
		return nil, err
	}
	if len(cfg.Salt) < credential.MinSaltLength {
		return nil, fmt.Errorf("salt must be at least %d bytes", credential.MinSaltLength)
	}
	switch cfg.ExpiryScheduler {
	case SchedulerAsynq, SchedulerTimer:
	default:
		return nil, fmt.Errorf("unknown expiry scheduler %q", cfg.ExpiryScheduler)
	}
	switch cfg.MailDriver {
	case MailDriverSMTP, MailDriverLog:
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.MailDriver)
	}
	if cfg.ConfirmationTTL <= 0 {
		return nil, errors.New("confirmation ttl must be positive")
	}
	if cfg.SessionSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		cfg.SessionSecret = secret
	}
	if cfg.CSRFSecret == "" {
		cfg.CSRFSecret = cfg.SessionSecret
	}
	return &cfg, nil
}

// checkRequired rejects required keys that are set to an empty value.
// envconfig only checks that the variable is present.
func checkRequired(cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	var empty []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("required") != "true" {
			continue
		}
		if v.Field(i).IsZero() {
			empty = append(empty, field.Tag.Get("envconfig"))
		}
	}
	if len(empty) > 0 {
		return fmt.Errorf("required key %s has empty value", strings.Join(empty, ", "))
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ListenHost, c.Port)
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// randomSecret returns a per-process key; sessions do not survive a restart.
func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

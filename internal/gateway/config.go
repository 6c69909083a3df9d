package gateway

import (
	"errors"
	"net"
	"time"

	"github.com/flemzord/sitterd/internal/security"
)

// Config holds HTTP gateway configuration.
type Config struct {
	Bind string `yaml:"bind"`

	// CronSecret is the bearer token external schedulers present on
	// /api/cron/{job} and /status.
	CronSecret string `yaml:"cron_secret"`

	RateLimit security.RateLimitConfig `yaml:"rate_limit"`

	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout must cover the longest job, since triggers wait for the
	// result before responding.
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// HealthTimeout bounds the store ping behind /health.
	HealthTimeout time.Duration `yaml:"health_timeout"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = 2 * time.Second
	}
}

func (c *Config) validate() error {
	var errs []error
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		errs = append(errs, errors.New("gateway: invalid bind address: "+c.Bind))
	}
	if c.CronSecret == "" {
		errs = append(errs, errors.New("gateway: cron_secret is required"))
	}
	return errors.Join(errs...)
}

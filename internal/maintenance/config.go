package maintenance

import (
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/sitterd/internal/notify"
)

// Config holds the maintenance module configuration.
type Config struct {
	// Timezone is the IANA zone birthdays are matched in. Defaults to UTC.
	Timezone string `yaml:"timezone"`

	// InviteTTL is how long a group invite code stays valid. Defaults to 720h.
	InviteTTL time.Duration `yaml:"invite_ttl"`

	// NotificationRetention is how long notifications are kept, read or
	// not. Defaults to 2160h.
	NotificationRetention time.Duration `yaml:"notification_retention"`

	// ImageGracePeriod protects freshly uploaded images that are not linked
	// yet. Defaults to 24h.
	ImageGracePeriod time.Duration `yaml:"image_grace_period"`

	// ImageBatchSize caps the images reclaimed per run. Defaults to 500.
	ImageBatchSize int `yaml:"image_batch_size"`

	// Workers bounds per-candidate concurrency. Defaults to 4.
	Workers int `yaml:"workers"`

	// LeaseTTL bounds how long a crashed process can block a job.
	// Defaults to 15m.
	LeaseTTL time.Duration `yaml:"lease_ttl"`

	// Retry applies to image storage and metadata deletion.
	Retry RetryPolicy `yaml:"retry"`

	Delivery DeliveryConfig `yaml:"delivery"`
}

// DeliveryConfig selects the channels new notifications are pushed to.
type DeliveryConfig struct {
	// Log writes every new notification to the log. Defaults to true.
	Log *bool `yaml:"log"`

	// Webhook, when set, posts every new notification.
	Webhook *notify.WebhookConfig `yaml:"webhook"`
}

func (c *Config) defaults() {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.InviteTTL == 0 {
		c.InviteTTL = 30 * 24 * time.Hour
	}
	if c.NotificationRetention == 0 {
		c.NotificationRetention = 90 * 24 * time.Hour
	}
	if c.ImageGracePeriod == 0 {
		c.ImageGracePeriod = 24 * time.Hour
	}
	if c.ImageBatchSize == 0 {
		c.ImageBatchSize = 500
	}
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	if c.LeaseTTL == 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.Delivery.Log == nil {
		t := true
		c.Delivery.Log = &t
	}
	c.Retry = c.Retry.withDefaults()
}

func (c *Config) validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("maintenance: timezone %q: %w", c.Timezone, err))
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"invite_ttl", c.InviteTTL},
		{"notification_retention", c.NotificationRetention},
		{"image_grace_period", c.ImageGracePeriod},
		{"lease_ttl", c.LeaseTTL},
	} {
		if d.v <= 0 {
			errs = append(errs, fmt.Errorf("maintenance: %s must be positive, got %v", d.name, d.v))
		}
	}
	if c.ImageBatchSize < 0 {
		errs = append(errs, fmt.Errorf("maintenance: image_batch_size must be non-negative, got %d", c.ImageBatchSize))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("maintenance: workers must be non-negative, got %d", c.Workers))
	}
	if c.Delivery.Webhook != nil && c.Delivery.Webhook.URL == "" {
		errs = append(errs, errors.New("maintenance: delivery.webhook.url is required when webhook is set"))
	}
	return errors.Join(errs...)
}

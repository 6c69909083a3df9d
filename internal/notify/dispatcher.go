// Package notify creates notifications exactly once per (recipient,
// idempotency key) and fans new ones out to downstream delivery channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/sitterd/internal/metrics"
	"github.com/flemzord/sitterd/internal/store"
	"github.com/google/uuid"
)

// ErrInvalidDispatch is returned when the recipient or idempotency key is
// empty.
var ErrInvalidDispatch = errors.New("notify: recipient and idempotency key are required")

// Deliverer pushes a freshly created notification to a downstream channel.
type Deliverer interface {
	// Name identifies the channel in logs and metrics.
	Name() string
	Deliver(ctx context.Context, n store.Notification) error
}

// Outcome reports what Dispatch did. Created is false when a notification
// for the same recipient and key already existed; Notification is then the
// previously stored row, or the zero value if it has been swept since.
type Outcome struct {
	Notification store.Notification
	Created      bool
}

// Config wires a Dispatcher.
type Config struct {
	Store      store.NotificationStore
	Deliverers []Deliverer
	Logger     *slog.Logger
	Metrics    *metrics.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	store      store.NotificationStore
	deliverers []Deliverer
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		store:      cfg.Store,
		deliverers: cfg.Deliverers,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
	}
}

// Dispatch inserts a notification for recipientID unless one was already
// dispatched under key. Uniqueness is enforced by the store in the same
// transaction as the insert, so concurrent callers racing on the same key
// produce exactly one row. Delivery failures are logged and never undo the
// stored notification.
func (d *Dispatcher) Dispatch(ctx context.Context, recipientID string, payload store.Payload, key string) (Outcome, error) {
	if recipientID == "" || key == "" {
		return Outcome{}, ErrInvalidDispatch
	}

	n := store.Notification{
		ID:             uuid.NewString(),
		RecipientID:    recipientID,
		IdempotencyKey: key,
		Payload:        payload,
		CreatedAt:      d.now().UTC(),
	}

	stored, created, err := d.store.InsertNotificationIfAbsent(ctx, n)
	if err != nil {
		d.metrics.ObserveNotification(metrics.NotificationError)
		return Outcome{}, fmt.Errorf("notify: dispatch %s to %s: %w", key, recipientID, err)
	}
	if !created {
		d.metrics.ObserveNotification(metrics.NotificationDuplicate)
		d.logger.Debug("notification already dispatched", "recipient", recipientID, "key", key)
		return Outcome{Notification: stored, Created: false}, nil
	}

	d.metrics.ObserveNotification(metrics.NotificationCreated)
	d.deliver(ctx, stored)
	return Outcome{Notification: stored, Created: true}, nil
}

func (d *Dispatcher) deliver(ctx context.Context, n store.Notification) {
	for _, dl := range d.deliverers {
		err := dl.Deliver(ctx, n)
		d.metrics.ObserveDelivery(dl.Name(), err)
		if err != nil {
			d.logger.Warn("notification delivery failed",
				"channel", dl.Name(),
				"notification", n.ID,
				"recipient", n.RecipientID,
				"error", err,
			)
		}
	}
}

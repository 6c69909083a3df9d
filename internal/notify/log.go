package notify

import (
	"context"
	"log/slog"

	"github.com/flemzord/sitterd/internal/store"
)

// LogDeliverer writes every new notification to a logger. It is the
// default channel when no webhook is configured.
type LogDeliverer struct {
	Logger *slog.Logger
}

// Name implements Deliverer.
func (LogDeliverer) Name() string { return "log" }

// Deliver implements Deliverer.
func (l LogDeliverer) Deliver(ctx context.Context, n store.Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification created",
		"id", n.ID,
		"recipient", n.RecipientID,
		"kind", string(n.Payload.Kind),
		"subject", n.Payload.SubjectID,
		"title", n.Payload.Title,
	)
	return nil
}

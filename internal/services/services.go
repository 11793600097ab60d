// Package services holds the business operations behind the HTTP API:
// accounts, quote persistence and billing.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/diewo77/devispro/internal/events"
)

// notifier publishes domain events without failing the calling operation.
type notifier struct {
	pub    events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func newNotifier(pub events.Publisher, logger *slog.Logger) notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if pub == nil {
		pub = &events.LogPublisher{Logger: logger}
	}
	return notifier{pub: pub, logger: logger, now: time.Now}
}

func (n notifier) publish(ctx context.Context, typ string, userID uint, data any) {
	ev := events.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: n.now().UTC(),
		UserID:     userID,
		Data:       data,
	}
	if err := n.pub.Publish(ctx, ev); err != nil {
		n.logger.Warn("publish event failed", "type", typ, "user_id", userID, "error", err)
	}
}

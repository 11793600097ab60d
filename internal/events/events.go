// Package events publishes domain events (user registered, quote submitted,
// payment applied) to a RabbitMQ topic exchange.
package events

import (
	"context"
	"log/slog"
	"time"
)

// Exchange is the topic exchange all events go to.
const Exchange = "devis.events"

// Routing keys.
const (
	UserRegistered  = "user.registered"
	QuoteSubmitted  = "quote.submitted"
	PaymentApplied  = "payment.applied"
	SubscriptionEnd = "subscription.cancelled"
)

// Event is the JSON envelope published on the exchange.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	UserID     uint      `json:"user_id"`
	Data       any       `json:"data,omitempty"`
}

// Publisher sends events. Publishing is best effort: callers log failures
// and carry on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// LogPublisher logs events instead of sending them. It is used when no
// broker is configured or the broker is unreachable at startup.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("event", "exchange", Exchange, "type", ev.Type, "id", ev.ID, "user_id", ev.UserID)
	return nil
}

func (p *LogPublisher) Close() {}

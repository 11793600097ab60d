package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes to a durable topic exchange.
type AMQPPublisher struct {
	mu          sync.Mutex
	conn        *amqp.Connection
	channel     channel
	openChannel func() (channel, error)
	logger      *slog.Logger
	now         func() time.Time
}

// sanitizeURL trims quotes and stray characters before the scheme.
func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(amqpURL string, logger *slog.Logger) (*AMQPPublisher, error) {
	clean, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &AMQPPublisher{conn: conn, logger: logger, now: time.Now}
	p.openChannel = p.declare
	if err := p.open(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// declare opens a channel on the connection and declares the exchange.
func (p *AMQPPublisher) declare() (channel, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", Exchange, err)
	}
	return ch, nil
}

// open replaces the current channel, closing the old one first.
func (p *AMQPPublisher) open() error {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	ch, err := p.openChannel()
	if err != nil {
		return err
	}
	p.channel = ch
	return nil
}

// Publish sends ev with its type as routing key. A failed publish reopens
// the channel and retries once.
func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = p.now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.OccurredAt,
		Type:         ev.Type,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		err = p.channel.PublishWithContext(ctx, Exchange, ev.Type, false, false, msg)
		if err == nil {
			return nil
		}
		p.logger.Warn("publish failed, reopening channel", "type", ev.Type, "error", err)
	}
	if oerr := p.open(); oerr != nil {
		return errors.Join(err, oerr)
	}
	return p.channel.PublishWithContext(ctx, Exchange, ev.Type, false, false, msg)
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// Connect returns an AMQP publisher for amqpURL, or a LogPublisher when it is
// empty or the broker cannot be reached.
func Connect(amqpURL string, logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(amqpURL) == "" {
		return &LogPublisher{Logger: logger}
	}
	p, err := NewAMQPPublisher(amqpURL, logger)
	if err != nil {
		logger.Warn("rabbitmq unavailable, logging events instead", "error", err)
		return &LogPublisher{Logger: logger}
	}
	return p
}

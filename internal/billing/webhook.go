package billing

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Handled event types.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventSubscriptionDeleted    = "customer.subscription.deleted"
)

const (
	paymentStatusPaid            = "paid"
	paymentStatusNoPaymentNeeded = "no_payment_required"
)

// Event is a verified provider event reduced to what the service handles.
type Event struct {
	ID   string
	Type string
	// set for checkout events
	Checkout *CheckoutEvent
	// set for subscription events
	Subscription *SubscriptionEvent
}

type CheckoutEvent struct {
	SessionID     string
	Mode          string
	PaymentStatus string
	CustomerRef   string
	ClientRef     string
	Metadata      map[string]string
}

// Paid reports whether the session's funds are settled.
func (c *CheckoutEvent) Paid() bool {
	return c.PaymentStatus == paymentStatusPaid || c.PaymentStatus == paymentStatusNoPaymentNeeded
}

type SubscriptionEvent struct {
	SubscriptionID string
	CustomerRef    string
	PriceID        string
	Metadata       map[string]string
}

// WebhookVerifier checks webhook signatures with the endpoint secret.
type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Verify checks the Stripe-Signature header against payload and decodes the
// event. Any failure, including an unset secret, is ErrSignature.
func (v *WebhookVerifier) Verify(payload []byte, header string) (Event, error) {
	if v == nil || v.secret == "" {
		return Event{}, fmt.Errorf("%w: no webhook secret configured", ErrSignature)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return decode(ev)
}

func decode(ev stripe.Event) (Event, error) {
	out := Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}
	switch out.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncSucceeded:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return Event{}, fmt.Errorf("billing: parse checkout session: %w", err)
		}
		c := &CheckoutEvent{
			SessionID:     s.ID,
			Mode:          string(s.Mode),
			PaymentStatus: string(s.PaymentStatus),
			ClientRef:     s.ClientReferenceID,
			Metadata:      s.Metadata,
		}
		if s.Customer != nil {
			c.CustomerRef = s.Customer.ID
		}
		out.Checkout = c
	case EventSubscriptionDeleted:
		var s stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return Event{}, fmt.Errorf("billing: parse subscription: %w", err)
		}
		sub := &SubscriptionEvent{SubscriptionID: s.ID, Metadata: s.Metadata}
		if s.Customer != nil {
			sub.CustomerRef = s.Customer.ID
		}
		if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
			sub.PriceID = s.Items.Data[0].Price.ID
		}
		out.Subscription = sub
	}
	return out, nil
}

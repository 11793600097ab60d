package billing

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// stripeProvider is the Stripe implementation of Provider.
type stripeProvider struct {
	sc *client.API
}

// NewStripe returns a Provider authenticated with secretKey.
func NewStripe(secretKey string) Provider {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &stripeProvider{sc: sc}
}

func (s *stripeProvider) CreateCustomer(ctx context.Context, email, name string, userID uint) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata(MetaUserID, strconv.FormatUint(uint64(userID), 10))
	c, err := s.sc.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (s *stripeProvider) LookupPrice(ctx context.Context, priceID string) (Price, error) {
	params := &stripe.PriceParams{}
	params.Context = ctx
	p, err := s.sc.Prices.Get(priceID, params)
	if err != nil {
		return Price{}, fmt.Errorf("stripe get price: %w", err)
	}
	return Price{
		ID:        p.ID,
		Recurring: p.Type == stripe.PriceTypeRecurring || p.Recurring != nil,
		Metadata:  p.Metadata,
	}, nil
}

func (s *stripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(req.Mode),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if req.CustomerRef != "" {
		params.Customer = stripe.String(req.CustomerRef)
	}
	if req.ClientRef != "" {
		params.ClientReferenceID = stripe.String(req.ClientRef)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.Mode == ModeSubscription {
		// the cancellation webhook only sees the subscription
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: req.Metadata,
		}
	}
	sess, err := s.sc.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return CheckoutSession{ID: sess.ID, URL: sess.URL, Mode: string(sess.Mode)}, nil
}

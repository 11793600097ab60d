// Package billing talks to the payment provider (Stripe): customers, prices,
// checkout sessions and signed webhook events.
package billing

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Checkout modes.
const (
	ModeSubscription = "subscription"
	ModePayment      = "payment"
)

// Metadata keys attached to checkout sessions and subscriptions.
const (
	MetaUserID  = "user_id"
	MetaPriceID = "price_id"
	MetaTier    = "tier"
	MetaCredits = "credits"
)

var (
	ErrUnknownPlan = errors.New("billing: price maps to no plan")
	ErrSignature   = errors.New("billing: invalid webhook signature")
)

// ReservedMetadataKey reports whether key is set by the server only.
func ReservedMetadataKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case MetaUserID, MetaPriceID, MetaTier, MetaCredits:
		return true
	}
	return false
}

var priceIDPattern = regexp.MustCompile(`^price_[A-Za-z0-9_]+$`)

// ValidPriceID reports whether id looks like a provider price id.
func ValidPriceID(id string) bool { return priceIDPattern.MatchString(id) }

// Price is the part of a provider price the checkout flow needs.
type Price struct {
	ID        string
	Recurring bool
	Metadata  map[string]string
}

// Mode returns the checkout mode matching the price type.
func (p Price) Mode() string {
	if p.Recurring {
		return ModeSubscription
	}
	return ModePayment
}

// CheckoutRequest describes a session to create.
type CheckoutRequest struct {
	CustomerRef string
	PriceID     string
	Mode        string
	SuccessURL  string
	CancelURL   string
	ClientRef   string
	Metadata    map[string]string
}

// CheckoutSession is a created session.
type CheckoutSession struct {
	ID   string
	URL  string
	Mode string
}

// Provider is the payment provider API used by the service layer.
type Provider interface {
	CreateCustomer(ctx context.Context, email, name string, userID uint) (string, error)
	LookupPrice(ctx context.Context, priceID string) (Price, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
}

// Plan is what a price buys: a subscription tier or a number of credits.
type Plan struct {
	Tier    string
	Credits int
}

// IsSubscription reports whether the plan sets a tier.
func (p Plan) IsSubscription() bool { return p.Tier != "" }

// Catalog maps configured price ids to plans.
type Catalog map[string]Plan

// CatalogConfig holds the configured Stripe price ids.
type CatalogConfig struct {
	BasicPriceID     string
	ProPriceID       string
	Credits10PriceID string
	Credits25PriceID string
}

// NewCatalog builds the catalog from configuration, skipping empty ids.
func NewCatalog(cfg CatalogConfig) Catalog {
	c := Catalog{}
	add := func(id string, p Plan) {
		if id != "" {
			c[id] = p
		}
	}
	add(cfg.BasicPriceID, Plan{Tier: "basic"})
	add(cfg.ProPriceID, Plan{Tier: "pro"})
	add(cfg.Credits10PriceID, Plan{Credits: 10})
	add(cfg.Credits25PriceID, Plan{Credits: 25})
	return c
}

// Resolve returns the plan bought by p: the catalog entry when there is one,
// otherwise the price metadata keys "tier" and "credits".
func (c Catalog) Resolve(p Price) (Plan, error) {
	if plan, ok := c[p.ID]; ok {
		return plan, nil
	}
	return PlanFromMetadata(p.Metadata)
}

// PlanFromMetadata reads a plan from metadata. A tier wins over credits.
func PlanFromMetadata(md map[string]string) (Plan, error) {
	if tier := strings.TrimSpace(md[MetaTier]); tier != "" {
		return Plan{Tier: strings.ToLower(tier)}, nil
	}
	if raw := strings.TrimSpace(md[MetaCredits]); raw != "" {
		n, err := strconv.Atoi(raw)
		if err == nil && n > 0 {
			return Plan{Credits: n}, nil
		}
	}
	return Plan{}, ErrUnknownPlan
}

// MatchesMode reports whether the plan can be bought in the given checkout
// mode: subscriptions set a tier, one-time payments add credits.
func (p Plan) MatchesMode(mode string) bool {
	switch mode {
	case ModeSubscription:
		return p.IsSubscription()
	case ModePayment:
		return !p.IsSubscription() && p.Credits > 0
	}
	return false
}

// Metadata returns the session metadata binding the purchase to a user.
func (p Plan) Metadata(userID uint, priceID string) map[string]string {
	md := map[string]string{
		MetaUserID:  strconv.FormatUint(uint64(userID), 10),
		MetaPriceID: priceID,
	}
	if p.Tier != "" {
		md[MetaTier] = p.Tier
	}
	if p.Credits > 0 {
		md[MetaCredits] = strconv.Itoa(p.Credits)
	}
	return md
}

package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/diewo77/devispro/internal/apperr"
	"github.com/diewo77/devispro/internal/billing"
	"github.com/diewo77/devispro/internal/events"
	"github.com/diewo77/devispro/internal/metrics"
	"github.com/diewo77/devispro/internal/models"
	"github.com/diewo77/devispro/internal/repository"
)

// CheckoutInput is the checkout request body.
type CheckoutInput struct {
	PriceID    string            `json:"priceId"`
	SuccessURL string            `json:"successUrl"`
	CancelURL  string            `json:"cancelUrl"`
	Metadata   map[string]string `json:"metadata"`
}

// Webhook outcomes.
const (
	WebhookApplied   = "applied"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
)

// WebhookResult tells what a delivered event did.
type WebhookResult struct {
	EventID string
	Type    string
	Status  string
}

type BillingService struct {
	store    repository.Store
	provider billing.Provider
	verifier *billing.WebhookVerifier
	catalog  billing.Catalog
	baseURL  string
	notify   notifier
	logger   *slog.Logger
}

// NewBillingService wires the checkout flow. provider may be nil when no
// Stripe key is configured; checkout then fails and webhooks still verify.
func NewBillingService(store repository.Store, provider billing.Provider, verifier *billing.WebhookVerifier, catalog billing.Catalog, baseURL string, pub events.Publisher, logger *slog.Logger) *BillingService {
	n := newNotifier(pub, logger)
	return &BillingService{
		store:    store,
		provider: provider,
		verifier: verifier,
		catalog:  catalog,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		notify:   n,
		logger:   n.logger,
	}
}

// CreateCheckoutSession starts a hosted checkout for priceID. The session
// mode follows the price type and its metadata binds it to the user.
func (s *BillingService) CreateCheckoutSession(ctx context.Context, userID uint, in CheckoutInput) (billing.CheckoutSession, error) {
	const op = "billing.checkout"
	priceID := strings.TrimSpace(in.PriceID)
	if !billing.ValidPriceID(priceID) {
		return billing.CheckoutSession{}, apperr.Validation(op, "invalid_price_id", "invalid price id")
	}
	if s.provider == nil {
		return billing.CheckoutSession{}, apperr.New(apperr.KindPaymentProvider, op, "billing_not_configured", "billing not configured")
	}
	u, err := s.store.Users().ByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return billing.CheckoutSession{}, apperr.NotFound(op, "user_not_found", "user not found")
	}
	if err != nil {
		return billing.CheckoutSession{}, apperr.Internal(err, op)
	}
	customer, err := s.ensureCustomer(ctx, u)
	if err != nil {
		return billing.CheckoutSession{}, apperr.Wrap(err, apperr.KindPaymentProvider, op, "payment_provider_error", "create customer")
	}
	price, err := s.provider.LookupPrice(ctx, priceID)
	if err != nil {
		return billing.CheckoutSession{}, apperr.Wrap(err, apperr.KindPaymentProvider, op, "payment_provider_error", "lookup price")
	}
	plan, err := s.catalog.Resolve(price)
	if err != nil {
		return billing.CheckoutSession{}, apperr.Wrap(err, apperr.KindValidation, op, "unknown_plan", "price maps to no plan")
	}
	if !plan.MatchesMode(price.Mode()) {
		return billing.CheckoutSession{}, apperr.Validation(op, "unknown_plan", "price type does not match its plan")
	}

	md := map[string]string{}
	for k, v := range in.Metadata {
		if billing.ReservedMetadataKey(k) {
			continue
		}
		md[k] = v
	}
	for k, v := range plan.Metadata(u.ID, priceID) {
		md[k] = v
	}
	req := billing.CheckoutRequest{
		CustomerRef: customer,
		PriceID:     priceID,
		Mode:        price.Mode(),
		SuccessURL:  orDefault(in.SuccessURL, s.baseURL+"/success.html?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:   orDefault(in.CancelURL, s.baseURL+"/pricing.html"),
		ClientRef:   strconv.FormatUint(uint64(u.ID), 10),
		Metadata:    md,
	}
	sess, err := s.provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		metrics.CheckoutSessions.WithLabelValues(req.Mode, "error").Inc()
		return billing.CheckoutSession{}, apperr.Wrap(err, apperr.KindPaymentProvider, op, "payment_provider_error", "create session")
	}
	if sess.Mode == "" {
		sess.Mode = req.Mode
	}
	metrics.CheckoutSessions.WithLabelValues(sess.Mode, "created").Inc()
	s.logger.Info("checkout session created", "user_id", u.ID, "session_id", sess.ID, "mode", sess.Mode, "price_id", priceID)
	return sess, nil
}

// ensureCustomer returns the user's provider customer, creating it on first use.
func (s *BillingService) ensureCustomer(ctx context.Context, u *models.User) (string, error) {
	if u.PaymentCustomerRef != "" {
		return u.PaymentCustomerRef, nil
	}
	ref, err := s.provider.CreateCustomer(ctx, u.Email, u.FullName(), u.ID)
	if err != nil {
		return "", err
	}
	if err := s.store.Users().SetCustomerRef(ctx, u.ID, ref); err != nil {
		return "", err
	}
	u.PaymentCustomerRef = ref
	return ref, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

// HandleWebhook verifies and applies a provider event. Each applied event is
// recorded in the transaction that mutates the user, so a replay finds the
// record and changes nothing.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	const op = "billing.webhook"
	ev, err := s.verifier.Verify(payload, signature)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		return WebhookResult{}, apperr.Wrap(err, apperr.KindSignature, op, "invalid_signature", "invalid signature")
	}
	res := WebhookResult{EventID: ev.ID, Type: ev.Type, Status: WebhookIgnored}

	switch {
	case ev.Checkout != nil:
		res.Status, err = s.applyCheckout(ctx, ev)
	case ev.Subscription != nil && ev.Type == billing.EventSubscriptionDeleted:
		res.Status, err = s.applyCancellation(ctx, ev)
	}
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(ev.Type, "error").Inc()
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return res, err
		}
		return res, apperr.Internal(err, op)
	}
	metrics.WebhookEvents.WithLabelValues(ev.Type, res.Status).Inc()
	s.logger.Info("webhook processed", "event_id", ev.ID, "type", ev.Type, "status", res.Status)
	return res, nil
}

func (s *BillingService) applyCheckout(ctx context.Context, ev billing.Event) (string, error) {
	c := ev.Checkout
	// async payments complete later with their own event
	if !c.Paid() {
		s.logger.Info("checkout not paid yet", "session_id", c.SessionID, "payment_status", c.PaymentStatus)
		return WebhookIgnored, nil
	}
	plan, err := s.planFor(c.Metadata)
	if err != nil {
		s.logger.Warn("checkout without a plan", "session_id", c.SessionID, "error", err)
		return WebhookIgnored, nil
	}
	if !plan.MatchesMode(c.Mode) {
		s.logger.Warn("checkout plan does not match its mode", "session_id", c.SessionID, "mode", c.Mode, "tier", plan.Tier, "credits", plan.Credits)
		return WebhookIgnored, nil
	}
	if plan.IsSubscription() && !models.ValidTier(plan.Tier) {
		s.logger.Warn("checkout for an unknown tier", "session_id", c.SessionID, "tier", plan.Tier)
		return WebhookIgnored, nil
	}

	status := WebhookApplied
	var userID uint
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		u, err := findUser(ctx, tx, c.Metadata[billing.MetaUserID], c.ClientRef, c.CustomerRef)
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("checkout for an unknown user", "session_id", c.SessionID, "customer", c.CustomerRef)
			status = WebhookIgnored
			return nil
		}
		if err != nil {
			return err
		}
		userID = u.ID
		inserted, err := tx.PaymentEvents().Record(ctx, &models.PaymentEvent{
			ProviderRef: c.SessionID,
			EventID:     ev.ID,
			Type:        ev.Type,
			UserID:      u.ID,
			Credits:     plan.Credits,
			Tier:        plan.Tier,
		})
		if err != nil {
			return err
		}
		if !inserted {
			status = WebhookDuplicate
			return nil
		}
		if plan.IsSubscription() {
			quota, _ := models.PlanQuota(plan.Tier)
			err = tx.Users().ApplySubscription(ctx, u.ID, plan.Tier, quota)
		} else {
			err = tx.Users().AddCredits(ctx, u.ID, plan.Credits)
		}
		if err != nil {
			return err
		}
		if u.PaymentCustomerRef == "" && c.CustomerRef != "" {
			return tx.Users().SetCustomerRef(ctx, u.ID, c.CustomerRef)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if status == WebhookApplied {
		s.notify.publish(ctx, events.PaymentApplied, userID, map[string]any{
			"session_id": c.SessionID,
			"tier":       plan.Tier,
			"credits":    plan.Credits,
		})
	}
	return status, nil
}

func (s *BillingService) applyCancellation(ctx context.Context, ev billing.Event) (string, error) {
	sub := ev.Subscription
	status := WebhookApplied
	var userID uint
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		u, err := findUser(ctx, tx, sub.Metadata[billing.MetaUserID], "", sub.CustomerRef)
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("cancellation for an unknown user", "subscription", sub.SubscriptionID, "customer", sub.CustomerRef)
			status = WebhookIgnored
			return nil
		}
		if err != nil {
			return err
		}
		userID = u.ID
		inserted, err := tx.PaymentEvents().Record(ctx, &models.PaymentEvent{
			ProviderRef: ev.ID,
			EventID:     ev.ID,
			Type:        ev.Type,
			UserID:      u.ID,
			Tier:        models.TierFree,
		})
		if err != nil {
			return err
		}
		if !inserted {
			status = WebhookDuplicate
			return nil
		}
		// credits are left untouched
		return tx.Users().SetTier(ctx, u.ID, models.TierFree)
	})
	if err != nil {
		return "", err
	}
	if status == WebhookApplied {
		s.notify.publish(ctx, events.SubscriptionEnd, userID, map[string]any{"subscription_id": sub.SubscriptionID})
	}
	return status, nil
}

// planFor prefers the configured catalog entry of the session's price over
// the tier/credits metadata.
func (s *BillingService) planFor(md map[string]string) (billing.Plan, error) {
	if p, ok := s.catalog[md[billing.MetaPriceID]]; ok {
		return p, nil
	}
	return billing.PlanFromMetadata(md)
}

// findUser resolves the purchaser from the metadata user id, then the client
// reference, then the provider customer.
func findUser(ctx context.Context, tx repository.Store, metaUserID, clientRef, customerRef string) (*models.User, error) {
	for _, raw := range []string{metaUserID, clientRef} {
		id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
		if err != nil || id == 0 {
			continue
		}
		u, err := tx.Users().ByID(ctx, uint(id))
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	return tx.Users().ByCustomerRef(ctx, customerRef)
}

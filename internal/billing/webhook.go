// Package billing connects companies to their Stripe subscription.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/org/chatgateway/internal/storage"
	"github.com/org/chatgateway/pkg/models"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"
)

// Stripe webhook event types and transport limits.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"

	SignatureHeader   = "Stripe-Signature"
	MaxWebhookPayload = 65536
)

// ErrInvalidSignature means the payload was not signed with the webhook secret.
var ErrInvalidSignature = errors.New("invalid stripe signature")

// Store is the persistence the webhook needs.
type Store interface {
	SetCompanyBilling(ctx context.Context, companyID, customerID, subscriptionID string) error
	GetPlanByPriceID(ctx context.Context, priceID string) (*models.Plan, error)
	SetSubscriptionPlan(ctx context.Context, subscriptionID string, planID *string) error
}

// Webhook applies verified Stripe events to company billing state.
type Webhook struct {
	store  Store
	secret string
}

// NewWebhook creates a Webhook verifying payloads with secret.
func NewWebhook(store Store, secret string) *Webhook {
	return &Webhook{store: store, secret: secret}
}

// Handle verifies payload and applies it. It returns the event type, also
// for events that are acknowledged without any change.
func (w *Webhook) Handle(ctx context.Context, payload []byte, signature string) (string, error) {
	event, err := webhook.ConstructEvent(payload, signature, w.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return event.Type, fmt.Errorf("event %s has no data", event.ID)
	}

	switch event.Type {
	case EventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return event.Type, fmt.Errorf("decoding checkout session: %w", err)
		}
		return event.Type, w.checkoutCompleted(ctx, &session)

	case EventSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return event.Type, fmt.Errorf("decoding subscription: %w", err)
		}
		return event.Type, w.subscriptionUpdated(ctx, &sub)

	case EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return event.Type, fmt.Errorf("decoding subscription: %w", err)
		}
		if err := w.store.SetSubscriptionPlan(ctx, sub.ID, nil); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return event.Type, fmt.Errorf("clearing plan: %w", err)
		}
		log.Info().Str("subscription_id", sub.ID).Msg("subscription cancelled, plan cleared")
	}
	return event.Type, nil
}

func (w *Webhook) checkoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	companyID := session.ClientReferenceID
	if companyID == "" {
		log.Warn().Str("checkout_session", session.ID).Msg("checkout without client_reference_id, ignored")
		return nil
	}
	var customerID, subscriptionID string
	if session.Customer != nil {
		customerID = session.Customer.ID
	}
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}
	if err := w.store.SetCompanyBilling(ctx, companyID, customerID, subscriptionID); err != nil {
		return fmt.Errorf("storing billing ids for company %s: %w", companyID, err)
	}
	log.Info().Str("company_id", companyID).Str("subscription_id", subscriptionID).Msg("checkout completed")
	return nil
}

func (w *Webhook) subscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error {
	priceID := firstPriceID(sub)
	if priceID == "" {
		return fmt.Errorf("subscription %s has no price", sub.ID)
	}
	plan, err := w.store.GetPlanByPriceID(ctx, priceID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn().Str("price_id", priceID).Msg("no plan for stripe price, ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up plan for price %s: %w", priceID, err)
	}
	if err := w.store.SetSubscriptionPlan(ctx, sub.ID, &plan.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn().Str("subscription_id", sub.ID).Msg("subscription not linked to a company yet")
			return nil
		}
		return fmt.Errorf("assigning plan: %w", err)
	}
	log.Info().Str("subscription_id", sub.ID).Str("plan", plan.Name).Msg("subscription plan updated")
	return nil
}

func firstPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil && item.Price.ID != "" {
			return item.Price.ID
		}
	}
	return ""
}

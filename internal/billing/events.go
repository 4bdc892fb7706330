package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/metrics"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/PortNumber53/tubeshelf/backend/internal/plans"
	"github.com/PortNumber53/tubeshelf/backend/internal/profiles"
	"github.com/stripe/stripe-go/v79"
)

// EventLog records processed Stripe events so redeliveries are skipped.
type EventLog struct {
	db *sql.DB
}

func NewEventLog(db *sql.DB) *EventLog {
	return &EventLog{db: db}
}

// Record returns false when the event was already recorded.
func (l *EventLog) Record(ctx context.Context, ev stripe.Event) (bool, error) {
	var data []byte
	if ev.Data != nil {
		data = ev.Data.Raw
	}
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO public.billing_events (id, stripe_event_id, stripe_event_type, data, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (stripe_event_id) DO NOTHING
	`, "evt_"+ev.ID, ev.ID, string(ev.Type), data)
	if err != nil {
		return false, fmt.Errorf("record event %s: %w", ev.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Forget removes a recorded event so a redelivery is processed again.
func (l *EventLog) Forget(ctx context.Context, eventID string) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM public.billing_events WHERE stripe_event_id = $1`, eventID)
	return err
}

// ParseWebhook verifies and decodes a webhook delivery.
func (o *Orchestrator) ParseWebhook(payload []byte, signature string) (stripe.Event, error) {
	if o.gateway == nil {
		return stripe.Event{}, ErrNotConfigured
	}
	return o.gateway.ParseWebhook(payload, signature)
}

// HandleEvent applies a Stripe event once. A failed event is forgotten so
// Stripe's redelivery can apply it.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev stripe.Event) error {
	fresh, err := o.events.Record(ctx, ev)
	if err != nil {
		return err
	}
	if !fresh {
		o.log.Info().Str("event", ev.ID).Msg("duplicate webhook event skipped")
		return nil
	}
	metrics.WebhookEventsTotal.WithLabelValues(string(ev.Type)).Inc()

	if err := o.applyEvent(ctx, ev); err != nil {
		o.log.Error().Err(err).Str("event", ev.ID).Str("type", string(ev.Type)).Msg("webhook event failed")
		if ferr := o.events.Forget(ctx, ev.ID); ferr != nil {
			o.log.Error().Err(ferr).Str("event", ev.ID).Msg("forget event failed")
		}
		return err
	}
	return nil
}

func (o *Orchestrator) applyEvent(ctx context.Context, ev stripe.Event) error {
	if ev.Data == nil {
		return fmt.Errorf("event %s has no data", ev.ID)
	}
	switch ev.Type {
	case "checkout.session.completed":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return o.checkoutCompleted(ctx, s)
	case "customer.subscription.created", "customer.subscription.updated":
		var s stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return o.subscriptionChanged(ctx, s)
	case "customer.subscription.deleted":
		var s stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return o.subscriptionDeleted(ctx, s)
	default:
		o.log.Debug().Str("type", string(ev.Type)).Msg("unhandled webhook event type")
		return nil
	}
}

func (o *Orchestrator) checkoutCompleted(ctx context.Context, s stripe.CheckoutSession) error {
	userID := s.ClientReferenceID
	if userID == "" {
		userID = s.Metadata["userId"]
	}
	plan, ok := models.ParsePlanType(s.Metadata["planType"])
	if userID == "" || !ok {
		return fmt.Errorf("checkout session %s lacks user or plan", s.ID)
	}
	tier, err := o.catalog.Get(ctx, plan)
	if err != nil {
		return err
	}
	if s.Customer != nil && s.Customer.ID != "" {
		if err := o.profiles.SetStripeCustomer(ctx, userID, s.Customer.ID); err != nil {
			return err
		}
	}
	var trialEnd *time.Time
	if o.cfg.TrialDays > 0 {
		t := o.now().UTC().AddDate(0, 0, int(o.cfg.TrialDays))
		trialEnd = &t
	}
	if err := o.profiles.ActivateTrial(ctx, userID, plan, tier.MonthlyUploadLimit, trialEnd); err != nil {
		return err
	}
	o.log.Info().Str("userId", userID).Str("plan", string(plan)).Msg("checkout completed")
	return nil
}

func (o *Orchestrator) subscriptionOwner(ctx context.Context, s stripe.Subscription) (string, error) {
	if id := s.Metadata["userId"]; id != "" {
		return id, nil
	}
	if s.Customer == nil || s.Customer.ID == "" {
		return "", fmt.Errorf("subscription %s has no customer", s.ID)
	}
	return o.profiles.UserForCustomer(ctx, s.Customer.ID)
}

func (o *Orchestrator) subscriptionChanged(ctx context.Context, s stripe.Subscription) error {
	userID, err := o.subscriptionOwner(ctx, s)
	if err != nil {
		return err
	}
	plan := models.PlanFree
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		tier, err := o.catalog.TierForPrice(ctx, s.Items.Data[0].Price.ID)
		if err != nil && !errors.Is(err, plans.ErrUnknownTier) {
			return err
		}
		if err == nil {
			plan = tier.ID
		}
	}
	status := string(s.Status)
	if s.Status != stripe.SubscriptionStatusActive && s.Status != stripe.SubscriptionStatusTrialing {
		plan = models.PlanFree
	}
	tier, err := o.catalog.Get(ctx, plan)
	if err != nil {
		return err
	}
	var end *time.Time
	if s.CurrentPeriodEnd > 0 {
		t := time.Unix(s.CurrentPeriodEnd, 0).UTC()
		end = &t
	}
	return o.profiles.UpdateSubscription(ctx, userID, plan, tier.MonthlyUploadLimit, status, end)
}

func (o *Orchestrator) subscriptionDeleted(ctx context.Context, s stripe.Subscription) error {
	userID, err := o.subscriptionOwner(ctx, s)
	if errors.Is(err, profiles.ErrNotFound) {
		o.log.Warn().Str("subscription", s.ID).Msg("deleted subscription has no profile")
		return nil
	}
	if err != nil {
		return err
	}
	tier, err := o.catalog.Get(ctx, models.PlanFree)
	if err != nil {
		return err
	}
	var end *time.Time
	if s.EndedAt > 0 {
		t := time.Unix(s.EndedAt, 0).UTC()
		end = &t
	}
	o.log.Info().Str("userId", userID).Msg("subscription deleted, downgrading to free")
	return o.profiles.UpdateSubscription(ctx, userID, models.PlanFree, tier.MonthlyUploadLimit, "canceled", end)
}

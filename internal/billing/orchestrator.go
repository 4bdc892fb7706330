// Package billing turns plan selections into profile updates or Stripe
// checkout sessions and keeps profiles in step with Stripe.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/config"
	"github.com/PortNumber53/tubeshelf/backend/internal/logging"
	"github.com/PortNumber53/tubeshelf/backend/internal/metrics"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/PortNumber53/tubeshelf/backend/internal/plans"
	"github.com/PortNumber53/tubeshelf/backend/internal/profiles"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidPlan    = errors.New("invalid plan type")
	ErrNotConfigured  = errors.New("payments are not configured")
	ErrNoPrice        = errors.New("plan has no stripe price")
	ErrInvalidWebhook = errors.New("invalid webhook payload")
)

type SelectionKind int

const (
	AuthRequired SelectionKind = iota
	PlanUpdated
	CheckoutRedirect
)

func (k SelectionKind) String() string {
	switch k {
	case AuthRequired:
		return "auth_required"
	case PlanUpdated:
		return "plan_updated"
	case CheckoutRedirect:
		return "checkout_redirect"
	}
	return "unknown"
}

type Selection struct {
	Kind        SelectionKind   `json:"-"`
	Plan        models.PlanType `json:"plan"`
	RedirectURL string          `json:"redirectUrl,omitempty"`
}

// SubscriptionState is the outcome of CheckSubscription.
type SubscriptionState struct {
	Subscribed bool            `json:"subscribed"`
	PlanType   models.PlanType `json:"planType"`
	Status     string          `json:"status,omitempty"`
	EndDate    *time.Time      `json:"endDate,omitempty"`
}

type Orchestrator struct {
	gateway  Gateway
	catalog  *plans.Catalog
	profiles *profiles.Store
	events   *EventLog
	cfg      config.BillingConfig
	now      func() time.Time
	log      zerolog.Logger
}

// NewOrchestrator accepts a nil gateway; paid plans then fail with
// ErrNotConfigured.
func NewOrchestrator(gateway Gateway, catalog *plans.Catalog, profileStore *profiles.Store, events *EventLog, cfg config.BillingConfig) *Orchestrator {
	if cfg.SuccessPath == "" {
		cfg.SuccessPath = "/dashboard?success=true"
	}
	if cfg.CancelPath == "" {
		cfg.CancelPath = "/pricing?canceled=true"
	}
	return &Orchestrator{
		gateway:  gateway,
		catalog:  catalog,
		profiles: profileStore,
		events:   events,
		cfg:      cfg,
		now:      time.Now,
		log:      logging.Component("billing"),
	}
}

func (o *Orchestrator) Configured() bool { return o.gateway != nil }

// SelectPlan handles a plan choice from the pricing page. Without a session
// the caller is sent to sign in with the plan remembered.
func (o *Orchestrator) SelectPlan(ctx context.Context, sess *models.Session, rawPlan, origin string) (Selection, error) {
	plan, ok := models.ParsePlanType(rawPlan)
	if !ok {
		return Selection{}, ErrInvalidPlan
	}
	if sess == nil {
		return Selection{Kind: AuthRequired, Plan: plan, RedirectURL: "/auth?plan=" + url.QueryEscape(string(plan))}, nil
	}
	if !plan.Paid() {
		tier, err := o.catalog.Get(ctx, plan)
		if err != nil {
			return Selection{}, err
		}
		if err := o.profiles.SetPlan(ctx, sess.UserID, plan, tier.MonthlyUploadLimit); err != nil {
			return Selection{}, err
		}
		o.log.Info().Str("userId", sess.UserID).Str("plan", string(plan)).Msg("plan updated")
		return Selection{Kind: PlanUpdated, Plan: plan}, nil
	}
	u, err := o.CreateCheckout(ctx, models.User{ID: sess.UserID, Email: sess.Email}, plan, origin)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Kind: CheckoutRedirect, Plan: plan, RedirectURL: u}, nil
}

// CreateCheckout opens a subscription checkout for a paid tier and returns
// the hosted checkout URL. Failures are not retried.
func (o *Orchestrator) CreateCheckout(ctx context.Context, user models.User, plan models.PlanType, origin string) (string, error) {
	if !plan.Paid() {
		return "", ErrInvalidPlan
	}
	if o.gateway == nil {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(user.Email) == "" {
		return "", fmt.Errorf("user %s has no email", user.ID)
	}
	u, err := o.createCheckout(ctx, user, plan, origin)
	result := "ok"
	if err != nil {
		result = "error"
		o.log.Error().Err(err).Str("userId", user.ID).Str("plan", string(plan)).Msg("checkout failed")
	}
	metrics.CheckoutSessionsTotal.WithLabelValues(string(plan), result).Inc()
	return u, err
}

func (o *Orchestrator) createCheckout(ctx context.Context, user models.User, plan models.PlanType, origin string) (string, error) {
	tier, err := o.catalog.Get(ctx, plan)
	if err != nil {
		return "", err
	}
	if tier.StripePriceID == nil {
		return "", ErrNoPrice
	}

	customerID, err := o.gateway.FindCustomer(ctx, user.Email)
	if err != nil {
		return "", err
	}
	if customerID == "" {
		if customerID, err = o.gateway.CreateCustomer(ctx, user.Email, user.ID); err != nil {
			return "", err
		}
	}
	if err := o.profiles.SetStripeCustomer(ctx, user.ID, customerID); err != nil {
		o.log.Warn().Err(err).Str("userId", user.ID).Msg("store stripe customer failed")
	}

	origin = strings.TrimRight(origin, "/")
	return o.gateway.CreateCheckoutSession(ctx, CheckoutRequest{
		CustomerID: customerID,
		PriceID:    *tier.StripePriceID,
		UserID:     user.ID,
		Plan:       string(plan),
		SuccessURL: origin + o.cfg.SuccessPath,
		CancelURL:  origin + o.cfg.CancelPath,
		TrialDays:  o.cfg.TrialDays,
	})
}

// CheckSubscription reads the user's first active subscription from Stripe
// and writes the resulting tier to the profile. A user Stripe has never seen
// is reported unsubscribed and the profile is left alone.
func (o *Orchestrator) CheckSubscription(ctx context.Context, user models.User) (SubscriptionState, error) {
	if o.gateway == nil {
		return SubscriptionState{}, ErrNotConfigured
	}
	customerID, err := o.gateway.FindCustomer(ctx, user.Email)
	if err != nil {
		return SubscriptionState{}, err
	}
	if customerID == "" {
		return SubscriptionState{Subscribed: false, PlanType: models.PlanFree}, nil
	}
	sub, err := o.gateway.ActiveSubscription(ctx, customerID)
	if err != nil {
		return SubscriptionState{}, err
	}

	state := SubscriptionState{PlanType: models.PlanFree, Status: "inactive"}
	if sub != nil {
		state.Subscribed = true
		state.Status = "active"
		end := sub.CurrentPeriodEnd
		state.EndDate = &end
		tier, err := o.catalog.TierForPrice(ctx, sub.PriceID)
		switch {
		case err == nil:
			state.PlanType = tier.ID
		case errors.Is(err, plans.ErrUnknownTier):
			o.log.Warn().Str("userId", user.ID).Str("price", sub.PriceID).Msg("subscription price matches no tier")
		default:
			return SubscriptionState{}, err
		}
	}

	tier, err := o.catalog.Get(ctx, state.PlanType)
	if err != nil {
		return SubscriptionState{}, err
	}
	if err := o.profiles.UpdateSubscription(ctx, user.ID, state.PlanType, tier.MonthlyUploadLimit, state.Status, state.EndDate); err != nil {
		return SubscriptionState{}, err
	}
	return state, nil
}

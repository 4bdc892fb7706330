package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/logging"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

type CheckoutRequest struct {
	CustomerID string
	PriceID    string
	UserID     string
	Plan       string
	SuccessURL string
	CancelURL  string
	TrialDays  int64
}

type ActiveSubscription struct {
	ID               string
	PriceID          string
	Status           string
	CurrentPeriodEnd time.Time
}

// Gateway is the payment processor as the orchestrator sees it.
type Gateway interface {
	// FindCustomer returns "" when no customer has email.
	FindCustomer(ctx context.Context, email string) (string, error)
	CreateCustomer(ctx context.Context, email, userID string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
	// ActiveSubscription returns nil when the customer has none.
	ActiveSubscription(ctx context.Context, customerID string) (*ActiveSubscription, error)
	ParseWebhook(payload []byte, signature string) (stripe.Event, error)
}

type StripeGateway struct {
	api           *client.API
	webhookSecret string
	log           zerolog.Logger
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, webhookSecret: webhookSecret, log: logging.Component("billing")}
}

func (g *StripeGateway) FindCustomer(ctx context.Context, email string) (string, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.Single = true
	it := g.api.Customers.List(params)
	if it.Next() {
		return it.Customer().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("list customers: %w", err)
	}
	return "", nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	params.AddMetadata("userId", userID)
	c, err := g.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return c.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(req.CustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		Mode:                     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:               stripe.String(req.SuccessURL),
		CancelURL:                stripe.String(req.CancelURL),
		AllowPromotionCodes:      stripe.Bool(true),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
		PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
		ClientReferenceID:        stripe.String(req.UserID),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"userId": req.UserID, "planType": req.Plan},
		},
	}
	if req.TrialDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(req.TrialDays)
	}
	params.Context = ctx
	params.AddMetadata("userId", req.UserID)
	params.AddMetadata("planType", req.Plan)

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	g.log.Info().Str("userId", req.UserID).Str("plan", req.Plan).Str("session", s.ID).Msg("checkout session created")
	return s.URL, nil
}

func (g *StripeGateway) ActiveSubscription(ctx context.Context, customerID string) (*ActiveSubscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx
	it := g.api.Subscriptions.List(params)
	for it.Next() {
		s := it.Subscription()
		out := &ActiveSubscription{
			ID:               s.ID,
			Status:           string(s.Status),
			CurrentPeriodEnd: time.Unix(s.CurrentPeriodEnd, 0).UTC(),
		}
		if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
			out.PriceID = s.Items.Data[0].Price.ID
		}
		return out, nil
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return nil, nil
}

// ParseWebhook verifies the Stripe-Signature header. Without a webhook secret
// the payload is accepted unverified, which is only meant for local use.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (stripe.Event, error) {
	if g.webhookSecret == "" {
		g.log.Warn().Msg("STRIPE_WEBHOOK_SECRET not set, skipping signature verification")
		var ev stripe.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
		}
		return ev, nil
	}
	if signature == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing signature", ErrInvalidWebhook)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	return ev, nil
}

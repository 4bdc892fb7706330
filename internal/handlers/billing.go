package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/PortNumber53/tubeshelf/backend/internal/billing"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
)

type selectPlanRequest struct {
	Plan string `json:"plan"`
}

type selectPlanResponse struct {
	Kind        string          `json:"kind"`
	Plan        models.PlanType `json:"plan"`
	RedirectURL string          `json:"redirectUrl,omitempty"`
}

// GetBillingPlans lists the plan tiers for the pricing page.
func (h *Handler) GetBillingPlans(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.Catalog.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list plan tiers failed")
		writeJSON(w, http.StatusOK, []models.PlanTier{})
		return
	}
	writeJSON(w, http.StatusOK, tiers)
}

// SelectPlan works with or without a session; without one the answer is an
// auth_required redirect that remembers the plan.
func (h *Handler) SelectPlan(w http.ResponseWriter, r *http.Request) {
	var req selectPlanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	sel, err := h.Billing.SelectPlan(r.Context(), currentSession(r), req.Plan, requestOrigin(r, h.PublicOrigin))
	if err != nil {
		h.writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, selectPlanResponse{Kind: sel.Kind.String(), Plan: sel.Plan, RedirectURL: sel.RedirectURL})
}

// CreateCheckout opens a checkout session for a paid plan.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	var req selectPlanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	plan, ok := models.ParsePlanType(req.Plan)
	if !ok {
		h.writeBillingError(w, billing.ErrInvalidPlan)
		return
	}
	u, err := h.Billing.CreateCheckout(r.Context(), sessionUser(sess), plan, requestOrigin(r, h.PublicOrigin))
	if err != nil {
		h.writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

// CheckSubscription reconciles the caller's profile with Stripe.
func (h *Handler) CheckSubscription(w http.ResponseWriter, r *http.Request) {
	state, err := h.Billing.CheckSubscription(r.Context(), sessionUser(currentSession(r)))
	if err != nil {
		h.writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// StripeWebhook applies verified Stripe events. Failures answer non-2xx so
// Stripe redelivers.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	const webhookMaxBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, webhookMaxBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.log.Warn().Err(err).Msg("webhook read failed")
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	ev, err := h.Billing.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "Stripe not configured")
		return
	case err != nil:
		h.log.Warn().Err(err).Msg("webhook signature verification failed")
		writeError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	if err := h.Billing.HandleEvent(r.Context(), ev); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to process event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) writeBillingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrInvalidPlan):
		writeAPIError(w, http.StatusBadRequest, "invalid_plan", "Invalid plan type")
	case errors.Is(err, billing.ErrNotConfigured):
		writeAPIError(w, http.StatusServiceUnavailable, "payments_unavailable", "Payments are not configured")
	case errors.Is(err, billing.ErrNoPrice):
		writeAPIError(w, http.StatusBadGateway, "checkout_failed", "This plan is not available for purchase yet")
	default:
		h.log.Error().Err(err).Msg("billing request failed")
		writeAPIError(w, http.StatusBadGateway, "checkout_failed", "Failed to create checkout session. Please try again.")
	}
}

func sessionUser(sess *models.Session) models.User {
	if sess == nil {
		return models.User{}
	}
	return models.User{ID: sess.UserID, Email: strings.TrimSpace(sess.Email), EmailVerified: sess.EmailVerified}
}

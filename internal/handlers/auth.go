package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/PortNumber53/tubeshelf/backend/internal/billing"
	"github.com/PortNumber53/tubeshelf/backend/internal/guard"
	"github.com/PortNumber53/tubeshelf/backend/internal/middleware"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/PortNumber53/tubeshelf/backend/internal/session"
	"github.com/google/uuid"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Plan is the tier picked on the pricing page before signing in.
	Plan string `json:"plan,omitempty"`
	Next string `json:"next,omitempty"`
}

type authResponse struct {
	Session     *models.Session `json:"session"`
	RedirectURL string          `json:"redirectUrl"`
}

// contextID returns the request's browser context id, minting one for a new
// context.
func contextID(r *http.Request) string {
	if id := middleware.ContextIDFrom(r.Context()); id != "" {
		return id
	}
	if c, err := r.Cookie(middleware.SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return uuid.NewString()
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(h.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeAuthError maps session errors; anything unexpected is logged.
func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		writeAPIError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
	case errors.Is(err, session.ErrInvalidSession), errors.Is(err, session.ErrNoSession):
		writeAPIError(w, http.StatusUnauthorized, "session_expired", "Your session has expired. Please sign in again.")
	case errors.Is(err, session.ErrInvalidEmail):
		writeAPIError(w, http.StatusBadRequest, "invalid_email", "Please enter a valid email address")
	case errors.Is(err, session.ErrWeakPassword):
		writeAPIError(w, http.StatusBadRequest, "weak_password", "Password must be at least 6 characters long")
	case errors.Is(err, session.ErrEmailTaken):
		writeAPIError(w, http.StatusConflict, "email_taken", "An account with this email already exists")
	default:
		h.log.Error().Err(err).Msg("auth request failed")
		writeFailure(w)
	}
}

func validCredentials(w http.ResponseWriter, c credentials) bool {
	if strings.TrimSpace(c.Email) == "" || c.Password == "" {
		writeAPIError(w, http.StatusBadRequest, "missing_credentials", "Email and password are required")
		return false
	}
	return true
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !validCredentials(w, c) {
		return
	}
	id := contextID(r)
	sess, err := h.Sessions.SignUp(r.Context(), id, c.Email, c.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.setSessionCookie(w, id)
	writeJSON(w, http.StatusCreated, authResponse{Session: sess, RedirectURL: h.afterAuth(r, sess, c)})
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !validCredentials(w, c) {
		return
	}
	id := contextID(r)
	sess, err := h.Sessions.SignIn(r.Context(), id, c.Email, c.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidSession) {
			h.clearSessionCookie(w)
		}
		h.writeAuthError(w, err)
		return
	}
	h.setSessionCookie(w, id)
	writeJSON(w, http.StatusOK, authResponse{Session: sess, RedirectURL: h.afterAuth(r, sess, c)})
}

// afterAuth picks the destination after signing in: checkout for a selected
// paid plan, else the requested page or /home. A checkout failure falls back
// to /pricing so the user can retry.
func (h *Handler) afterAuth(r *http.Request, sess *models.Session, c credentials) string {
	if c.Plan != "" && h.Billing != nil {
		sel, err := h.Billing.SelectPlan(r.Context(), sess, c.Plan, requestOrigin(r, h.PublicOrigin))
		if err != nil {
			h.log.Warn().Err(err).Str("userId", sess.UserID).Str("plan", c.Plan).Msg("plan selection after sign-in failed")
			return guard.PathPricing
		}
		if sel.Kind == billing.CheckoutRedirect {
			return sel.RedirectURL
		}
	}
	return h.Policy.SafeNext(c.Next)
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if id := middleware.ContextIDFrom(r.Context()); id != "" {
		if err := h.Sessions.SignOut(r.Context(), id); err != nil {
			h.log.Error().Err(err).Msg("sign-out failed")
		}
	}
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "redirectUrl": guard.PathLanding})
}

func (h *Handler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	id := middleware.ContextIDFrom(r.Context())
	if id == "" {
		h.writeAuthError(w, session.ErrNoSession)
		return
	}
	sess, err := h.Sessions.Refresh(r.Context(), id)
	if err != nil {
		h.clearSessionCookie(w)
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess})
}

// GetSession answers null rather than an error when signed out.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"session": currentSession(r)})
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var changes session.UserChanges
	if err := decodeJSON(r, &changes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	sess, err := h.Sessions.UpdateUser(r.Context(), middleware.ContextIDFrom(r.Context()), changes)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess})
}

// Package handlers is the HTTP presentation layer. Handlers translate
// repository and service results into JSON; data-access failures are logged
// here and never reach the client verbatim.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/billing"
	"github.com/PortNumber53/tubeshelf/backend/internal/categories"
	"github.com/PortNumber53/tubeshelf/backend/internal/guard"
	"github.com/PortNumber53/tubeshelf/backend/internal/logging"
	"github.com/PortNumber53/tubeshelf/backend/internal/middleware"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/PortNumber53/tubeshelf/backend/internal/plans"
	"github.com/PortNumber53/tubeshelf/backend/internal/profiles"
	"github.com/PortNumber53/tubeshelf/backend/internal/realtime"
	"github.com/PortNumber53/tubeshelf/backend/internal/session"
	"github.com/PortNumber53/tubeshelf/backend/internal/videos"
	"github.com/rs/zerolog"
)

// Sessions is the part of the session store the handlers use.
type Sessions interface {
	middleware.Sessions
	SignIn(ctx context.Context, contextID, email, password string) (*models.Session, error)
	SignUp(ctx context.Context, contextID, email, password string) (*models.Session, error)
	SignOut(ctx context.Context, contextID string) error
	Refresh(ctx context.Context, contextID string) (*models.Session, error)
	UpdateUser(ctx context.Context, contextID string, changes session.UserChanges) (*models.Session, error)
}

type Deps struct {
	Sessions   Sessions
	Videos     *videos.Repository
	Categories *categories.Repository
	Profiles   *profiles.Store
	Catalog    *plans.Catalog
	Billing    *billing.Orchestrator
	Hub        *realtime.Hub
	Limiter    *middleware.RateLimiter
	Policy     guard.Policy

	PublicOrigin     string
	StaticDir        string
	InternalWSSecret string
	SessionTTL       time.Duration
	SecureCookies    bool
}

type Handler struct {
	Deps
	log zerolog.Logger
}

func New(d Deps) *Handler {
	if d.Hub == nil {
		d.Hub = realtime.NewHub()
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = 30 * 24 * time.Hour
	}
	return &Handler{Deps: d, log: logging.Component("handlers")}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// currentSession is set by middleware.Auth.
func currentSession(r *http.Request) *models.Session {
	return middleware.SessionFrom(r.Context())
}

package guard

import (
	"context"
	"net/http"

	"github.com/PortNumber53/tubeshelf/backend/internal/middleware"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
)

// SessionLookup resolves a context id to its session, nil when signed out.
type SessionLookup interface {
	GetSession(ctx context.Context, contextID string) *models.Session
}

// PageGuard redirects page requests according to p. A request always knows
// its auth state, so Wait never reaches the client.
func PageGuard(p Policy, sessions SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := Unauthenticated
			if c, err := r.Cookie(middleware.SessionCookie); err == nil && c.Value != "" {
				if sessions.GetSession(r.Context(), c.Value) != nil {
					state = Authenticated
				}
			}
			d := p.Decide(state, r.URL.RequestURI())
			if d.Action == Redirect {
				http.Redirect(w, r, d.Location, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

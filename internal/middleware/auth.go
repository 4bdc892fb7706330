package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/PortNumber53/tubeshelf/backend/internal/models"
)

// SessionCookie carries the browser context id.
const SessionCookie = "tubeshelf_session"

type ctxKey int

const (
	sessionKey ctxKey = iota
	contextIDKey
)

// Sessions resolves the caller of a request.
type Sessions interface {
	GetSession(ctx context.Context, contextID string) *models.Session
	Authenticate(ctx context.Context, accessToken string) *models.Session
}

// Auth attaches the caller's session, if any, to the request context. A
// bearer token wins over the session cookie.
func Auth(sessions Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var sess *models.Session
			if tok := bearerToken(r); tok != "" {
				sess = sessions.Authenticate(ctx, tok)
			} else if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
				ctx = context.WithValue(ctx, contextIDKey, c.Value)
				sess = sessions.GetSession(ctx, c.Value)
			}
			if sess != nil {
				ctx = context.WithValue(ctx, sessionKey, sess)
				ctx = context.WithValue(ctx, contextIDKey, sess.ContextID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession answers 401 when Auth found no session.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SessionFrom(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "session_expired"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func SessionFrom(ctx context.Context) *models.Session {
	s, _ := ctx.Value(sessionKey).(*models.Session)
	return s
}

// ContextIDFrom returns the browser context id of the request, if known.
func ContextIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(contextIDKey).(string)
	return id
}

// WithSession is used by tests and by handlers that sign a context in.
func WithSession(ctx context.Context, s *models.Session) context.Context {
	ctx = context.WithValue(ctx, sessionKey, s)
	if s != nil {
		ctx = context.WithValue(ctx, contextIDKey, s.ContextID)
	}
	return ctx
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

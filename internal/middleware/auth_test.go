package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

type fakeSessions struct {
	byContext map[string]*models.Session
	byToken   map[string]*models.Session
}

func (f fakeSessions) GetSession(_ context.Context, contextID string) *models.Session {
	return f.byContext[contextID]
}

func (f fakeSessions) Authenticate(_ context.Context, tok string) *models.Session {
	return f.byToken[tok]
}

func TestAuth(t *testing.T) {
	cookieSess := &models.Session{ContextID: "c1", UserID: "u1"}
	tokenSess := &models.Session{ContextID: "c2", UserID: "u2"}
	sessions := fakeSessions{
		byContext: map[string]*models.Session{"c1": cookieSess},
		byToken:   map[string]*models.Session{"tok": tokenSess},
	}

	var got *models.Session
	var gotCtx string
	h := Auth(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = SessionFrom(r.Context())
		gotCtx = ContextIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/videos", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "c1"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, cookieSess, got)
	assert.Equal(t, "c1", gotCtx)

	req = httptest.NewRequest(http.MethodGet, "/api/videos", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "c1"})
	req.Header.Set("Authorization", "Bearer tok")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, tokenSess, got)
	assert.Equal(t, "c2", gotCtx)

	req = httptest.NewRequest(http.MethodGet, "/api/videos", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "stale"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Nil(t, got)
	assert.Equal(t, "stale", gotCtx, "the context id survives a missing session")
}

func TestRequireSession(t *testing.T) {
	called := false
	h := RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error":"session_expired"}`, rr.Body.String())
	assert.False(t, called)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithSession(req.Context(), &models.Session{UserID: "u1"}))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.True(t, called)
}

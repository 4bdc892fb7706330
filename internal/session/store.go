// Package session is the single owner of authentication state. Consumers
// read sessions through a Store and learn about changes by subscribing; none
// of them keep their own copy.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/logging"
	"github.com/PortNumber53/tubeshelf/backend/internal/metrics"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidSession = errors.New("session expired")
	ErrNoSession      = errors.New("no active session")
)

type Event string

const (
	SignedIn       Event = "SIGNED_IN"
	SignedOut      Event = "SIGNED_OUT"
	TokenRefreshed Event = "TOKEN_REFRESHED"
	UserUpdated    Event = "USER_UPDATED"
)

// Change is delivered to listeners. Session is nil for SignedOut.
type Change struct {
	Event     Event
	ContextID string
	UserID    string
	Session   *models.Session
}

type Listener func(ctx context.Context, ch Change)

type Store struct {
	provider   Provider
	registry   *Registry
	sessionTTL time.Duration
	now        func() time.Time
	log        zerolog.Logger

	mu        sync.Mutex
	nextID    int
	order     []int
	listeners map[int]Listener
}

func NewStore(provider Provider, registry *Registry, sessionTTL time.Duration) *Store {
	if sessionTTL <= 0 {
		sessionTTL = 30 * 24 * time.Hour
	}
	return &Store{
		provider:   provider,
		registry:   registry,
		sessionTTL: sessionTTL,
		now:        time.Now,
		log:        logging.Component("session"),
		listeners:  make(map[int]Listener),
	}
}

// OnChange registers l and returns the function that removes it. Listeners
// run synchronously, in registration order, on the goroutine that caused
// the change.
func (s *Store) OnChange(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *Store) emit(ctx context.Context, ch Change) {
	s.mu.Lock()
	ls := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		ls = append(ls, s.listeners[id])
	}
	s.mu.Unlock()

	metrics.SessionEventsTotal.WithLabelValues(string(ch.Event)).Inc()
	s.log.Info().Str("event", string(ch.Event)).Str("userId", ch.UserID).Msg("session change")
	for _, l := range ls {
		l(ctx, ch)
	}
}

// GetSession returns the context's session or nil. Lookup failures are
// logged and reported as no session. An expired access token is refreshed
// in place.
func (s *Store) GetSession(ctx context.Context, contextID string) *models.Session {
	if strings.TrimSpace(contextID) == "" {
		return nil
	}
	sess, err := s.registry.Load(ctx, contextID)
	if err != nil {
		s.log.Warn().Err(err).Msg("session lookup failed")
		return nil
	}
	if sess == nil {
		return nil
	}
	if sess.Expired(s.now()) {
		refreshed, err := s.Refresh(ctx, contextID)
		if err != nil {
			return nil
		}
		return refreshed
	}
	return sess
}

// Authenticate resolves a bearer token to its session. Tokens superseded by
// a refresh or a sign-out no longer match.
func (s *Store) Authenticate(ctx context.Context, accessToken string) *models.Session {
	contextID, err := s.provider.ContextOf(accessToken)
	if err != nil {
		return nil
	}
	sess, err := s.registry.Load(ctx, contextID)
	if err != nil || sess == nil || sess.AccessToken != accessToken {
		return nil
	}
	return sess
}

// SignIn replaces any session the context holds.
func (s *Store) SignIn(ctx context.Context, contextID, email, password string) (*models.Session, error) {
	tok, err := s.provider.Authenticate(ctx, contextID, email, password)
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, contextID, tok, SignedIn)
}

// SignUp registers a user and signs the context in.
func (s *Store) SignUp(ctx context.Context, contextID, email, password string) (*models.Session, error) {
	tok, err := s.provider.Register(ctx, contextID, email, password)
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, contextID, tok, SignedIn)
}

// Refresh issues a new access token for the context's session. A session
// the provider no longer honours is signed out.
func (s *Store) Refresh(ctx context.Context, contextID string) (*models.Session, error) {
	sess, err := s.registry.Load(ctx, contextID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNoSession
	}
	tok, err := s.provider.Refresh(ctx, sess.AccessToken)
	if err != nil {
		s.log.Warn().Err(err).Str("userId", sess.UserID).Msg("token refresh failed")
		_ = s.SignOut(ctx, contextID)
		return nil, ErrInvalidSession
	}
	return s.establish(ctx, contextID, tok, TokenRefreshed)
}

func (s *Store) UpdateUser(ctx context.Context, contextID string, changes UserChanges) (*models.Session, error) {
	sess := s.GetSession(ctx, contextID)
	if sess == nil {
		return nil, ErrNoSession
	}
	u, err := s.provider.UpdateUser(ctx, sess.UserID, changes)
	if err != nil {
		return nil, err
	}
	sess.Email = u.Email
	sess.EmailVerified = u.EmailVerified
	if err := s.registry.Save(ctx, *sess, s.sessionTTL); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.emit(ctx, Change{Event: UserUpdated, ContextID: contextID, UserID: sess.UserID, Session: sess})
	return sess, nil
}

// SignOut clears the context's session. Calling it again is a no-op.
func (s *Store) SignOut(ctx context.Context, contextID string) error {
	if strings.TrimSpace(contextID) == "" {
		return nil
	}
	sess, err := s.registry.Load(ctx, contextID)
	if err != nil {
		s.log.Warn().Err(err).Msg("session lookup failed during sign-out")
	}
	if err := s.registry.Delete(ctx, contextID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if sess != nil {
		s.emit(ctx, Change{Event: SignedOut, ContextID: contextID, UserID: sess.UserID})
	}
	return nil
}

// establish resolves the token's user. A token without a resolvable user
// never becomes a session: the context is signed out instead.
func (s *Store) establish(ctx context.Context, contextID string, tok Token, ev Event) (*models.Session, error) {
	user, err := s.provider.ResolveUser(ctx, tok.AccessToken)
	if err != nil {
		s.log.Warn().Err(err).Str("event", string(ev)).Msg("session without resolvable user")
		if serr := s.SignOut(ctx, contextID); serr != nil {
			s.log.Error().Err(serr).Msg("forced sign-out failed")
		}
		return nil, ErrInvalidSession
	}

	var previous *models.Session
	if ev == SignedIn {
		previous, _ = s.registry.Load(ctx, contextID)
	}

	sess := &models.Session{
		ContextID:     contextID,
		UserID:        user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		AccessToken:   tok.AccessToken,
		Expiry:        tok.Expiry,
	}
	if err := s.registry.Save(ctx, *sess, s.sessionTTL); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	if previous != nil && previous.UserID != user.ID {
		s.emit(ctx, Change{Event: SignedOut, ContextID: contextID, UserID: previous.UserID})
	}
	s.emit(ctx, Change{Event: ev, ContextID: contextID, UserID: user.ID, Session: sess})
	return sess, nil
}

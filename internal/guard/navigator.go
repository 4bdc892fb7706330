package guard

import (
	"context"
	"sync"

	"github.com/PortNumber53/tubeshelf/backend/internal/session"
)

// Navigator is the routing state of one browser context.
type Navigator struct {
	policy  Policy
	onClear func()

	mu      sync.Mutex
	state   AuthState
	current string
	pending string
}

// NewNavigator starts in the Unknown state. onClear runs when the context is
// signed out; it may be nil.
func NewNavigator(policy Policy, onClear func()) *Navigator {
	return &Navigator{policy: policy, onClear: onClear, state: Unknown}
}

func (n *Navigator) State() AuthState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Current is the rendered location, empty while waiting. On the auth page it
// keeps the query carrying the post-sign-in destination.
func (n *Navigator) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Navigate requests path and returns what is rendered. While the auth state
// is unknown nothing renders and the request is kept for Resolve.
func (n *Navigator) Navigate(path string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.navigateLocked(path)
}

func (n *Navigator) navigateLocked(path string) string {
	// Redirects terminate: every target renders in the state that produced it.
	for i := 0; i < 4; i++ {
		d := n.policy.Decide(n.state, path)
		switch d.Action {
		case Wait:
			n.pending = path
			n.current = ""
			return ""
		case Render:
			n.current = d.Location
			if d.Location == PathAuth {
				// keep ?next= for after sign-in
				n.current = path
			}
			return n.current
		case Redirect:
			path = d.Location
		}
	}
	n.current = path
	return path
}

// Resolve sets the initial auth state and renders any pending navigation.
func (n *Navigator) Resolve(authenticated bool) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = Unauthenticated
	if authenticated {
		n.state = Authenticated
	}
	path := n.pending
	n.pending = ""
	if path == "" {
		path = PathLanding
	}
	return n.navigateLocked(path)
}

// HandleSessionChange is a session.Listener.
func (n *Navigator) HandleSessionChange(_ context.Context, ch session.Change) {
	var clear func()
	n.mu.Lock()
	switch ch.Event {
	case session.SignedOut:
		n.state = Unauthenticated
		n.pending = ""
		n.navigateLocked(PathLanding)
		clear = n.onClear
	case session.SignedIn:
		n.state = Authenticated
		target := PathHome
		if n.policy.IsAuthPage(n.current) {
			target = n.current
		}
		n.navigateLocked(target)
	case session.TokenRefreshed, session.UserUpdated:
		n.state = Authenticated
	}
	n.mu.Unlock()

	if clear != nil {
		clear()
	}
}

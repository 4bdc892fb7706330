package guard

import (
	"context"
	"math/rand"
	"testing"

	"github.com/PortNumber53/tubeshelf/backend/internal/session"
	"github.com/stretchr/testify/assert"
)

func TestNavigator_WaitsUntilResolved(t *testing.T) {
	n := NewNavigator(Policy{}, nil)
	assert.Equal(t, "", n.Navigate("/home"))
	assert.Equal(t, Unknown, n.State())

	assert.Equal(t, "/home", n.Resolve(true))
	assert.Equal(t, Authenticated, n.State())
}

func TestNavigator_ResolveUnauthenticated(t *testing.T) {
	n := NewNavigator(Policy{}, nil)
	n.Navigate("/video/v1")
	assert.Equal(t, "/auth?next=%2Fvideo%2Fv1", n.Resolve(false))
	assert.Equal(t, "/pricing", n.Navigate("/pricing"))
}

func TestNavigator_SignOutClearsAndLands(t *testing.T) {
	cleared := 0
	n := NewNavigator(Policy{}, func() { cleared++ })
	n.Resolve(true)
	n.Navigate("/dashboard")

	n.HandleSessionChange(context.Background(), session.Change{Event: session.SignedOut, UserID: "u1"})
	assert.Equal(t, Unauthenticated, n.State())
	assert.Equal(t, "/", n.Current())
	assert.Equal(t, 1, cleared)

	assert.Equal(t, "/auth?next=%2Fhome", n.Navigate("/home"))
}

func TestNavigator_SignInGoesHome(t *testing.T) {
	n := NewNavigator(Policy{}, nil)
	n.Resolve(false)
	n.Navigate("/auth")

	n.HandleSessionChange(context.Background(), session.Change{Event: session.SignedIn, UserID: "u1"})
	assert.Equal(t, Authenticated, n.State())
	assert.Equal(t, "/home", n.Current())
}

func TestNavigator_SignInReturnsToIntendedPage(t *testing.T) {
	n := NewNavigator(Policy{}, nil)
	n.Navigate("/upload")
	assert.Equal(t, "/auth?next=%2Fupload", n.Resolve(false))
	assert.Equal(t, "/upload", Policy{}.NextFrom(n.Current()))

	n.HandleSessionChange(context.Background(), session.Change{Event: session.SignedIn, UserID: "u1"})
	assert.Equal(t, "/upload", n.Current())
}

func TestNavigator_SignInIgnoresUnsafeNext(t *testing.T) {
	n := NewNavigator(Policy{}, nil)
	n.Resolve(false)
	assert.Equal(t, "/auth?next=%2F%2Fevil.example", n.Navigate("/auth?next=%2F%2Fevil.example"))

	n.HandleSessionChange(context.Background(), session.Change{Event: session.SignedIn, UserID: "u1"})
	assert.Equal(t, "/home", n.Current())
}

func TestNavigator_SignInAwayFromAuthGoesHome(t *testing.T) {
	n := NewNavigator(Policy{}, nil)
	n.Resolve(false)
	n.Navigate("/pricing")

	n.HandleSessionChange(context.Background(), session.Change{Event: session.SignedIn, UserID: "u1"})
	assert.Equal(t, "/home", n.Current())
}

func TestNavigator_RandomSequences(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	events := []session.Event{session.SignedIn, session.SignedOut, session.TokenRefreshed, session.UserUpdated}
	for run := 0; run < 200; run++ {
		n := NewNavigator(Policy{RedirectLanding: r.Intn(2) == 0}, nil)
		if r.Intn(2) == 0 {
			n.Resolve(r.Intn(2) == 0)
		}
		for step := 0; step < 30; step++ {
			if r.Intn(3) == 0 {
				ev := events[r.Intn(len(events))]
				if n.State() == Unknown {
					n.Resolve(ev != session.SignedOut)
				}
				n.HandleSessionChange(context.Background(), session.Change{Event: ev, UserID: "u1"})
			} else {
				n.Navigate(allPaths[r.Intn(len(allPaths))])
			}
			cur, _ := splitPath(n.Current())
			if n.Current() == "" {
				cur = ""
			}
			if n.State() != Authenticated {
				assert.False(t, n.policy.IsProtected(cur), "run %d step %d rendered %s in %s", run, step, cur, n.State())
			}
			if n.State() == Unknown {
				assert.Empty(t, n.Current())
			}
		}
	}
}

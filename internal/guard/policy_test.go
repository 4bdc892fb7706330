package guard

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	p := Policy{}
	cases := []struct {
		name  string
		state AuthState
		path  string
		want  Decision
	}{
		{"unknown waits", Unknown, "/home", Decision{Action: Wait}},
		{"unknown waits on public", Unknown, "/", Decision{Action: Wait}},
		{"anon protected", Unauthenticated, "/home", Decision{Action: Redirect, Location: "/auth?next=%2Fhome"}},
		{"anon video", Unauthenticated, "/video/abc", Decision{Action: Redirect, Location: "/auth?next=%2Fvideo%2Fabc"}},
		{"anon public", Unauthenticated, "/pricing", Decision{Action: Render, Location: "/pricing"}},
		{"anon auth", Unauthenticated, "/auth?plan=basic", Decision{Action: Render, Location: "/auth"}},
		{"authed auth", Authenticated, "/auth", Decision{Action: Redirect, Location: "/home"}},
		{"authed auth next", Authenticated, "/auth?next=%2Fupload", Decision{Action: Redirect, Location: "/upload"}},
		{"authed auth unsafe next", Authenticated, "/auth?next=https://evil.example", Decision{Action: Redirect, Location: "/home"}},
		{"authed auth protocol-relative", Authenticated, "/auth?next=//evil.example", Decision{Action: Redirect, Location: "/home"}},
		{"authed landing", Authenticated, "/", Decision{Action: Render, Location: "/"}},
		{"authed protected", Authenticated, "/dashboard", Decision{Action: Render, Location: "/dashboard"}},
		{"trailing slash", Authenticated, "/home/", Decision{Action: Render, Location: "/home"}},
		{"unknown path authed", Authenticated, "/nope", Decision{Action: Redirect, Location: "/"}},
		{"unknown path anon", Unauthenticated, "/video/a/b", Decision{Action: Redirect, Location: "/"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.Decide(tc.state, tc.path))
		})
	}
}

func TestDecide_RedirectLanding(t *testing.T) {
	p := Policy{RedirectLanding: true}
	assert.Equal(t, Decision{Action: Redirect, Location: "/home"}, p.Decide(Authenticated, "/"))
	assert.Equal(t, Decision{Action: Render, Location: "/"}, p.Decide(Unauthenticated, "/"))
}

var allPaths = []string{"/", "/auth", "/pricing", "/home", "/upload", "/dashboard", "/video/v1", "/nope", "/auth?next=%2Fdashboard"}

// Protected content is never rendered without an authenticated state, for any
// mix of navigations and session changes.
func TestDecide_NeverRendersProtectedWhenNotAuthenticated(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for _, p := range []Policy{{}, {RedirectLanding: true}} {
		for i := 0; i < 2000; i++ {
			state := AuthState(r.Intn(3))
			path := allPaths[r.Intn(len(allPaths))]
			d := p.Decide(state, path)
			if d.Action == Render && p.IsProtected(d.Location) {
				assert.Equal(t, Authenticated, state, "rendered %s from %s in state %s", d.Location, path, state)
			}
			if state == Unknown {
				assert.Equal(t, Wait, d.Action)
			}
		}
	}
}

func TestSafeNext(t *testing.T) {
	p := Policy{}
	assert.Equal(t, "/video/x", p.SafeNext("/video/x"))
	assert.Equal(t, "/home", p.SafeNext(""))
	assert.Equal(t, "/home", p.SafeNext("/pricing"))
	assert.Equal(t, "/home", p.SafeNext("//evil"))
}

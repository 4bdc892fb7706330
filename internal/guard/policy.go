// Package guard decides what a browser context may see for a given path and
// authentication state.
package guard

import (
	"net/url"
	"strings"
)

type AuthState int

const (
	Unknown AuthState = iota
	Authenticated
	Unauthenticated
)

func (s AuthState) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

type Action int

const (
	// Wait renders nothing until the auth state is known.
	Wait Action = iota
	Render
	Redirect
)

type Decision struct {
	Action   Action
	Location string
}

const (
	PathLanding = "/"
	PathAuth    = "/auth"
	PathPricing = "/pricing"
	PathHome    = "/home"
	PathUpload  = "/upload"
	PathDash    = "/dashboard"
)

type Policy struct {
	// RedirectLanding sends authenticated visitors from "/" to "/home".
	RedirectLanding bool
}

func (Policy) IsPublic(path string) bool {
	switch path {
	case PathLanding, PathAuth, PathPricing:
		return true
	}
	return false
}

func (Policy) IsProtected(path string) bool {
	switch path {
	case PathHome, PathUpload, PathDash:
		return true
	}
	id, ok := strings.CutPrefix(path, "/video/")
	return ok && id != "" && !strings.Contains(id, "/")
}

// Decide applies the routing rules. rawPath may carry a query string; only
// /auth reads it, for the post-sign-in destination.
func (p Policy) Decide(state AuthState, rawPath string) Decision {
	path, query := splitPath(rawPath)

	if state == Unknown {
		return Decision{Action: Wait}
	}
	if !p.IsPublic(path) && !p.IsProtected(path) {
		return Decision{Action: Redirect, Location: PathLanding}
	}

	switch state {
	case Unauthenticated:
		if p.IsProtected(path) {
			return Decision{Action: Redirect, Location: PathAuth + "?next=" + url.QueryEscape(path)}
		}
	case Authenticated:
		switch path {
		case PathAuth:
			return Decision{Action: Redirect, Location: p.SafeNext(query.Get("next"))}
		case PathLanding:
			if p.RedirectLanding {
				return Decision{Action: Redirect, Location: PathHome}
			}
		}
	}
	return Decision{Action: Render, Location: path}
}

// IsAuthPage reports whether rawPath is the auth page, query included.
func (Policy) IsAuthPage(rawPath string) bool {
	path, _ := splitPath(rawPath)
	return rawPath != "" && path == PathAuth
}

// NextFrom returns the post-sign-in destination carried by an auth page
// location, or "" when rawPath is not the auth page.
func (p Policy) NextFrom(rawPath string) string {
	path, query := splitPath(rawPath)
	if rawPath == "" || path != PathAuth {
		return ""
	}
	return query.Get("next")
}

// SafeNext returns next when it names a protected route, else /home.
func (p Policy) SafeNext(next string) string {
	if next != "" && strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") && p.IsProtected(next) {
		return next
	}
	return PathHome
}

func splitPath(raw string) (string, url.Values) {
	if raw == "" {
		return PathLanding, url.Values{}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw, url.Values{}
	}
	path := u.Path
	if path == "" {
		path = PathLanding
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path, u.Query()
}

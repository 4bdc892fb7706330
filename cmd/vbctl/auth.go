package main

import (
	"errors"
	"strings"

	"github.com/PortNumber53/tubeshelf/backend/internal/client"
	"github.com/PortNumber53/tubeshelf/backend/internal/guard"
	"github.com/spf13/cobra"
)

type authFlags struct {
	email    string
	password string
	plan     string
	next     string
}

func (f *authFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", "", "account email")
	cmd.Flags().StringVar(&f.password, "password", "", "account password (or VBCTL_PASSWORD)")
	cmd.Flags().StringVar(&f.plan, "plan", "", "plan picked on the pricing page")
}

func (a *app) password(f *authFlags) string {
	if f.password != "" {
		return f.password
	}
	return a.v.GetString("password")
}

func (a *app) signInCmd() *cobra.Command {
	var f authFlags
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign this context in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.next == "" {
				// resume the page the guard sent us away from
				f.next = guard.Policy{}.NextFrom(a.store.LastPath())
			}
			res, err := a.api.SignIn(cmd.Context(), f.email, a.password(&f), f.plan, f.next)
			if err != nil {
				return err
			}
			return a.afterAuth(res)
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&f.next, "next", "", "page to open after signing in (defaults to the one that asked for sign-in)")
	return cmd
}

func (a *app) signUpCmd() *cobra.Command {
	var f authFlags
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign this context in",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.api.SignUp(cmd.Context(), f.email, a.password(&f), f.plan)
			if err != nil {
				return err
			}
			return a.afterAuth(res)
		},
	}
	f.bind(cmd)
	return cmd
}

// afterAuth follows the server's redirect: an app page becomes the last path,
// a checkout URL is printed for the user to open.
func (a *app) afterAuth(res client.AuthResult) error {
	if res.Session == nil {
		return errors.New("server returned no session")
	}
	a.printf("Signed in as %s\n", res.Session.Email)
	if strings.HasPrefix(res.RedirectURL, "/") {
		a.printf("Opened %s\n", res.RedirectURL)
		return a.store.SetLastPath(res.RedirectURL)
	}
	if res.RedirectURL != "" {
		a.printf("Complete checkout at %s\n", res.RedirectURL)
	}
	return nil
}

func (a *app) signOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign this context out",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.api.SignOut(cmd.Context()); err != nil {
				return err
			}
			a.printf("Signed out\n")
			return a.store.SetLastPath(guard.PathLanding)
		},
	}
}

func (a *app) openCmd() *cobra.Command {
	var redirectLanding bool
	cmd := &cobra.Command{
		Use:   "open [path]",
		Short: "Open a page, applying the sign-in guard (defaults to the last page)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.store.LastPath()
			if len(args) == 1 {
				path = args[0]
			}
			// Session errors count as signed out.
			sess, err := a.api.Session(cmd.Context())
			if err != nil {
				a.log.Debug().Err(err).Msg("session lookup failed")
			}
			nav := guard.NewNavigator(guard.Policy{RedirectLanding: redirectLanding}, nil)
			nav.Navigate(path)
			rendered := nav.Resolve(err == nil && sess != nil)
			a.printf("%s\n", rendered)
			return a.store.SetLastPath(rendered)
		},
	}
	cmd.Flags().BoolVar(&redirectLanding, "redirect-landing", false, "send signed-in visitors from / to /home")
	return cmd
}

func (a *app) consentCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "consent [accept|decline]",
		Short:     "Show or answer the cookie consent prompt",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"accept", "decline"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return a.store.SetCookieConsent(args[0] == "accept")
			}
			c, ok := a.store.CookieConsent()
			switch {
			case !ok:
				a.printf("not answered\n")
			case c.Accepted:
				a.printf("accepted\n")
			default:
				a.printf("declined\n")
			}
			return nil
		},
	}
}

// Command vbctl is a terminal TubeShelf client. Each home directory is one
// browser context: it keeps its own session cookie, last page, drafts and
// comments.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/PortNumber53/tubeshelf/backend/internal/client"
	"github.com/PortNumber53/tubeshelf/backend/internal/localstore"
	"github.com/PortNumber53/tubeshelf/backend/internal/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultServer = "http://localhost:18911"

// app is the state shared by all commands of one invocation.
type app struct {
	out   io.Writer
	v     *viper.Viper
	log   zerolog.Logger
	store *localstore.Store
	api   *client.Client
}

func main() {
	_ = godotenv.Load()
	logging.Install(os.Stderr, logging.Config{Level: "warn", Format: "console"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a := newApp(os.Stdout)
	err := newRootCmd(a).ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		os.Exit(1)
	}
}

func newApp(out io.Writer) *app {
	return &app{out: out, v: viper.New(), log: logging.Component("vbctl")}
}

func defaultHome() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "vbctl")
	}
	return ".vbctl"
}

// newRootCmd builds the command tree. The caller closes a after Execute.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "vbctl",
		Short:        "Terminal client for a TubeShelf server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open()
		},
	}
	root.SetOut(a.out)
	root.PersistentFlags().String("server", defaultServer, "TubeShelf server URL")
	root.PersistentFlags().String("home", defaultHome(), "directory holding this client's local storage")
	_ = a.v.BindPFlag("server", root.PersistentFlags().Lookup("server"))
	_ = a.v.BindPFlag("home", root.PersistentFlags().Lookup("home"))
	a.v.SetEnvPrefix("VBCTL")
	a.v.AutomaticEnv()

	root.AddCommand(
		a.signInCmd(),
		a.signUpCmd(),
		a.signOutCmd(),
		a.openCmd(),
		a.consentCmd(),
		a.videosCmd(),
		a.categoriesCmd(),
		a.planCmd(),
		a.commentsCmd(),
		a.watchCmd(),
	)
	return root
}

func (a *app) open() error {
	home := a.v.GetString("home")
	if err := os.MkdirAll(home, 0o700); err != nil {
		return fmt.Errorf("while creating home %q: %w", home, err)
	}
	store, err := localstore.Open(home)
	if err != nil {
		return err
	}
	id, err := store.ContextID()
	if err != nil {
		_ = store.Close()
		return err
	}
	api, err := client.New(strings.TrimSpace(a.v.GetString("server")), id, nil)
	if err != nil {
		_ = store.Close()
		return err
	}
	a.store, a.api = store, api
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// Command migrate applies the TubeShelf schema in db/migrations.
//
//	go run ./db -direction up
//	go run ./db -direction down -steps 1
//	go run ./db -status
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/PortNumber53/tubeshelf/backend/internal/logging"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

const defaultSource = "file://db/migrations"

func main() {
	logging.Install(os.Stderr, logging.Config{Level: "info", Format: "console"})
	log := logging.Component("migrate")
	msg, err := run(os.Args[1:], defaultDeps())
	if err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg(msg)
}

type deps struct {
	loadEnv     func(...string) error
	getenv      func(string) string
	openDB      func(driverName, dataSourceName string) (*sql.DB, error)
	newMigrator func(db *sql.DB, source string) (migrator, error)
}

func defaultDeps() deps {
	return deps{
		loadEnv:     godotenv.Load,
		getenv:      os.Getenv,
		openDB:      sql.Open,
		newMigrator: openMigrator,
	}
}

type options struct {
	direction  string
	steps      int
	force      int
	forceDirty bool
	status     bool
	source     string
}

// migrator is the subset of *migrate.Migrate the tool drives.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Version() (version uint, dirty bool, err error)
}

func openMigrator(db *sql.DB, source string) (migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate instance for %s: %w", source, err)
	}
	return m, nil
}

func parseArgs(args []string) (options, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	var o options
	fs.StringVar(&o.direction, "direction", "up", "up or down")
	fs.IntVar(&o.steps, "steps", 0, "number of steps, 0 for all")
	fs.IntVar(&o.force, "force", -1, "set the schema version and clear the dirty flag")
	fs.BoolVar(&o.forceDirty, "force-dirty", false, "clear the dirty flag at the current version")
	fs.BoolVar(&o.status, "status", false, "print the schema version")
	fs.StringVar(&o.source, "source", "", "migrations source URL (default $MIGRATIONS_PATH or "+defaultSource+")")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.steps < 0 {
		return options{}, fmt.Errorf("steps must not be negative, got %d", o.steps)
	}
	if o.direction != "up" && o.direction != "down" {
		return options{}, fmt.Errorf("direction must be up or down, got %q", o.direction)
	}
	return o, nil
}

func resolveSource(o options, getenv func(string) string) string {
	if s := strings.TrimSpace(o.source); s != "" {
		return s
	}
	if s := strings.TrimSpace(getenv("MIGRATIONS_PATH")); s != "" {
		return s
	}
	return defaultSource
}

func run(args []string, d deps) (string, error) {
	o, err := parseArgs(args)
	if err != nil {
		return "", err
	}
	if d.loadEnv != nil {
		_ = d.loadEnv()
	}
	getenv := d.getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	databaseURL := strings.TrimSpace(getenv("DATABASE_URL"))
	if databaseURL == "" {
		return "", errors.New("DATABASE_URL environment variable is required")
	}
	if d.openDB == nil || d.newMigrator == nil {
		return "", errors.New("openDB and newMigrator are required")
	}

	db, err := d.openDB("postgres", databaseURL)
	if err != nil {
		return "", fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	m, err := d.newMigrator(db, resolveSource(o, getenv))
	if err != nil {
		return "", err
	}

	switch {
	case o.status:
		return status(m)
	case o.forceDirty:
		return forceDirty(m)
	case o.force >= 0:
		if err := m.Force(o.force); err != nil {
			return "", fmt.Errorf("force version %d: %w", o.force, err)
		}
		return fmt.Sprintf("Forced database to version %d", o.force), nil
	}

	err = applyDirection(m, o.direction, o.steps)
	if errors.Is(err, migrate.ErrNoChange) {
		return "No migrations to apply", nil
	}
	if err != nil {
		return "", fmt.Errorf("migration failed: %w", err)
	}
	return fmt.Sprintf("Migration %s completed successfully", o.direction), nil
}

func forceDirty(m migrator) (string, error) {
	v, dirty, err := m.Version()
	if err != nil {
		return "", fmt.Errorf("read schema version: %w", err)
	}
	if !dirty {
		return "Database is not dirty (no force needed)", nil
	}
	if err := m.Force(int(v)); err != nil {
		return "", fmt.Errorf("force dirty version %d: %w", v, err)
	}
	return fmt.Sprintf("Forced dirty database to version %d", v), nil
}

func status(m migrator) (string, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return "No migrations applied", nil
	}
	if err != nil {
		return "", fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return fmt.Sprintf("Schema version %d (dirty)", v), nil
	}
	return fmt.Sprintf("Schema version %d", v), nil
}

func applyDirection(m migrator, direction string, steps int) error {
	switch {
	case direction == "up" && steps > 0:
		return m.Steps(steps)
	case direction == "up":
		return m.Up()
	case direction == "down" && steps > 0:
		return m.Steps(-steps)
	case direction == "down":
		return m.Down()
	}
	return fmt.Errorf("direction must be up or down, got %q", direction)
}

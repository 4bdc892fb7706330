package main

import (
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-migrate/migrate/v4"
)

type fakeMigrator struct {
	calls      []string
	steps      []int
	forced     []int
	version    uint
	dirty      bool
	versionErr error
	applyErr   error
}

func (f *fakeMigrator) Up() error   { f.calls = append(f.calls, "up"); return f.applyErr }
func (f *fakeMigrator) Down() error { f.calls = append(f.calls, "down"); return f.applyErr }
func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.steps = append(f.steps, n)
	return f.applyErr
}
func (f *fakeMigrator) Force(v int) error            { f.forced = append(f.forced, v); return nil }
func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }

func envWith(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func testDeps(t *testing.T, fm *fakeMigrator, gotSource *string) deps {
	t.Helper()
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return deps{
		getenv: envWith(map[string]string{"DATABASE_URL": "postgres://example"}),
		openDB: func(string, string) (*sql.DB, error) { return db, nil },
		newMigrator: func(_ *sql.DB, source string) (migrator, error) {
			if gotSource != nil {
				*gotSource = source
			}
			return fm, nil
		},
	}
}

func TestParseArgs(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(options) bool
	}{
		{"defaults", nil, false, func(o options) bool {
			return o.direction == "up" && o.steps == 0 && o.force == -1 && !o.forceDirty && !o.status
		}},
		{"force", []string{"-force", "12"}, false, func(o options) bool { return o.force == 12 }},
		{"status", []string{"-status"}, false, func(o options) bool { return o.status }},
		{"bad direction", []string{"-direction", "sideways"}, true, nil},
		{"negative steps", []string{"-steps", "-1"}, true, nil},
		{"unknown flag", []string{"-nope"}, true, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, err := parseArgs(tc.args)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseArgs: %v", err)
			}
			if !tc.check(o) {
				t.Fatalf("unexpected options %#v", o)
			}
		})
	}
}

func TestResolveSource(t *testing.T) {
	env := envWith(map[string]string{"MIGRATIONS_PATH": "file:///srv/migrations"})
	if got := resolveSource(options{}, envWith(nil)); got != defaultSource {
		t.Fatalf("expected default source, got %q", got)
	}
	if got := resolveSource(options{}, env); got != "file:///srv/migrations" {
		t.Fatalf("expected env source, got %q", got)
	}
	if got := resolveSource(options{source: "file://x"}, env); got != "file://x" {
		t.Fatalf("expected flag source, got %q", got)
	}
}

func TestRun_Modes(t *testing.T) {
	cases := []struct {
		name      string
		args      []string
		fm        fakeMigrator
		wantMsg   string
		wantCalls string
		wantSteps []int
		wantForce []int
	}{
		{name: "up all", wantMsg: "Migration up completed successfully", wantCalls: "up"},
		{name: "no change", fm: fakeMigrator{applyErr: migrate.ErrNoChange}, wantMsg: "No migrations to apply", wantCalls: "up"},
		{name: "down two", args: []string{"-direction", "down", "-steps", "2"},
			wantMsg: "Migration down completed successfully", wantCalls: "steps", wantSteps: []int{-2}},
		{name: "up three", args: []string{"-steps", "3"},
			wantMsg: "Migration up completed successfully", wantCalls: "steps", wantSteps: []int{3}},
		{name: "force", args: []string{"-force", "4"}, wantMsg: "Forced database to version 4", wantForce: []int{4}},
		{name: "force dirty", args: []string{"-force-dirty"}, fm: fakeMigrator{version: 3, dirty: true},
			wantMsg: "Forced dirty database to version 3", wantForce: []int{3}},
		{name: "force clean", args: []string{"-force-dirty"}, fm: fakeMigrator{version: 3},
			wantMsg: "Database is not dirty (no force needed)"},
		{name: "status", args: []string{"-status"}, fm: fakeMigrator{version: 5}, wantMsg: "Schema version 5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fm := tc.fm
			msg, err := run(tc.args, testDeps(t, &fm, nil))
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if msg != tc.wantMsg {
				t.Fatalf("expected %q, got %q", tc.wantMsg, msg)
			}
			if got := strings.Join(fm.calls, ","); got != tc.wantCalls {
				t.Fatalf("expected calls %q, got %q", tc.wantCalls, got)
			}
			if len(fm.steps) != len(tc.wantSteps) || (len(tc.wantSteps) > 0 && fm.steps[0] != tc.wantSteps[0]) {
				t.Fatalf("expected steps %v, got %v", tc.wantSteps, fm.steps)
			}
			if len(fm.forced) != len(tc.wantForce) || (len(tc.wantForce) > 0 && fm.forced[0] != tc.wantForce[0]) {
				t.Fatalf("expected force %v, got %v", tc.wantForce, fm.forced)
			}
		})
	}
}

func TestRun_PassesSource(t *testing.T) {
	var got string
	if _, err := run([]string{"-source", "file://custom"}, testDeps(t, &fakeMigrator{}, &got)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != "file://custom" {
		t.Fatalf("expected file://custom, got %q", got)
	}
}

func TestRun_Errors(t *testing.T) {
	t.Run("missing database url", func(t *testing.T) {
		d := testDeps(t, &fakeMigrator{}, nil)
		d.getenv = envWith(nil)
		d.openDB = func(string, string) (*sql.DB, error) {
			t.Fatalf("openDB should not be called")
			return nil, nil
		}
		if _, err := run(nil, d); err == nil {
			t.Fatalf("expected error")
		}
	})
	t.Run("open fails", func(t *testing.T) {
		d := testDeps(t, &fakeMigrator{}, nil)
		d.openDB = func(string, string) (*sql.DB, error) { return nil, sql.ErrConnDone }
		if _, err := run(nil, d); !errors.Is(err, sql.ErrConnDone) {
			t.Fatalf("expected ErrConnDone, got %v", err)
		}
	})
	t.Run("migrator fails", func(t *testing.T) {
		d := testDeps(t, &fakeMigrator{}, nil)
		d.newMigrator = func(*sql.DB, string) (migrator, error) { return nil, sql.ErrConnDone }
		if _, err := run(nil, d); err == nil {
			t.Fatalf("expected error")
		}
	})
	t.Run("migrator missing", func(t *testing.T) {
		d := testDeps(t, &fakeMigrator{}, nil)
		d.newMigrator = nil
		if _, err := run(nil, d); err == nil {
			t.Fatalf("expected error")
		}
	})
	t.Run("apply fails", func(t *testing.T) {
		fm := &fakeMigrator{applyErr: sql.ErrTxDone}
		if _, err := run(nil, testDeps(t, fm, nil)); !errors.Is(err, sql.ErrTxDone) {
			t.Fatalf("expected ErrTxDone, got %v", err)
		}
	})
}

func TestStatus(t *testing.T) {
	if msg, err := status(&fakeMigrator{version: 3, dirty: true}); err != nil || msg != "Schema version 3 (dirty)" {
		t.Fatalf("unexpected %q %v", msg, err)
	}
	if msg, err := status(&fakeMigrator{versionErr: migrate.ErrNilVersion}); err != nil || msg != "No migrations applied" {
		t.Fatalf("unexpected %q %v", msg, err)
	}
	if _, err := status(&fakeMigrator{versionErr: sql.ErrConnDone}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestApplyDirection_Invalid(t *testing.T) {
	if err := applyDirection(&fakeMigrator{}, "sideways", 0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDefaultDeps_NonNil(t *testing.T) {
	d := defaultDeps()
	if d.getenv == nil || d.openDB == nil || d.newMigrator == nil || d.loadEnv == nil {
		t.Fatalf("expected default deps to be populated: %#v", d)
	}
}

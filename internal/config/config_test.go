package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "18911", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, int64(30), cfg.Billing.TrialDays)
	assert.Equal(t, "/dashboard?success=true", cfg.Billing.SuccessPath)
	assert.Equal(t, "/pricing?canceled=true", cfg.Billing.CancelPath)
	assert.Equal(t, "tubeshelf_changes", cfg.Realtime.Channel)
	assert.Equal(t, 10*time.Minute, cfg.Redis.ListCacheTTL)
	assert.False(t, cfg.Server.RedirectLanding)
}

func TestLoad_LegacyEnvNames(t *testing.T) {
	t.Setenv("PORT", "12345")
	t.Setenv("DATABASE_URL", "postgres://example/db")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_x")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "12345", cfg.Server.Port)
	assert.Equal(t, "postgres://example/db", cfg.Database.URL)
	assert.Equal(t, "sk_test_x", cfg.Billing.StripeSecretKey)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	t.Setenv("PORT", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9999\"\nbilling:\n  trialDays: 14\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, int64(14), cfg.Billing.TrialDays)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_RequiresDatabaseAndSecret(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg.Database.URL = "postgres://x"
	assert.Error(t, cfg.Validate())

	cfg.Auth.JWTSecret = "k"
	assert.NoError(t, cfg.Validate())
}

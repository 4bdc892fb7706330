package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Billing   BillingConfig
	Quota     QuotaConfig
	Realtime  RealtimeConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port             string
	PublicOrigin     string
	StaticDir        string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	ShutdownTimeout  time.Duration
	InternalWSSecret string
	// RedirectLanding sends signed-in visitors from "/" to "/home".
	RedirectLanding bool
}

type DatabaseConfig struct {
	URL            string
	MigrationsPath string
}

type RedisConfig struct {
	URL          string
	ListCacheTTL time.Duration
}

type AuthConfig struct {
	JWTSecret      string
	AccessTokenTTL time.Duration
	SessionTTL     time.Duration
}

type BillingConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	TrialDays           int64
	SuccessPath         string
	CancelPath          string
}

type QuotaConfig struct {
	ResetInterval time.Duration
}

type RealtimeConfig struct {
	Channel              string
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
}

type RateLimitConfig struct {
	AuthPerMinute int
	AuthBurst     int
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

// envBindings keeps the flat environment names the service has always used.
var envBindings = map[string]string{
	"server.port":                 "PORT",
	"server.publicOrigin":         "PUBLIC_ORIGIN",
	"server.staticDir":            "STATIC_DIR",
	"server.redirectLanding":      "REDIRECT_LANDING",
	"server.internalWSSecret":     "INTERNAL_WS_SECRET",
	"database.url":                "DATABASE_URL",
	"database.migrationsPath":     "MIGRATIONS_PATH",
	"redis.url":                   "REDIS_URL",
	"auth.jwtSecret":              "JWT_SECRET",
	"billing.stripeSecretKey":     "STRIPE_SECRET_KEY",
	"billing.stripeWebhookSecret": "STRIPE_WEBHOOK_SECRET",
	"log.level":                   "LOG_LEVEL",
	"log.format":                  "LOG_FORMAT",
}

// Load reads .env (if present), an optional YAML file and the environment.
// An empty configPath skips the file.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TUBESHELF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate reports settings the API server cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "18911")
	v.SetDefault("server.publicOrigin", "http://localhost:18911")
	v.SetDefault("server.staticDir", "")
	v.SetDefault("server.readTimeout", "15s")
	v.SetDefault("server.writeTimeout", "15s")
	v.SetDefault("server.shutdownTimeout", "5s")
	v.SetDefault("server.redirectLanding", false)

	v.SetDefault("database.migrationsPath", "file://db/migrations")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.listCacheTTL", "10m")

	v.SetDefault("auth.accessTokenTTL", "1h")
	v.SetDefault("auth.sessionTTL", "720h")

	v.SetDefault("billing.trialDays", 30)
	v.SetDefault("billing.successPath", "/dashboard?success=true")
	v.SetDefault("billing.cancelPath", "/pricing?canceled=true")

	v.SetDefault("quota.resetInterval", "1h")

	v.SetDefault("realtime.channel", "tubeshelf_changes")
	v.SetDefault("realtime.minReconnectInterval", "1s")
	v.SetDefault("realtime.maxReconnectInterval", "1m")

	v.SetDefault("ratelimit.authPerMinute", 30)
	v.SetDefault("ratelimit.authBurst", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
}

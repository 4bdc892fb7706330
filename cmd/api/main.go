package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/billing"
	"github.com/PortNumber53/tubeshelf/backend/internal/cache"
	"github.com/PortNumber53/tubeshelf/backend/internal/categories"
	"github.com/PortNumber53/tubeshelf/backend/internal/config"
	"github.com/PortNumber53/tubeshelf/backend/internal/guard"
	"github.com/PortNumber53/tubeshelf/backend/internal/handlers"
	"github.com/PortNumber53/tubeshelf/backend/internal/logging"
	"github.com/PortNumber53/tubeshelf/backend/internal/middleware"
	"github.com/PortNumber53/tubeshelf/backend/internal/plans"
	"github.com/PortNumber53/tubeshelf/backend/internal/profiles"
	"github.com/PortNumber53/tubeshelf/backend/internal/quota"
	"github.com/PortNumber53/tubeshelf/backend/internal/realtime"
	"github.com/PortNumber53/tubeshelf/backend/internal/session"
	"github.com/PortNumber53/tubeshelf/backend/internal/videos"
	"github.com/PortNumber53/tubeshelf/backend/internal/workers"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(defaultDeps()); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

type deps struct {
	getenv         func(string) string
	openDB         func(driverName, dataSourceName string) (*sql.DB, error)
	openRedis      func(url string) (*redis.Client, error)
	migrateUp      func(db *sql.DB, sourceURL string) error
	listenFeed     func(dsn, channel string, minReconnect, maxReconnect time.Duration) (*realtime.Feed, error)
	listenAndServe func(*http.Server) error
	notify         func(c chan<- os.Signal, sig ...os.Signal)
	// stopCh replaces signal delivery in tests.
	stopCh chan os.Signal
}

func defaultDeps() deps {
	return deps{
		getenv:         os.Getenv,
		openDB:         sql.Open,
		openRedis:      openRedis,
		migrateUp:      migrateUp,
		listenFeed:     realtime.Listen,
		listenAndServe: func(s *http.Server) error { return s.ListenAndServe() },
		notify:         signal.Notify,
	}
}

func resolvePort(getenv func(string) string) string {
	port := strings.TrimSpace(getenv("PORT"))
	if port == "" {
		port = "18911"
	}
	return port
}

// parseIntervalFromEnv reads a positive number of seconds from key.
func parseIntervalFromEnv(getenv func(string) string, key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

// applyEnv overlays the flat environment names read through getenv, so an
// injected environment wins over the process one.
func applyEnv(cfg *config.Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	cfg.Server.Port = resolvePort(getenv)
	set(&cfg.Server.PublicOrigin, "PUBLIC_ORIGIN")
	set(&cfg.Server.StaticDir, "STATIC_DIR")
	set(&cfg.Server.InternalWSSecret, "INTERNAL_WS_SECRET")
	set(&cfg.Database.URL, "DATABASE_URL")
	set(&cfg.Redis.URL, "REDIS_URL")
	set(&cfg.Auth.JWTSecret, "JWT_SECRET")
	set(&cfg.Billing.StripeSecretKey, "STRIPE_SECRET_KEY")
	set(&cfg.Billing.StripeWebhookSecret, "STRIPE_WEBHOOK_SECRET")
	if v := strings.TrimSpace(getenv("REDIRECT_LANDING")); v != "" {
		cfg.Server.RedirectLanding = v == "true"
	}
	cfg.Quota.ResetInterval = parseIntervalFromEnv(getenv, "USAGE_RESET_INTERVAL_SECONDS", cfg.Quota.ResetInterval)
}

func openRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func migrateUp(db *sql.DB, sourceURL string) error {
	if db == nil {
		return errors.New("db is nil")
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("database migration failed: %w", err)
	}
	return nil
}

// buildRouter wires /metrics ahead of the application routes, whose page
// catch-all would otherwise claim it.
func buildRouter(h *handlers.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	handlers.RegisterRoutes(h, r)
	return r
}

// startWorkersIfEnabled runs the monthly usage reset unless
// USAGE_RESET_WORKER_ENABLED=false.
func startWorkersIfEnabled(ctx context.Context, db *sql.DB, getenv func(string) string, interval time.Duration) {
	if v := strings.TrimSpace(getenv("USAGE_RESET_WORKER_ENABLED")); v == "false" {
		wlog := logging.Component("workers")
		wlog.Info().Msg("usage reset worker disabled via USAGE_RESET_WORKER_ENABLED")
		return
	}
	w := &workers.UsageResetWorker{DB: db, Interval: interval}
	go w.Start(ctx)
}

func sweepLimiter(ctx context.Context, rl *middleware.RateLimiter, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.Sweep()
		}
	}
}

func run(d deps) error {
	getenv := d.getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg, err := config.Load(strings.TrimSpace(getenv("TUBESHELF_CONFIG")))
	if err != nil {
		return err
	}
	applyEnv(cfg, getenv)
	if _, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output}); err != nil {
		return fmt.Errorf("failed to init logging: %w", err)
	}
	logger := logging.Component("api")

	if strings.TrimSpace(cfg.Database.URL) == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if d.openDB == nil {
		return errors.New("openDB dependency is required")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Warn().Msg("JWT_SECRET not set; using an ephemeral development secret")
		cfg.Auth.JWTSecret = "dev-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := d.openDB("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if d.migrateUp != nil {
		if err := d.migrateUp(db, cfg.Database.MigrationsPath); err != nil {
			return err
		}
		logger.Info().Msg("database is up-to-date")
	}

	if d.openRedis == nil {
		return errors.New("openRedis dependency is required")
	}
	rdb, err := d.openRedis(cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer rdb.Close()
	pingCtx, pingCancel := context.WithTimeout(rootCtx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	lists := cache.NewVideoLists(rdb, cfg.Redis.ListCacheTTL)
	hub := realtime.NewHub()
	videoRepo := videos.NewRepository(db, quota.NewGate(db), lists)

	provider := session.NewPasswordProvider(db, cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	sessions := session.NewStore(provider, session.NewRegistry(rdb), cfg.Auth.SessionTTL)
	sessions.OnChange(guard.SignOutEffects(lists, hub))

	profileStore := profiles.NewStore(db)
	catalog := plans.NewCatalog(db)
	var gateway billing.Gateway
	if strings.TrimSpace(cfg.Billing.StripeSecretKey) != "" {
		gateway = billing.NewStripeGateway(cfg.Billing.StripeSecretKey, cfg.Billing.StripeWebhookSecret)
	} else {
		logger.Warn().Msg("STRIPE_SECRET_KEY not set; paid plans are unavailable")
	}
	orchestrator := billing.NewOrchestrator(gateway, catalog, profileStore, billing.NewEventLog(db), cfg.Billing)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.AuthPerMinute, cfg.RateLimit.AuthBurst)
	go sweepLimiter(rootCtx, limiter, time.Minute)

	h := handlers.New(handlers.Deps{
		Sessions:         sessions,
		Videos:           videoRepo,
		Categories:       categories.NewRepository(db, lists),
		Profiles:         profileStore,
		Catalog:          catalog,
		Billing:          orchestrator,
		Hub:              hub,
		Limiter:          limiter,
		Policy:           guard.Policy{RedirectLanding: cfg.Server.RedirectLanding},
		PublicOrigin:     cfg.Server.PublicOrigin,
		StaticDir:        cfg.Server.StaticDir,
		InternalWSSecret: cfg.Server.InternalWSSecret,
		SessionTTL:       cfg.Auth.SessionTTL,
		SecureCookies:    strings.HasPrefix(cfg.Server.PublicOrigin, "https://"),
	})

	if d.listenFeed != nil {
		feed, err := d.listenFeed(cfg.Database.URL, cfg.Realtime.Channel, cfg.Realtime.MinReconnectInterval, cfg.Realtime.MaxReconnectInterval)
		if err != nil {
			return fmt.Errorf("failed to listen for changes: %w", err)
		}
		defer feed.Close()
		detach := realtime.NewBridge(lists, hub, videoRepo).Attach(feed)
		defer detach()
		go feed.Run(rootCtx)
	} else {
		logger.Warn().Msg("change feed disabled; realtime updates are off")
	}

	startWorkersIfEnabled(rootCtx, db, getenv, cfg.Quota.ResetInterval)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.Server.PublicOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Handler:      c.Handler(buildRouter(h)),
		Addr:         ":" + cfg.Server.Port,
		WriteTimeout: cfg.Server.WriteTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
	}

	stop := d.stopCh
	if stop == nil {
		stop = make(chan os.Signal, 1)
		if d.notify != nil {
			d.notify(stop, os.Interrupt, syscall.SIGTERM)
		}
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	go func() {
		<-stop
		logger.Info().Msg("shutting down server")
		cancel()
		ctx, cancel2 := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel2()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	logger.Info().Str("port", cfg.Server.Port).Msg("server starting")
	if d.listenAndServe == nil {
		return errors.New("listenAndServe dependency is required")
	}
	if err := d.listenAndServe(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	httpapi "github.com/aussiebroadwan/gatehouse/internal/gatehouse/http"
	"github.com/aussiebroadwan/gatehouse/internal/gatehouse/service"
	"github.com/aussiebroadwan/gatehouse/internal/gatehouse/store"
	"github.com/aussiebroadwan/gatehouse/internal/gatehouse/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/aussiebroadwan/gatehouse/pkg/kvstore"
	kvmemory "github.com/aussiebroadwan/gatehouse/pkg/kvstore/memory"
	kvredis "github.com/aussiebroadwan/gatehouse/pkg/kvstore/redis"
	"github.com/aussiebroadwan/gatehouse/pkg/ratelimit"
	"github.com/aussiebroadwan/gatehouse/pkg/signator"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application wires the gatehouse service together: store, shared kv
// store, token service, interception stages, and the HTTP server.
type Application struct {
	cfg    *Config
	logger *slog.Logger

	db store.Store
	kv kvstore.Store

	codec               *jwtx.Codec
	tokenService        *service.TokenService
	housekeepingService *service.HousekeepingService
	limiter             *ratelimit.Limiter

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg *Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gatehouse",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	app.initKVStore()

	app.codec = jwtx.NewHS256([]byte(cfg.JWTSecret), cfg.Issuer)

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("gatehouse starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully stops the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gatehouse...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod())
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.kv.Close(); err != nil {
		app.logger.Error("error closing kv store", "error", err)
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("gatehouse stopped")
	return nil
}

// initDatabase opens the sqlite store and applies migrations.
func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initKVStore picks the shared nonce/quota store.
func (app *Application) initKVStore() {
	if app.cfg.RedisAddr == "" {
		app.logger.Warn("no redis configured, using in-process nonce/quota store (single node only)")
		app.kv = kvmemory.New()
		return
	}

	app.kv = kvredis.NewStore(kvredis.Options{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	})
	app.logger.Info("using redis nonce/quota store", "addr", app.cfg.RedisAddr)
}

func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		Codec:      app.codec,
		Store:      app.db,
		Roles:      service.StaticRoleResolver(app.cfg.Roles),
		AccessTTL:  time.Duration(app.cfg.AccessTTLSec) * time.Second,
		RefreshTTL: time.Duration(app.cfg.RefreshTTLSec) * time.Second,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval(),
	)

	app.limiter = ratelimit.New(app.kv, app.cfg.RuleSet())
}

func (app *Application) initHTTP() {
	app.router = httpapi.NewRouter(BuildVersion, app.db, app.logger)
	app.router.TokenService = app.tokenService
	app.router.Limiter = app.limiter
	app.router.ApplyRoutes()

	// Health probes and token acquisition run outside the trust stages:
	// a caller cannot present a token it has not been issued yet, and the
	// probes must answer even when the stores are down.
	open := []signator.Predicate{
		signator.Route(http.MethodGet, "/livez"),
		signator.Route(http.MethodGet, "/readyz"),
	}
	tokenEntry := append([]signator.Predicate{
		signator.Route(http.MethodPost, "/v1/auth/refresh"),
		signator.Route(http.MethodPost, "/v1/auth/revoke"),
	}, open...)

	verifier := signator.New(
		signator.Config{
			MaxClockSkew:  time.Duration(app.cfg.MaxClockSkewSec) * time.Second,
			NonceLifetime: time.Duration(app.cfg.NonceLifetimeSec) * time.Second,
			BypassToken:   app.cfg.BypassToken,
			Exclusions:    tokenEntry,
		},
		store.NewKeyLoaderAdapter(app.db),
		app.kv,
	)

	dispatcher := httpx.NewDispatcher(
		httpx.NewCORSStage(cors.Options{
			AllowedOrigins: app.cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{
				"Content-Type", "Authorization",
				signator.DefaultUserIDHeader, signator.DefaultTimestampHeader,
				signator.DefaultNonceHeader, signator.DefaultSignatureHeader,
			},
			AllowCredentials: true,
		}),
		httpx.NewThrottleStage(httpx.ThrottleConfig{
			RequestsPerWindow: app.cfg.ThrottlePerMinute,
			Window:            time.Minute,
			Burst:             app.cfg.ThrottleBurst,
		}, nil),
		&httpx.SignatureStage{Signator: verifier, Debug: app.cfg.SignatureDebug},
		&httpx.AuthnStage{
			Codec:     app.codec,
			Blacklist: app.db.Blacklist(),
			// Token acquisition is signature-protected instead.
			Exclusions: append([]signator.Predicate{
				signator.Route(http.MethodPost, "/v1/auth/token"),
			}, tokenEntry...),
		},
		&httpx.RateLimitStage{
			Limiter:    app.limiter,
			Exclusions: open,
		},
	)

	app.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", app.cfg.Port),
		Handler:      dispatcher.Then(app.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

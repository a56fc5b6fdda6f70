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

	httpapi "github.com/opsdeskhq/opsdesk/internal/auth/http"
	"github.com/opsdeskhq/opsdesk/internal/auth/service"
	"github.com/opsdeskhq/opsdesk/internal/auth/store"
	"github.com/opsdeskhq/opsdesk/internal/auth/store/drivers/sqlite"
	"github.com/opsdeskhq/opsdesk/pkg/cryptox"
	"github.com/opsdeskhq/opsdesk/pkg/jwtx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application wires the auth service together: store, signing keys,
// services, router, server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db   store.Store
	keys *jwtx.KeyPair

	loginService     *service.LoginService
	userService      *service.UserService
	totpService      *service.TOTPService
	provisionService *service.ProvisionService
	housekeeper      *service.Housekeeper

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized. Session
// signing keys are ephemeral: a restart invalidates outstanding tokens,
// which is acceptable for 24h sessions and keeps key management out of
// the deployment story.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "opsdesk-auth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keys, err := jwtx.NewEphemeralKeyPair(cfg.Issuer)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("generate signing keys: %w", err)
	}
	app.keys = keys

	app.initServices()

	if err := app.provisionService.Bootstrap(context.Background(), service.BootstrapInput{
		ClientCode: cfg.BootstrapClientCode,
		TenantName: cfg.BootstrapTenantName,
		Username:   cfg.BootstrapUsername,
		Password:   cfg.BootstrapPassword,
	}); err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeeper.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

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

// Shutdown gracefully stops the server, housekeeping and store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeper.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("apply migrations: %w", err)
	}

	app.logger.Info("database migrations applied")
	return nil
}

func (app *Application) initServices() {
	tenants := &service.TenantService{Store: app.db}
	creds := &service.CredentialService{
		Store:            app.db,
		LockoutThreshold: app.cfg.LockoutThreshold,
		LockoutCooldown:  app.cfg.LockoutCooldown,
	}
	totp := &service.TOTPService{
		Store:         app.db,
		Issuer:        app.cfg.Issuer,
		SetupTTL:      app.cfg.SetupTTL,
		SetupTokenTTL: app.cfg.SetupTokenTTL,
	}
	sessions := &service.SessionService{
		Signer: app.keys,
		Issuer: app.cfg.Issuer,
		TTL:    app.cfg.SessionTTL,
	}

	app.loginService = &service.LoginService{
		Tenants:  tenants,
		Creds:    creds,
		TOTP:     totp,
		Sessions: sessions,
	}
	app.userService = &service.UserService{Store: app.db}
	app.totpService = totp
	app.provisionService = &service.ProvisionService{Store: app.db}
	app.housekeeper = &service.Housekeeper{
		Store:    app.db,
		Interval: app.cfg.HousekeepingInterval,
	}
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.keys, BuildVersion, app.db, app.logger)

	router.LoginService = app.loginService
	router.UserService = app.userService
	router.TOTPService = app.totpService
	router.ProvisionService = app.provisionService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

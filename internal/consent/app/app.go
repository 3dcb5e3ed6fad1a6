package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/auditgraph"
	"github.com/aussiebroadwan/aisconsent/internal/consent/bank"
	httpapi "github.com/aussiebroadwan/aisconsent/internal/consent/http"
	"github.com/aussiebroadwan/aisconsent/internal/consent/sca"
	"github.com/aussiebroadwan/aisconsent/internal/consent/service"
	"github.com/aussiebroadwan/aisconsent/internal/consent/store"
	"github.com/aussiebroadwan/aisconsent/internal/consent/store/drivers/sqlite"
	"github.com/aussiebroadwan/aisconsent/pkg/clock"
	"github.com/aussiebroadwan/aisconsent/pkg/cryptox"
	"github.com/aussiebroadwan/aisconsent/pkg/jwtx"
	"github.com/aussiebroadwan/aisconsent/pkg/slogx"
)

const (
	// BuildVersion is overridden at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application is the consent service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger
	clock  clock.Clock

	// Core dependencies
	db          store.Store
	keys        *jwtx.KeySet
	policy      service.Policy
	bank        *bank.FixtureProvider
	psus        *sca.Directory
	redirectIDs *cryptox.IDCipher
	graph       auditgraph.Client // nil unless GRAPH_URI is set

	// Services
	consentService       *service.ConsentService
	authorisationService *service.AuthorisationService
	accountService       *service.AccountService
	housekeepingService  *service.HousekeepingService
	actionLogger         *service.AsyncActionLogger

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates an Application with every dependency initialised.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg:   cfg,
		clock: clock.Real(),
		logger: slogx.New(slogx.Config{
			Service: "consent-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	policy, err := LoadProfile(cfg.ProfileFile)
	if err != nil {
		return nil, err
	}
	app.policy = policy
	app.logger.Info("aspsp profile loaded",
		"file", cfg.ProfileFile,
		"approaches", policy.Approaches,
		"confirmation_mandated", policy.ConfirmationMandated,
	)

	if err := app.initBank(); err != nil {
		return nil, err
	}

	keys, err := LoadTppKeys(cfg.TppKeysDir, app.logger)
	if err != nil {
		return nil, err
	}
	app.keys = keys

	ids, err := InitRedirectCipher(cfg.RedirectKeyFile, app.logger)
	if err != nil {
		return nil, err
	}
	app.redirectIDs = ids

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initGraph(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("consent service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// Shutdown stops the server, drains the action log and closes the stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down consent service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	// Entries still queued are written before the store goes away.
	app.actionLogger.Close()
	if dropped := app.actionLogger.Dropped(); dropped > 0 {
		app.logger.Warn("action log entries dropped", "count", dropped)
	}

	if app.graph != nil {
		if err := app.graph.Close(ctx); err != nil {
			app.logger.Error("error closing audit graph", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("consent service stopped")
	return nil
}

// initBank loads the fixture bank and the PSU directory. Both live in the
// same file.
func (app *Application) initBank() error {
	provider, err := bank.LoadFixture(app.cfg.BankFixtureFile)
	if err != nil {
		return fmt.Errorf("%w: bank fixture: %v", service.ErrConfiguration, err)
	}
	dir, err := sca.LoadDirectory(app.cfg.BankFixtureFile)
	if err != nil {
		return fmt.Errorf("%w: psu directory: %v", service.ErrConfiguration, err)
	}
	app.bank = provider
	app.psus = dir
	return nil
}

// initDatabase opens the database and applies migrations.
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(app.cfg.DatabaseFile)
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

// initGraph connects the audit graph when GRAPH_URI is configured.
func (app *Application) initGraph() error {
	if app.cfg.GraphURI == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := auditgraph.NewNeo4jClient(ctx, auditgraph.Options{
		URI:            app.cfg.GraphURI,
		Database:       app.cfg.GraphDatabase,
		Username:       app.cfg.GraphUsername,
		Password:       app.cfg.GraphPassword,
		MaxConnections: app.cfg.GraphMaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect audit graph: %w", err)
	}
	app.graph = client
	app.logger.Info("audit graph connected", "uri", app.cfg.GraphURI, "database", app.cfg.GraphDatabase)
	return nil
}

// actionSink writes to the database and, when configured, the audit graph.
func (app *Application) actionSink() service.ActionSink {
	sinks := service.MultiSink{service.StoreSink{Store: app.db}}
	if app.graph != nil {
		sinks = append(sinks, auditgraph.Sink{Client: app.graph})
	}
	return sinks
}

// initServices wires the business services.
func (app *Application) initServices() {
	usage := &service.UsageCounter{Store: app.db, Clock: app.clock}

	app.consentService = &service.ConsentService{
		Store:       app.db,
		Clock:       app.clock,
		Policy:      app.policy,
		Signatories: app.psus,
		Bank:        app.bank,
	}
	app.authorisationService = &service.AuthorisationService{
		Store:       app.db,
		Clock:       app.clock,
		Policy:      app.policy,
		PSUs:        app.psus,
		Bank:        app.bank,
		RedirectIDs: app.redirectIDs,
	}

	app.actionLogger = service.NewAsyncActionLogger(app.actionSink(), app.logger, app.cfg.ActionLogBuffer)
	app.accountService = &service.AccountService{
		Consents:  app.consentService,
		Validator: &service.AccessValidator{Usage: usage},
		Usage:     usage,
		Bank:      app.bank,
		Actions:   app.actionLogger,
		Clock:     app.clock,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.clock,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.policy.NotConfirmedConsentTTL,
	)
}

// initHTTP builds the router and server.
func (app *Application) initHTTP() {
	verifier := jwtx.NewVerifier(app.keys, jwtx.VerifyOptions{
		Issuer: app.cfg.TokenIssuer,
		Leeway: 30 * time.Second,
	})

	router := httpapi.NewRouter(
		app.keys,
		verifier,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.ConsentService = app.consentService
	router.AuthorisationService = app.authorisationService
	router.AccountService = app.accountService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rowbase/rowbase/adapters/auth"
	"github.com/rowbase/rowbase/adapters/clock"
	apihttp "github.com/rowbase/rowbase/adapters/http/api"
	"github.com/rowbase/rowbase/adapters/idgen"
	"github.com/rowbase/rowbase/adapters/metrics"
	"github.com/rowbase/rowbase/adapters/postgres"
	"github.com/rowbase/rowbase/adapters/ws"
	"github.com/rowbase/rowbase/app"
	"github.com/rowbase/rowbase/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

// App is the assembled application.
type App struct {
	Logger     zerolog.Logger
	DB         *postgres.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	cfg      *config.Config
	listener *postgres.Listener
	realtime *app.RealtimeService
}

// New connects to the database, runs migrations and wires every service.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)
	logger.Info().Str("version", Version).Msg("initializing rowbase")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	collector, registry := metrics.New()

	tables := postgres.NewTableStore(db)
	catalog := postgres.NewCatalog(db)
	triggers := postgres.NewTriggerManager(db, catalog, logger)
	rows := postgres.NewRowStore(db)

	schemas := app.NewSchemaService(app.SchemaServiceDeps{
		Store:        tables,
		Catalog:      catalog,
		Triggers:     triggers,
		Clock:        clock.Real{},
		IDs:          idgen.UUID{},
		RealtimeRole: postgres.RealtimeRole,
		Logger:       logger,
		Metrics:      collector,
	})
	rowSvc := app.NewRowService(tables, rows, logger)

	listener := postgres.NewListener(postgres.ListenerConfig{
		URL:      cfg.Database.URL,
		Buffer:   cfg.Realtime.Buffer,
		MinDelay: cfg.Realtime.ReconnectMinDelay,
		MaxDelay: cfg.Realtime.ReconnectMaxDelay,
		Logger:   logger,
		Metrics:  collector,
	})
	authorizer := postgres.NewAuthorizer(db, cfg.Realtime.CheckTimeout, logger, collector)
	realtimeSvc := app.NewRealtimeService(app.RealtimeServiceDeps{
		Source:  listener,
		Auth:    authorizer,
		IDs:     idgen.UUID{},
		Workers: cfg.Realtime.Workers,
		Logger:  logger,
		Metrics: collector,
	})

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret)
	wsHandler := ws.NewHandler(tokens, realtimeSvc, idgen.UUID{}, logger)

	if !cfg.Metrics.Enabled {
		registry = nil
	}
	handler := apihttp.NewHandler(apihttp.Options{
		Schemas:     schemas,
		Rows:        rowSvc,
		APIKeys:     cfg.Auth.APIKeys,
		Registry:    registry,
		MetricsPath: cfg.Metrics.Path,
		Logger:      logger,
		Version:     Version,
	})
	router := handler.Router(func(r chi.Router) {
		r.Handle("/realtime", wsHandler)
	})

	// No write timeout: it would kill long-lived websocket connections.
	// The write pump enforces its own per-message deadlines.
	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	return &App{
		Logger:     logger,
		DB:         db,
		HTTPServer: server,
		Metrics:    collector,
		cfg:        cfg,
		listener:   listener,
		realtime:   realtimeSvc,
	}, nil
}

// Run starts the listener, the fan-out and the HTTP server, and blocks
// until a shutdown signal arrives or a component fails.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.listener.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.realtime.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("realtime: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("http server listening")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)
		select {
		case sig := <-quit:
			a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
		case <-gctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return a.HTTPServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.DB.Close()
	a.Logger.Info().Msg("stopped")
	return err
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/inference-gateway/config"
	"github.com/upb/inference-gateway/handlers"
	"github.com/upb/inference-gateway/services/breaker"
	"github.com/upb/inference-gateway/services/cache"
	"github.com/upb/inference-gateway/services/executor"
	"github.com/upb/inference-gateway/services/keys"
	"github.com/upb/inference-gateway/services/providers"
	"github.com/upb/inference-gateway/services/providers/local"
	"github.com/upb/inference-gateway/services/providers/openai"
	"github.com/upb/inference-gateway/services/ratelimit"
	"github.com/upb/inference-gateway/services/registry"
	"github.com/upb/inference-gateway/services/router"
	"github.com/upb/inference-gateway/services/selector"
	"github.com/upb/inference-gateway/services/usage"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	Ledger *usage.SQLStore

	// Core services
	Registry *registry.Registry
	Usage    *usage.Service
	Limiter  *ratelimit.Limiter
	Breakers *breaker.Registry
	Rotator  *keys.Rotator
	Cache    *cache.ResponseCache
	Adapters *providers.Registry
	Selector *selector.Selector
	Engine   *executor.Engine
	Router   *router.Service

	// HTTP handlers
	RouteHandler  *handlers.RouteHandler
	StatsHandler  *handlers.StatsHandler
	HealthHandler *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initRegistry(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize identity registry: %w", err)
	}

	if err := deps.initLedger(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize usage ledger: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initRegistry loads the routing tables, falling back to the built-in
// defaults when no tables file is configured.
func (d *Dependencies) initRegistry(cfg *config.Config) error {
	tables := registry.DefaultTables()
	if cfg.Routing.TablesPath != "" {
		loaded, err := registry.LoadTables(cfg.Routing.TablesPath)
		if err != nil {
			return fmt.Errorf("failed to load routing tables from %s: %w", cfg.Routing.TablesPath, err)
		}
		tables = loaded
		d.Logger.Info("routing tables loaded",
			zap.String("path", cfg.Routing.TablesPath),
			zap.Int("models", len(tables.Models)))
	} else {
		d.Logger.Info("using built-in routing tables",
			zap.Int("models", len(tables.Models)))
	}

	reg, err := registry.New(tables)
	if err != nil {
		return err
	}
	d.Registry = reg
	return nil
}

// initLedger opens the sqlite-backed usage ledger and hydrates the
// in-memory sliding windows from it.
func (d *Dependencies) initLedger(ctx context.Context, cfg *config.Config) error {
	store, err := usage.OpenSQLStore(cfg.Ledger.Path, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to open ledger at %s: %w", cfg.Ledger.Path, err)
	}
	d.Ledger = store

	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("ledger ping failed: %w", err)
	}

	d.Usage = usage.NewService(store, d.Logger)
	if err := d.Usage.Load(ctx); err != nil {
		return fmt.Errorf("failed to hydrate usage ledger: %w", err)
	}

	d.Logger.Info("usage ledger opened", zap.String("path", cfg.Ledger.Path))
	return nil
}

// initServices wires the routing pipeline from the bottom up.
func (d *Dependencies) initServices(cfg *config.Config) error {
	d.Limiter = ratelimit.NewLimiter(d.Usage, d.Registry, d.Logger)
	d.Breakers = breaker.NewRegistry(d.Logger)
	d.Rotator = keys.NewRotator(cfg.Providers.Credentials())

	responseCache, err := cache.New(cfg.Routing.CacheSize)
	if err != nil {
		return fmt.Errorf("failed to create response cache: %w", err)
	}
	d.Cache = responseCache

	adapters := providers.NewRegistry()
	registrations := []providers.Adapter{
		local.New(cfg.Providers.Local.BaseURL),
		openai.New("openai", cfg.Providers.OpenAI.BaseURL),
		openai.New("mistral", cfg.Providers.Mistral.BaseURL),
		openai.New("private", cfg.Providers.Private.BaseURL),
	}
	for _, a := range registrations {
		if err := adapters.Register(a); err != nil {
			return fmt.Errorf("failed to register adapter %s: %w", a.Name(), err)
		}
		d.Logger.Info("provider adapter registered", zap.String("provider", a.Name()))
	}
	d.Adapters = adapters

	d.Selector = selector.New(d.Registry, d.Limiter, d.Rotator, d.Logger)
	d.Engine = executor.New(
		d.Registry,
		d.Breakers,
		d.Cache,
		d.Limiter,
		d.Usage,
		d.Rotator,
		d.Adapters,
		cfg.Routing.ExecTimeout,
		d.Logger,
	)
	d.Router = router.New(d.Selector, d.Engine, d.Logger)

	return nil
}

// initHandlers builds the HTTP handler layer on top of the services.
func (d *Dependencies) initHandlers() {
	d.RouteHandler = handlers.NewRouteHandler(d.Router, d.Logger)
	d.StatsHandler = handlers.NewStatsHandler(d.Usage, d.Breakers, d.Cache, d.Registry, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.Ledger, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Ledger != nil {
		if err := d.Ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close ledger: %w", err))
		} else {
			d.Logger.Info("usage ledger closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}

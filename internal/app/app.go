// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/api"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/auth"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/autosave"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/config"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/generator"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/llm"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/quality"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/stages"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/storage"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/telemetry"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/utils"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/workflow"

	// providers register themselves with the llm registry
	_ "github.com/thepurplechild/manthan-creator-suite-v0.1/internal/llm/providers/anthropic"
	_ "github.com/thepurplechild/manthan-creator-suite-v0.1/internal/llm/providers/openai"
)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 30 * time.Second

// App owns every long-lived component of the service.
type App struct {
	Config   *config.Config
	Logger   *utils.Logger
	Store    storage.ProjectStore
	Autosave *autosave.Agent
	Hub      *api.EventHub
	Workflow *workflow.Workflow
	Handler  http.Handler

	version   string
	closeOnce sync.Once
	closeErr  error
}

// Options are the process-level inputs that do not come from the environment.
type Options struct {
	Version string
	Logger  *utils.Logger // nil uses the global logger with LOG_DIR attached
}

// New wires the service from cfg. Components are built in dependency order:
// telemetry, catalog, providers, generator, store, autosave, hub, workflow,
// router.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger, err := setupLogger(cfg, opts.Logger)
	if err != nil {
		return nil, err
	}

	if _, ok := llm.LookupEngine(cfg.DefaultEngine); !ok {
		return nil, fmt.Errorf("unknown DEFAULT_ENGINE %q (known: %v)", cfg.DefaultEngine, llm.EngineIDs())
	}

	if err := telemetry.Init(ctx, telemetry.Options{
		Enabled:      cfg.OTelEnabled,
		Stdout:       cfg.OTelStdout,
		OTLPEndpoint: cfg.OTLPEndpoint,
		ServiceName:  "manthan",
		Version:      opts.Version,
	}); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	catalog, err := loadCatalog(cfg.StagesFile)
	if err != nil {
		return nil, err
	}

	providers, providerErrs := llm.NewProviderSet(cfg.ProviderConfigs())
	for _, perr := range providerErrs {
		logger.Warn("provider not available", map[string]interface{}{"error": perr.Error()})
	}
	if cfg.UseModel {
		engine, _ := llm.LookupEngine(cfg.DefaultEngine)
		if _, ok := providers.Get(engine.Provider); engine.Provider != "" && !ok {
			logger.Warn("default engine has no configured provider; generation will use templates", map[string]interface{}{
				"engine":   engine.ID,
				"provider": engine.Provider,
			})
		}
	}

	gen := generator.New(generator.Options{
		UseModel:      cfg.UseModel,
		DefaultEngine: cfg.DefaultEngine,
		Temperature:   cfg.Temperature,
		Timeout:       cfg.ProviderTimeout,
		Retries:       cfg.ProviderRetries,
	}, catalog, providers, logger)

	verifier, err := auth.NewVerifier(cfg.AuthSecret, cfg.AuthIssuer)
	if err != nil {
		return nil, fmt.Errorf("AUTH_SECRET: %w", err)
	}

	store, err := storage.Open(ctx, cfg.StoreDriver, cfg.DataDir, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	agent := autosave.New(store, autosave.Options{
		Enabled:   cfg.Autosave,
		QueueSize: cfg.AutosaveQueue,
	}, logger)

	hub := api.NewEventHub(cfg.AllowedOrigin(), logger)

	wf := workflow.New(workflow.Deps{
		Store:     store,
		Generator: gen,
		Scorer:    quality.NewScorer(catalog),
		Autosave:  agent,
		Notifier:  hub,
		Logger:    logger,
	})

	router := api.SetupRouter(api.RouterDeps{
		Workflow:      wf,
		Hub:           hub,
		Verifier:      verifier,
		Logger:        logger,
		AllowedOrigin: cfg.AllowedOrigin(),
		DebugMode:     cfg.DebugMode,
		Info: api.HealthInfo{
			FrontendOrigin: cfg.FrontendOrigin,
			UseModel:       cfg.UseModel,
			Autosave:       cfg.Autosave,
			Engine:         cfg.DefaultEngine,
			Store:          cfg.StoreDriver,
			Providers:      providers.Names(),
		},
	})

	logger.Info("service configured", map[string]interface{}{
		"store":     cfg.StoreDriver,
		"use_model": cfg.UseModel,
		"engine":    cfg.DefaultEngine,
		"providers": providers.Names(),
		"autosave":  cfg.Autosave,
		"auth":      verifier.Required(),
	})

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Autosave: agent,
		Hub:      hub,
		Workflow: wf,
		Handler:  router,
		version:  opts.Version,
	}, nil
}

func setupLogger(cfg *config.Config, logger *utils.Logger) (*utils.Logger, error) {
	if logger != nil {
		return logger, nil
	}
	logger = utils.GetLogger()
	level, err := utils.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.DebugMode {
		level = utils.DEBUG
	}
	logger.SetLogLevel(level)
	if cfg.LogDir != "" {
		if err := utils.InitLogger(filepath.Join(cfg.LogDir, "manthan.log")); err != nil {
			return nil, err
		}
	}
	return logger, nil
}

func loadCatalog(path string) (*stages.Catalog, error) {
	if path == "" {
		return stages.Default()
	}
	catalog, err := stages.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load stage catalog %s: %w", path, err)
	}
	return catalog, nil
}

// Run serves HTTP on the configured port until ctx is cancelled, then shuts
// down gracefully.
func (a *App) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", ":"+a.Config.Port)
	if err != nil {
		return fmt.Errorf("listen on port %s: %w", a.Config.Port, err)
	}
	return a.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server listening", map[string]interface{}{
			"addr":    listener.Addr().String(),
			"version": a.version,
		})
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = a.Close(context.Background())
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	// close websockets first; Shutdown does not wait for hijacked connections
	a.Hub.Close()
	shutdownErr := srv.Shutdown(shutdownCtx)
	if err := a.Close(shutdownCtx); err != nil && shutdownErr == nil {
		shutdownErr = err
	}
	return shutdownErr
}

// Close drains autosave, then releases the store and telemetry. It is safe
// to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.Hub.Close()
		a.Workflow.Close()

		var errs []error
		if err := a.Autosave.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain autosave: %w", err))
		}
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		if err := telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
		utils.CloseLogger()
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/haukened/traceless/internal/trace/common/clock"
	"github.com/haukened/traceless/internal/trace/common/log"
	"github.com/haukened/traceless/internal/trace/config"
	"github.com/haukened/traceless/internal/trace/domain"
	"github.com/haukened/traceless/internal/trace/gateways/cdp"
	"github.com/haukened/traceless/internal/trace/gateways/stream"
	"github.com/haukened/traceless/internal/trace/gateways/transport"
	"github.com/haukened/traceless/internal/trace/repos/aggregate"
	"github.com/haukened/traceless/internal/trace/repos/categories"
	"github.com/haukened/traceless/internal/trace/repos/registry"
	"github.com/haukened/traceless/internal/trace/repos/registry/bloom"
	"github.com/haukened/traceless/internal/trace/repos/registry/bolt"
	"github.com/haukened/traceless/internal/trace/repos/registry/lru"
	"github.com/haukened/traceless/internal/trace/repos/registry/memstore"
	"github.com/haukened/traceless/internal/trace/services/ingest"
	"github.com/haukened/traceless/internal/trace/services/matcher"
	"github.com/haukened/traceless/internal/trace/services/notify"
	"github.com/haukened/traceless/internal/trace/services/query"
	"github.com/haukened/traceless/internal/trace/services/session"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "tracelessd"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the tracker observer
type Application struct {
	config    *config.AppConfig
	clock     clock.Clock
	logger    log.Logger
	registry  *registry.Registry
	regSource registry.Source
	store     *aggregate.Store
	session   *session.Session
	events    *notify.Broadcaster
	pipeline  *ingest.Pipeline
	query     *query.Service
	source    ingest.Source
	closer    io.Closer
	transport *transport.HTTPTransport
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.Log.Level, cfg.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"app":         appName,
		"version":     version,
		"env":         cfg.Env,
		"log_level":   cfg.Log.Level,
		"registry":    cfg.Registry.Source,
		"backend":     cfg.Registry.Backend,
		"source":      cfg.Ingest.Source,
		"max_domains": cfg.Store.MaxDomains,
		"max_idle":    cfg.Store.MaxIdle.String(),
		"api":         cfg.API.Addr,
	}, "Starting traceless")

	// Build application with all dependencies
	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Server failed")
	}

	log.Info(nil, "traceless stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := &clock.RealClock{}
	logger := log.GetLogger()

	reg, err := buildRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	table, err := categories.LoadFile(cfg.Categories.File)
	if err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("failed to load category table: %w", err)
	}
	log.Info(map[string]any{
		"file":    cfg.Categories.File,
		"entries": table.Len(),
	}, "Category table loaded")

	store, err := aggregate.New(aggregate.Policy{
		MaxDomains: cfg.Store.MaxDomains,
		MaxIdle:    cfg.Store.MaxIdle,
	})
	if err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("failed to create aggregation store: %w", err)
	}

	m := matcher.New(reg, table)
	events := notify.New()
	sess := session.New(session.Options{
		Clock:    clk,
		Matcher:  m,
		Registry: reg,
		Store:    store,
	})

	pipeline := ingest.New(ingest.Options{
		Clock:           clk,
		Logger:          logger,
		Matcher:         m,
		Notifier:        events,
		Store:           store,
		InternalSchemes: cfg.Ingest.InternalSchemes,
	})
	querySvc := query.New(query.Options{
		Categorizer: m,
		Clock:       clk,
		Logger:      logger,
		Notifier:    events,
		Store:       sess,
	})

	src, closer, err := buildSource(cfg, logger)
	if err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("failed to build request source: %w", err)
	}

	app := &Application{
		config:    cfg,
		clock:     clk,
		logger:    logger,
		registry:  reg,
		regSource: registry.NewSource(cfg.Registry.Source, cfg.Registry.Timeout),
		store:     store,
		session:   sess,
		events:    events,
		pipeline:  pipeline,
		query:     querySvc,
		source:    src,
		closer:    closer,
	}
	app.transport = transport.NewHTTPTransport(transport.HTTPOptions{
		Addr:   cfg.API.Addr,
		Clock:  clk,
		Logger: logger,
		Events: events,
		Health: app.health,
	})
	return app, nil
}

// buildRegistry assembles the bloom → cache → store lookup path
func buildRegistry(cfg *config.AppConfig) (*registry.Registry, error) {
	var store registry.Store
	switch cfg.Registry.Backend {
	case "bolt":
		s, err := bolt.New(cfg.Registry.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to open registry index %s: %w", cfg.Registry.DB, err)
		}
		store = s
	default:
		store = memstore.New()
	}

	cache, err := lru.New(cfg.Registry.CacheSize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}

	log.Info(map[string]any{
		"backend":    cfg.Registry.Backend,
		"cache_size": cfg.Registry.CacheSize,
		"fp_rate":    cfg.Registry.FPRate,
	}, "Tracker registry configured")

	return registry.New(store, cache, bloom.NewFactory(), cfg.Registry.FPRate), nil
}

// buildSource creates the configured request source
func buildSource(cfg *config.AppConfig, logger log.Logger) (ingest.Source, io.Closer, error) {
	switch cfg.Ingest.Source {
	case "cdp":
		return cdp.New(cdp.Options{
			Endpoint: cfg.Ingest.CDPURL,
			Target:   cfg.Ingest.Target,
			Poll:     cfg.Ingest.CDPPoll,
			Logger:   logger,
		}), nil, nil
	default:
		if cfg.Ingest.Input == "-" {
			return stream.NewReader("stdin", os.Stdin, logger), nil, nil
		}
		f, err := os.Open(cfg.Ingest.Input)
		if err != nil {
			return nil, nil, err
		}
		return stream.NewReader(cfg.Ingest.Input, f, logger), f, nil
	}
}

// Run starts every component and blocks until ctx is cancelled
func (app *Application) Run(ctx context.Context) error {
	// Registry load is the only I/O-bound step; detection stays inactive until it completes
	go func() {
		loadCtx, cancel := context.WithTimeout(ctx, app.config.Registry.Timeout)
		defer cancel()
		registry.Load(loadCtx, app.regSource, app.registry, app.clock, app.logger)
	}()

	if err := app.transport.Start(ctx, app.query); err != nil {
		return fmt.Errorf("failed to start query transport: %w", err)
	}

	log.Info(map[string]any{
		"address":   app.transport.Address(),
		"transport": "http",
		"session":   app.session.ID(),
	}, "traceless started")

	var wg sync.WaitGroup
	events := make(chan domain.RequestEvent, app.config.Ingest.Buffer)

	// The source is not waited for: a blocked stdin read cannot be interrupted.
	go func() {
		defer close(events)
		err := app.source.Run(ctx, events)
		switch {
		case err == nil:
			log.Info(map[string]any{"source": app.source.Name()}, "Request source finished")
		case ctx.Err() == nil:
			log.Error(map[string]any{"source": app.source.Name(), "error": err}, "Request source failed")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = app.pipeline.Run(ctx, events)
	}()

	if app.config.Store.MaxIdle > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.pruneLoop(ctx)
		}()
	}

	<-ctx.Done()

	log.Info(nil, "Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := app.transport.Stop(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error during transport shutdown")
	}
	app.events.Close()
	if app.closer != nil {
		_ = app.closer.Close()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if err := app.registry.Close(); err != nil {
			log.Warn(map[string]any{"error": err}, "Error closing registry")
		}
		log.Info(map[string]any{"pipeline": app.pipeline.Stats()}, "Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}
}

// pruneLoop drops idle domains on the configured interval
func (app *Application) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(app.config.Store.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := app.store.Prune(app.clock.Now())
			if len(removed) == 0 {
				continue
			}
			log.Debug(map[string]any{"removed": len(removed)}, "Pruned idle trackers")
			app.events.Publish(notify.FromTotals(app.store.Totals()))
		}
	}
}

// health is served at /healthz
func (app *Application) health() any {
	stats := app.registry.Stats()
	return map[string]any{
		"status":  "ok",
		"version": version,
		"session": app.session.Info(),
		"registry": map[string]any{
			"ready":   stats.Loaded,
			"version": stats.Store.Version,
			"entries": stats.Store.Entries,
			"updated": stats.Store.UpdatedUnix,
			"cache":   stats.Cache,
		},
		"store":    app.store.Stats(),
		"pipeline": app.pipeline.Stats(),
	}
}

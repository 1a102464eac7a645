package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/garyalexisjeremiahchan/smartshop-sub001/db"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/assistant"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/catalog"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/config"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/conversation"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/database"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/log"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/tools"
)

// Setup creates and initializes the application. The logger is injected and
// threaded into every component.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	a.Catalog = catalog.NewStoreFromPool(pool, logger)
	a.Conversations = conversation.NewStore(pool, logger)

	registry, toolRefs, err := provideTools(g, a.Catalog, logger)
	if err != nil {
		return nil, err
	}
	a.Registry = registry

	model := assistant.NewGenkitModel(g, cfg.FullModelName(), toolRefs,
		float64(cfg.Temperature), cfg.MaxTokens)
	a.Loop = assistant.NewLoop(a.Conversations, registry, model, assistant.LoopConfig{
		MaxIterations: cfg.MaxIterations,
		ToolCallLimit: cfg.ToolCallLimit,
		HistoryWindow: cfg.HistoryWindow,
	}, logger)

	return a, nil
}

// provideOtelShutdown sets up trace export before Genkit initialization.
// Must be called before provideGenkit to ensure TracerProvider is ready.
//
// Traces are exported via OTLP HTTP to the configured collector; an empty
// endpoint disables export entirely.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if cfg.OtelEndpoint == "" {
		return func() {}
	}

	// Set OTEL env vars for Genkit's TracerProvider to pick up.
	// SAFETY: os.Setenv is not concurrent-safe, but this function is called
	// exactly once during startup in Setup, before goroutines are spawned.
	if cfg.OtelServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.OtelServiceName)
	}
	if cfg.OtelEnvironment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.OtelEnvironment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OtelEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("trace export enabled",
		"endpoint", cfg.OtelEndpoint,
		"service", cfg.OtelServiceName,
		"environment", cfg.OtelEnvironment,
	)

	shutdown := tracing.TracerProvider().Shutdown

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default) and openai providers.
// Call ordering in Setup ensures tracing is set up first.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit

	switch provider {
	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // "gemini"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideDBPool runs migrations, then opens the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database pool: %w", err)
	}
	return pool, nil
}

// provideTools builds the catalog toolset, registers it in the dispatch
// registry, and declares every tool with Genkit so the model sees the schemas.
func provideTools(g *genkit.Genkit, store *catalog.Store, logger log.Logger) (*tools.Registry, []ai.ToolRef, error) {
	registry := tools.NewRegistry(logger)
	toolset := tools.NewCatalog(store, logger)
	if err := tools.RegisterAll(registry, toolset); err != nil {
		return nil, nil, fmt.Errorf("registering catalog tools: %w", err)
	}

	refs := registry.Declare(g)
	logger.Info("tools registered at construction", "count", len(refs))
	return registry, refs, nil
}

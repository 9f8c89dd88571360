package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/terra-clan/progress-engine/internal/api"
	"github.com/terra-clan/progress-engine/internal/auth"
	"github.com/terra-clan/progress-engine/internal/catalog"
	"github.com/terra-clan/progress-engine/internal/cleanup"
	"github.com/terra-clan/progress-engine/internal/config"
	"github.com/terra-clan/progress-engine/internal/events"
	"github.com/terra-clan/progress-engine/internal/health"
	"github.com/terra-clan/progress-engine/internal/observability"
	"github.com/terra-clan/progress-engine/internal/progress"
	"github.com/terra-clan/progress-engine/internal/sessions"
	"github.com/terra-clan/progress-engine/internal/storage"
)

var version = "dev"

func main() {
	issueToken := flag.String("issue-token", "", "print a signed token for the given user ID and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	if *issueToken != "" {
		token, err := verifier.Issue(*issueToken, 0)
		if err != nil {
			slog.Error("failed to issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg, verifier); err != nil {
		slog.Error("progress-engine failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, verifier *auth.Verifier) error {
	slog.Info("starting progress-engine",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Driver,
		"events", cfg.Events.Driver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "progress-engine",
		Version:     version,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Error("tracing shutdown error", "error", err)
		}
	}()

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	defer initCancel()

	registry := health.NewRegistry()

	repo, err := openRepository(initCtx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()
	registry.Register("storage", health.CheckerFunc(repo.Ping))

	// Load catalog
	cat, err := loadCatalog(cfg.Catalog.Dir)
	if err != nil {
		return err
	}
	slog.Info("catalog ready", "tools", cat.Len(), "dir", cfg.Catalog.Dir)

	bus, err := openBus(initCtx, ctx, cfg, registry)
	if err != nil {
		return err
	}
	defer bus.Close()

	manager := sessions.NewManager(cat, repo,
		sessions.WithLogger(slog.Default().With("component", "sessions")),
		sessions.WithRefreshTimeout(cfg.Sessions.RefreshTimeout),
	)
	manager.Start(bus)
	defer manager.Close()

	tracker := progress.NewTracker(cat, repo, bus)
	cleaner := cleanup.NewCleaner(manager, cfg.Sessions.SweepInterval, cfg.Sessions.IdleTTL)

	server := api.NewServer(cfg.Server, cat, manager, tracker, verifier, registry)
	httpServer := &http.Server{
		Addr:        cfg.Server.Addr(),
		Handler:     otelhttp.NewHandler(server.Router(), "progress-engine"),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cleaner.Run(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("progress-engine stopped")
	return nil
}

// openRepository builds the progress store selected by STORAGE_DRIVER
func openRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		slog.Warn("using in-memory progress store; completions are lost on restart")
		return storage.NewMemoryRepository(), nil
	}

	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: int32(cfg.Database.MaxConns),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create database repository: %w", err)
	}
	slog.Info("database connected successfully")

	slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
	if err := storage.RunMigrations(ctx, repo.Pool(), storage.MigrationSource(cfg.Database.MigrationsDir)); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func loadCatalog(dir string) (*catalog.Loader, error) {
	if dir == "" {
		cat, err := catalog.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to load built-in catalog: %w", err)
		}
		return cat, nil
	}

	cat := catalog.NewLoader()
	if err := cat.LoadFromDir(dir); err != nil {
		return nil, fmt.Errorf("failed to load catalog from %s: %w", dir, err)
	}
	return cat, nil
}

// openBus builds the event bus selected by EVENTS_DRIVER. Network buses
// forward until runCtx is done and register a readiness check.
func openBus(initCtx, runCtx context.Context, cfg *config.Config, registry *health.Registry) (events.Bus, error) {
	switch cfg.Events.Driver {
	case config.EventsRedis:
		bus, err := events.NewRedisBus(initCtx, events.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Events.Channel,
		})
		if err != nil {
			return nil, err
		}
		if err := bus.Start(runCtx); err != nil {
			bus.Close()
			return nil, err
		}
		registry.Register("events", bus)
		return bus, nil

	case config.EventsPostgres:
		bus, err := events.NewPostgresBus(initCtx, cfg.Database.DSN, cfg.Events.Channel)
		if err != nil {
			return nil, err
		}
		if err := bus.Start(runCtx); err != nil {
			bus.Close()
			return nil, err
		}
		registry.Register("events", bus)
		return bus, nil

	default:
		return events.NewLocalBus(), nil
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

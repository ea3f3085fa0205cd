// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/quill/internal/api"
	"github.com/starford/quill/internal/catalog"
	"github.com/starford/quill/internal/frontmatter"
	"github.com/starford/quill/internal/postservice"
	"github.com/starford/quill/internal/sse"
	"github.com/starford/quill/internal/storage"
)

var errConfigRequired = errors.New("config is required")

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.logger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("content_root", cfg.Content.Root),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("timezone", cfg.Content.Timezone),
		slog.String("log_level", cfg.App.LogLevel.String()))

	env, err := app.open(ctx, logger)
	if err != nil {
		return err
	}
	defer env.db.Close()

	// SSE broker.
	broker := sse.NewBroker(cfg.App.Events.TaxonomyThrottle)
	defer broker.Close()

	// Build API service and router.
	svc := postservice.NewService(env.store, env.db, env.parseOpts...)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := env.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	if cfg.Content.Watch {
		g.Go(func() error {
			publish := func(c catalog.Change) {
				broker.PublishPost(sse.NewPostChange(c.Kind, c.Path, c.Doc, c.Err))
			}
			err := catalog.Watch(gCtx, env.db, env.store, env.store.Root(), logger, publish, env.parseOpts...)
			if err != nil {
				logger.Error("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher exits with the server.
var errShutdown = errors.New("shutdown")

func (a *application) logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}

// environment is the storage side shared by the server and the MCP command.
type environment struct {
	store     *storage.FS
	db        *catalog.DB
	parseOpts []frontmatter.Option
}

func (a *application) contentStore() (*storage.FS, []frontmatter.Option, error) {
	cfg := a.config

	parseOpts, err := cfg.Content.ParseOptions()
	if err != nil {
		return nil, nil, fmt.Errorf("content config: %w", err)
	}

	// Ensure content directory exists.
	if err := os.MkdirAll(cfg.Content.Root, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create content dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Content.Root, cfg.Content.Extensions...)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}
	return store, parseOpts, nil
}

// open prepares storage and the catalog and runs the initial sync.
func (a *application) open(ctx context.Context, logger *slog.Logger) (*environment, error) {
	store, parseOpts, err := a.contentStore()
	if err != nil {
		return nil, err
	}

	db, err := catalog.Open(a.config.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}

	report, err := catalog.Sync(ctx, db, store, logger, parseOpts...)
	if err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	} else {
		logger.Info("initial sync done",
			slog.Int("created", len(report.Created)),
			slog.Int("updated", len(report.Updated)),
			slog.Int("deleted", len(report.Deleted)),
			slog.Int("invalid", len(report.Invalid)),
			slog.Int("unchanged", report.Unchanged))
	}

	return &environment{store: store, db: db, parseOpts: parseOpts}, nil
}

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

	"github.com/starford/relnotes/internal/api"
	"github.com/starford/relnotes/internal/embedding"
	"github.com/starford/relnotes/internal/index"
	"github.com/starford/relnotes/internal/mcpserver"
	"github.com/starford/relnotes/internal/models"
	"github.com/starford/relnotes/internal/noteservice"
	"github.com/starford/relnotes/internal/similarity"
	"github.com/starford/relnotes/internal/sse"
	"github.com/starford/relnotes/internal/storage"
)

// core holds the wired components shared by every run mode.
type core struct {
	logger *slog.Logger
	db     *index.DB
	mounts *storage.Mounts
	notes  *noteservice.Service
	sim    *similarity.Service
}

func (rt *core) Close() {
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close index", slog.String("error", err.Error()))
	}
}

func configure(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.logOutput == nil {
		app.logOutput = os.Stdout
	}
	return app, nil
}

// setup opens the catalog, resolves mounts, syncs and wires the services.
// onEmbedded may be nil.
func setup(app *application, onEmbedded func(rec *models.EmbeddingRecord, path string)) (*core, error) {
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.Any("note_roots", cfg.Notes.Roots),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("embedding_provider", cfg.Embedding.Provider),
		slog.String("embedding_model", cfg.Embedding.Model),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize SQLite catalog.
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	mounts, err := openMounts(cfg.Notes.Roots, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Run initial sync.
	if err := index.Sync(db, mounts, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	provider := app.provider
	if provider == nil {
		opts := cfg.Embedding.Options()
		opts.Logger = logger
		provider, err = embedding.New(opts)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init embedding provider: %w", err)
		}
	}
	queries, err := embedding.NewCached(provider, cfg.Embedding.CacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}

	notes := noteservice.NewService(mounts, db, logger)
	simOpts := []similarity.Option{
		similarity.WithQueryProvider(queries),
		similarity.WithTimeout(cfg.Similarity.Timeout),
		similarity.WithConcurrency(cfg.Similarity.Concurrency),
		similarity.WithLogger(logger),
	}
	if onEmbedded != nil {
		simOpts = append(simOpts, similarity.WithEmbeddedHook(onEmbedded))
	}

	return &core{
		logger: logger,
		db:     db,
		mounts: mounts,
		notes:  notes,
		sim:    similarity.New(mounts, notes, provider, simOpts...),
	}, nil
}

// openMounts creates the configured roots, then appends roots added at
// runtime in earlier sessions. A persisted root that has disappeared is
// logged and skipped.
func openMounts(roots []string, db *index.DB, logger *slog.Logger) (*storage.Mounts, error) {
	for _, root := range roots {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create notes dir: %w", err)
		}
	}
	mounts, err := storage.NewMounts(roots...)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	persisted, err := db.Mounts()
	if err != nil {
		return nil, fmt.Errorf("load mounts: %w", err)
	}
	for _, root := range persisted {
		if _, err := mounts.Add(root); err != nil {
			logger.Warn("skip persisted mount", slog.String("root", root), slog.String("error", err.Error()))
		}
	}
	return mounts, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := configure(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	rt, err := setup(app, func(rec *models.EmbeddingRecord, path string) {
		broker.PublishEmbedding(rec.NoteID, path, rec.Model)
	})
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	watcher, err := index.NewWatcher(rt.db, rt.mounts, logger, broker.PublishNoteEvent)
	if err != nil {
		return fmt.Errorf("init watcher: %w", err)
	}
	defer watcher.Close()

	rt.notes.OnMountChange(func(root string, added bool) {
		if !added {
			watcher.RemoveRoot(root)
			return
		}
		if err := watcher.AddRoot(root); err != nil {
			logger.Error("watch new mount", slog.String("root", root), slog.String("error", err.Error()))
		}
	})

	apiRouter := api.NewRouter(rt.notes, rt.sim, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if err := rt.db.Ping(); err != nil {
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

	// Keep the catalog in step with disk and notify SSE clients.
	g.Go(func() error {
		return watcher.Run(gCtx)
	})

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

// errShutdown cancels the group once the server has been shut down, so the
// watcher stops too.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdin/stdout until the client disconnects.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := configure(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	rt, err := setup(app, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.logger.Info("MCP server starting", slog.String("version", app.version))
	return mcpserver.New(rt.notes, rt.sim, app.version).ServeStdio()
}

// Embed generates and stores the embedding of one note.
func Embed(ctx context.Context, noteID string, opts ...Option) (*models.EmbeddingRecord, error) {
	app, err := configure(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return nil, err
	}
	rt, err := setup(app, nil)
	if err != nil {
		return nil, err
	}
	defer rt.Close()
	return rt.sim.GenerateEmbedding(ctx, noteID)
}

// Similar runs one similarity search over every mount.
func Similar(ctx context.Context, query, excludeNoteID string, opts ...Option) ([]models.SimilarNote, error) {
	app, err := configure(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return nil, err
	}
	rt, err := setup(app, nil)
	if err != nil {
		return nil, err
	}
	defer rt.Close()
	return rt.sim.FindSimilar(ctx, query, excludeNoteID)
}

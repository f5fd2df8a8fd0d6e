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

	"github.com/starford/limen/internal/api"
	"github.com/starford/limen/internal/docservice"
	"github.com/starford/limen/internal/sse"
	"github.com/starford/limen/internal/storage"
	"github.com/starford/limen/internal/store"
)

// components are the long-lived pieces shared by every command.
type components struct {
	files   *storage.FS
	db      *store.DB
	indexer *store.Indexer
	service *docservice.Service
}

func openComponents(cfg *Config, logger *slog.Logger) (*components, error) {
	if err := os.MkdirAll(cfg.Corpus.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create corpus dir: %w", err)
	}
	files, err := storage.NewFS(cfg.Corpus.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	ix := store.NewIndexer(db, cfg.Store.Compress, logger)
	return &components{
		files:   files,
		db:      db,
		indexer: ix,
		service: docservice.NewService(files, db, ix, logger),
	}, nil
}

func (c *components) Close() error {
	return c.db.Close()
}

// Run starts the HTTP server and the corpus watcher with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("corpus_path", cfg.Corpus.Path),
		slog.Bool("watch", cfg.Corpus.Watch),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("compress", cfg.Store.Compress),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := openComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	// Run initial sync.
	if err := store.Sync(ctx, c.indexer, c.files, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	c.service.OnChange(broker.PublishDocumentEvent)

	apiRouter := api.NewRouter(c.service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := c.db.List(1, 0, ""); err != nil {
			writeHealth(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		writeHealth(w, http.StatusOK, "ok")
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the corpus and forward changes to SSE clients.
	if cfg.Corpus.Watch {
		g.Go(func() error {
			if err := store.Watch(gCtx, c.indexer, c.files, logger, broker.PublishDocumentEvent); err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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

// errShutdown ends the errgroup so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

func writeHealth(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, msg)
}

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

	"github.com/starford/othala/internal/api"
	"github.com/starford/othala/internal/auth"
	"github.com/starford/othala/internal/engine"
	"github.com/starford/othala/internal/eventlog"
	"github.com/starford/othala/internal/feed"
	"github.com/starford/othala/internal/identity"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/ingest"
	"github.com/starford/othala/internal/store"
)

const resolverCacheTTL = 10 * time.Minute

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	// Load or create the node's signing key; its DID is always served.
	pub, _, err := identity.LoadOrGenerate(cfg.Node.KeyPath)
	if err != nil {
		return fmt.Errorf("load node key: %w", err)
	}
	nodeDID := identity.FromPublicKey(pub)

	tenants := cfg.Node.Tenants
	if len(tenants) == 0 {
		tenants = []string{nodeDID}
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("node_did", nodeDID),
		slog.Int("tenants", len(tenants)),
		slog.String("store_path", cfg.Store.Path),
		slog.String("index_path", cfg.Index.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize message and payload storage.
	badgerStore, err := store.OpenBadger(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer badgerStore.Close()

	var dataStore store.DataStore = badgerStore
	if cfg.Store.Backend == PayloadBackendFS {
		fsData, err := store.NewFSData(cfg.Store.PayloadPath)
		if err != nil {
			return fmt.Errorf("init payload store: %w", err)
		}
		dataStore = fsData
	}

	// Initialize SQLite message index.
	idx, err := index.Open(cfg.Index.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer idx.Close()

	// Initialize SQLite event log.
	events, err := eventlog.Open(cfg.Events.Path)
	if err != nil {
		return fmt.Errorf("init event log: %w", err)
	}
	defer events.Close()

	// SSE broker.
	broker := feed.NewBroker()
	defer broker.Close()

	resolver := identity.NewCachedResolver(identity.KeyResolver{}, resolverCacheTTL)
	gate := auth.NewGate(resolver, idx, badgerStore)

	eng := engine.New(engine.Deps{
		Tenants:  tenants,
		Messages: badgerStore,
		Data:     dataStore,
		Index:    idx,
		Events:   events,
		Gate:     gate,
		Notify: func(tenant, cid string, seq int64) {
			broker.Publish(feed.Admission{Tenant: tenant, CID: cid, Seq: seq})
		},
		Logger: logger,
	})

	apiRouter := api.NewRouter(eng, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start inbox watcher when configured.
	if cfg.Inbox.Path != "" {
		g.Go(func() error {
			if err := ingest.Watch(gCtx, eng, cfg.Inbox.Path, logger); err != nil {
				return fmt.Errorf("inbox watcher: %w", err)
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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

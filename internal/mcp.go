package internal

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/starford/othala/internal/auth"
	"github.com/starford/othala/internal/engine"
	"github.com/starford/othala/internal/eventlog"
	"github.com/starford/othala/internal/identity"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/mcpserver"
	"github.com/starford/othala/internal/store"
)

// RunMCP serves the node's read tools over stdio for MCP clients. It opens
// the same stores as Run but starts no HTTP server or watcher; stdout is
// reserved for the MCP transport, so logging is discarded.
func RunMCP(opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	pub, _, err := identity.LoadOrGenerate(cfg.Node.KeyPath)
	if err != nil {
		return fmt.Errorf("load node key: %w", err)
	}
	tenants := cfg.Node.Tenants
	if len(tenants) == 0 {
		tenants = []string{identity.FromPublicKey(pub)}
	}

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

	idx, err := index.Open(cfg.Index.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer idx.Close()

	events, err := eventlog.Open(cfg.Events.Path)
	if err != nil {
		return fmt.Errorf("init event log: %w", err)
	}
	defer events.Close()

	resolver := identity.NewCachedResolver(identity.KeyResolver{}, 10*time.Minute)

	eng := engine.New(engine.Deps{
		Tenants:  tenants,
		Messages: badgerStore,
		Data:     dataStore,
		Index:    idx,
		Events:   events,
		Gate:     auth.NewGate(resolver, idx, badgerStore),
		Logger:   logger,
	})

	return mcpserver.New(eng).ServeStdio()
}

// Package ingest replays message bundles dropped into an inbox directory
// through the admission pipeline. Bundles are how an operator (or a peer's
// export) hands this node a batch of signed messages out of band; arrival
// order inside a bundle is irrelevant by construction of the conflict
// resolver.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/othala/internal/engine"
)

// Item is one raw message plus its optional payload.
type Item struct {
	Message json.RawMessage `json:"message"`
	Data    []byte          `json:"data,omitempty"`
}

// Bundle is the on-disk shape of an inbox file.
type Bundle struct {
	Target   string `json:"target"`
	Messages []Item `json:"messages"`
}

// Watch processes bundles already in dir, then watches for new *.json files
// until ctx is cancelled. Successfully processed files are removed; files
// that fail to parse are left in place for inspection.
func Watch(ctx context.Context, eng *engine.Engine, dir string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("ingest: watch %s: %w", dir, err)
	}
	logger.Info("ingest: started", slog.String("inbox", dir))

	// Sweep bundles that were dropped while the node was down.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("ingest: read inbox: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			processBundle(ctx, eng, filepath.Join(dir, e.Name()), logger)
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("ingest: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			// Rename covers the atomic write-then-move pattern producers use.
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if _, err := os.Stat(ev.Name); err != nil {
				continue
			}
			processBundle(ctx, eng, ev.Name, logger)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("ingest: watcher error", slog.String("error", err.Error()))
		}
	}
}

// processBundle replays every message of one bundle file and removes the
// file once all messages got a classified reply.
func processBundle(ctx context.Context, eng *engine.Engine, path string, logger *slog.Logger) {
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("ingest: read failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		logger.Warn("ingest: bad bundle", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	admitted, rejected := 0, 0
	for _, item := range b.Messages {
		if ctx.Err() != nil {
			return
		}
		reply := eng.Process(ctx, b.Target, item.Message, item.Data)
		if reply.Status.Code < 300 {
			admitted++
		} else {
			rejected++
			logger.Debug("ingest: message rejected",
				slog.String("path", path),
				slog.Int("code", reply.Status.Code),
				slog.String("detail", reply.Status.Detail))
		}
	}
	logger.Info("ingest: bundle processed",
		slog.String("path", path),
		slog.String("target", b.Target),
		slog.Int("admitted", admitted),
		slog.Int("rejected", rejected))

	if err := os.Remove(path); err != nil {
		logger.Warn("ingest: cleanup failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

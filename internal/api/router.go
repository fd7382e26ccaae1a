package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/othala/internal/engine"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced on the
// transport edge. sseHandler, if non-nil, is mounted at GET /feed inside the
// auth group.
func NewRouter(eng *engine.Engine, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(eng)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Message admission.
	r.Post("/messages", h.ProcessMessage)

	// Sync surfaces: watermark pull and live push.
	r.Get("/events", h.Events)
	if sseHandler != nil {
		r.Get("/feed", sseHandler.ServeHTTP)
	}

	// Operator read surface.
	r.Get("/records", h.Records)

	return r
}

// Package http implements the hub's HTTP transport: route handlers,
// middleware and error mapping in front of the sync coordinator.
// Authentication, tracing and logging concerns are handled at this layer
// before requests reach the engine.
package http

import (
	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/sync"
	"github.com/MKhiriev/go-row-sync/internal/token"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler exposes the sync wire contract over HTTP.
type Handler struct {
	coordinator *sync.Coordinator
	tokens      *token.Service

	logger *logger.Logger
}

// NewHandler builds the transport in front of coordinator.
func NewHandler(coordinator *sync.Coordinator, tokens *token.Service, logger *logger.Logger) *Handler {
	logger.Info().Msg("http handler created")
	return &Handler{
		coordinator: coordinator,
		tokens:      tokens,
		logger:      logger,
	}
}

// Init assembles the router. Every sync route sits behind the bearer-token
// middleware; the trace and logging middleware wrap everything.
func (h *Handler) Init() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(h.withTraceID)
	router.Use(h.withLogging)

	router.Group(func(r chi.Router) {
		r.Use(h.auth)

		r.Post("/api/sync/scope", h.ensureScope)
		r.Post("/api/sync/changes", h.syncChanges)
		r.Get("/api/sync/snapshot/{scope}", h.getSnapshot)
		r.Post("/api/sync/snapshot/{scope}", h.createSnapshot)
		r.Post("/api/sync/cleanup/{scope}", h.deleteMetadatas)
	})

	return router
}

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"notebook-rag/internal/handlers"
	"notebook-rag/internal/indexer"
	"notebook-rag/internal/service"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Notebooks    service.NotebookService
	Attachments  service.AttachmentService
	ChatService  service.ChatService
	Events       handlers.EventSource
	HealthChecks map[string]handlers.HealthCheck
	Stats        func() indexer.IngestionStats
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	notebookHandler := handlers.NewNotebookHandler(deps.Notebooks)
	attachmentHandler := handlers.NewAttachmentHandler(deps.Attachments)
	chatHandler := handlers.NewChatHandler(deps.ChatService)

	r.Route("/api", func(r chi.Router) {
		r.Route("/notebooks", func(r chi.Router) {
			r.Post("/", notebookHandler.Create)
			r.Get("/", notebookHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", notebookHandler.Delete)
				r.Get("/attachments", attachmentHandler.List)
				r.Post("/attachments", attachmentHandler.Upload)
				r.Get("/messages", chatHandler.History)
				r.Post("/messages", chatHandler.Send)
			})
		})
		r.Delete("/attachments/{id}", attachmentHandler.Delete)
		if deps.Events != nil {
			r.Method(http.MethodGet, "/events", handlers.NewEventsHandler(deps.Events))
		}
		r.Method(http.MethodGet, "/health", handlers.NewHealthHandler(deps.HealthChecks, deps.Stats))
	})

	return r
}

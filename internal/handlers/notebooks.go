package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"notebook-rag/internal/service"
	"notebook-rag/internal/storage"
)

// NotebookHandler handles HTTP requests for notebooks.
type NotebookHandler struct {
	notebooks service.NotebookService
}

// NewNotebookHandler creates a new NotebookHandler.
func NewNotebookHandler(notebooks service.NotebookService) *NotebookHandler {
	return &NotebookHandler{notebooks: notebooks}
}

// CreateNotebookRequest represents the HTTP request payload for creating a notebook.
type CreateNotebookRequest struct {
	Title string `json:"title"`
}

// NotebooksResponse lists notebooks, most recently accessed first.
type NotebooksResponse struct {
	Notebooks []storage.Notebook `json:"notebooks"`
}

// Create handles POST /api/notebooks.
func (h *NotebookHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateNotebookRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	nb, err := h.notebooks.Create(ctx, req.Title)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to create notebook")
		return
	}
	writeJSON(ctx, w, http.StatusCreated, nb)
}

// List handles GET /api/notebooks.
func (h *NotebookHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	notebooks, err := h.notebooks.List(ctx)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to list notebooks")
		return
	}
	if notebooks == nil {
		notebooks = []storage.Notebook{}
	}
	writeJSON(ctx, w, http.StatusOK, NotebooksResponse{Notebooks: notebooks})
}

// Delete handles DELETE /api/notebooks/{id}.
func (h *NotebookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.notebooks.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		handleServiceError(ctx, w, err, "Failed to delete notebook")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

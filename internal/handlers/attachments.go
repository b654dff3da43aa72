package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"notebook-rag/internal/service"
	"notebook-rag/internal/storage"
)

// AttachmentHandler handles HTTP requests for notebook attachments.
type AttachmentHandler struct {
	attachments service.AttachmentService
}

// NewAttachmentHandler creates a new AttachmentHandler.
func NewAttachmentHandler(attachments service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

// UploadRequest names a local file to attach. The file is referenced, not copied.
type UploadRequest struct {
	Path string `json:"path"`
}

// AttachmentsResponse lists a notebook's attachments, newest first.
type AttachmentsResponse struct {
	Attachments []storage.Attachment `json:"attachments"`
}

// Upload handles POST /api/notebooks/{id}/attachments. It answers 202 with
// the Pending attachment; ingestion progress is reported on /api/events.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	att, err := h.attachments.Upload(ctx, chi.URLParam(r, "id"), req.Path)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to upload file")
		return
	}
	writeJSON(ctx, w, http.StatusAccepted, att)
}

// List handles GET /api/notebooks/{id}/attachments.
func (h *AttachmentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	atts, err := h.attachments.List(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to list attachments")
		return
	}
	if atts == nil {
		atts = []storage.Attachment{}
	}
	writeJSON(ctx, w, http.StatusOK, AttachmentsResponse{Attachments: atts})
}

// Delete handles DELETE /api/attachments/{id}.
func (h *AttachmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.attachments.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		handleServiceError(ctx, w, err, "Failed to delete attachment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

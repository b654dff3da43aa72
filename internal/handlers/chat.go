package handlers

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"notebook-rag/internal/contextutil"
	"notebook-rag/internal/rag"
	"notebook-rag/internal/service"
	"notebook-rag/internal/storage"
)

// ChatHandler handles HTTP requests for a notebook's chat.
type ChatHandler struct {
	chatService service.ChatService
	markdown    goldmark.Markdown
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		// Raw HTML in model output is escaped: no WithUnsafe.
		markdown: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Typographer,
			),
		),
	}
}

// ChatRequest represents the HTTP request payload for chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// MessageResponse is one chat entry. HTML is set only when ?format=html is requested.
type MessageResponse struct {
	ID        string       `json:"id"`
	Role      storage.Role `json:"role"`
	Message   string       `json:"message"`
	HTML      string       `json:"html,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// HistoryResponse lists a notebook's chat entries, oldest first.
type HistoryResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// Send handles POST /api/notebooks/{id}/messages. ?debug=true adds the
// retrieved chunks and prompt to the response.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.chatService.Send(ctx, service.ChatRequest{
		NotebookID: chi.URLParam(r, "id"),
		Message:    req.Message,
		Debug:      r.URL.Query().Get("debug") == "true",
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to process chat request")
		return
	}
	if resp.Sources == nil {
		resp.Sources = []rag.Source{}
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

// History handles GET /api/notebooks/{id}/messages.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asHTML := r.URL.Query().Get("format") == "html"

	entries, err := h.chatService.History(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to load chat history")
		return
	}

	messages := make([]MessageResponse, 0, len(entries))
	for _, e := range entries {
		m := MessageResponse{
			ID:        e.ID,
			Role:      e.Role,
			Message:   e.Message,
			Timestamp: e.Timestamp,
		}
		if asHTML {
			m.HTML = h.render(r, e)
		}
		messages = append(messages, m)
	}
	writeJSON(ctx, w, http.StatusOK, HistoryResponse{Messages: messages})
}

// render converts assistant markdown to HTML. User messages are shown as typed.
func (h *ChatHandler) render(r *http.Request, e storage.ChatEntry) string {
	if e.Role != storage.RoleAssistant {
		return "<p>" + template.HTMLEscapeString(e.Message) + "</p>"
	}

	var buf bytes.Buffer
	if err := h.markdown.Convert([]byte(e.Message), &buf); err != nil {
		contextutil.LoggerFromContext(r.Context()).WarnContext(r.Context(), "failed to render markdown", "entry_id", e.ID, "error", err)
		return "<p>" + template.HTMLEscapeString(e.Message) + "</p>"
	}
	return buf.String()
}

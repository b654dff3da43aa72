package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"notebook-rag/internal/contextutil"
	"notebook-rag/internal/indexer"
)

// EventSource hands out ingestion event subscriptions.
type EventSource interface {
	Subscribe() (<-chan indexer.Event, func())
}

// EventsHandler streams ingestion events as Server-Sent Events.
type EventsHandler struct {
	source    EventSource
	keepAlive time.Duration
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(source EventSource) *EventsHandler {
	return &EventsHandler{
		source:    source,
		keepAlive: 15 * time.Second,
	}
}

// ServeHTTP handles GET /api/events. Each event is sent as
// "event: <kind>\ndata: <json>\n\n" until the client disconnects.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.ErrorContext(ctx, "streaming not supported by response writer")
		writeError(w, http.StatusInternalServerError, "", "Streaming not supported")
		return
	}

	events, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger.DebugContext(ctx, "event stream opened")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.DebugContext(ctx, "event stream closed by client")
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.ErrorContext(ctx, "failed to encode event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

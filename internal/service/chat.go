package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_answerer.go -package=mocks notebook-rag/internal/service Answerer
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chat_service.go -package=mocks -mock_names=ChatService=MockChatService notebook-rag/internal/service ChatService

import (
	"context"
	"errors"
	"strings"

	"notebook-rag/internal/apperrors"
	"notebook-rag/internal/contextutil"
	"notebook-rag/internal/rag"
	"notebook-rag/internal/storage"
)

// Answerer answers a question from a notebook's attachments.
// This interface is defined from the service layer's perspective (consumer-first).
type Answerer interface {
	Ask(ctx context.Context, req rag.AskRequest) (rag.AskResponse, error)
}

// ChatRequest represents a chat request in the domain layer.
type ChatRequest struct {
	NotebookID string
	Message    string
	Debug      bool
}

// ChatService provides notebook chat functionality.
type ChatService interface {
	// Send answers a message and returns the assistant entry with its sources.
	Send(ctx context.Context, req ChatRequest) (rag.AskResponse, error)
	// History returns a notebook's recent chat entries, oldest first, and
	// marks the notebook as accessed.
	History(ctx context.Context, notebookID string) ([]storage.ChatEntry, error)
}

// chatService implements ChatService.
type chatService struct {
	answerer  Answerer
	notebooks storage.NotebookStore
	chats     storage.ChatStore
}

// NewChatService creates a new ChatService.
func NewChatService(answerer Answerer, notebooks storage.NotebookStore, chats storage.ChatStore) ChatService {
	return &chatService{
		answerer:  answerer,
		notebooks: notebooks,
		chats:     chats,
	}
}

// Send processes a chat request.
func (s *chatService) Send(ctx context.Context, req ChatRequest) (rag.AskResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	// Business validation
	if strings.TrimSpace(req.Message) == "" {
		logger.WarnContext(ctx, "empty message in chat request")
		return rag.AskResponse{}, &ValidationError{
			Field:   "message",
			Message: "cannot be empty",
		}
	}

	if err := s.requireNotebook(ctx, req.NotebookID); err != nil {
		return rag.AskResponse{}, err
	}

	resp, err := s.answerer.Ask(ctx, rag.AskRequest{
		NotebookID: req.NotebookID,
		Question:   req.Message,
		Debug:      req.Debug,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to answer message", "notebook_id", req.NotebookID, "error", err)
		return rag.AskResponse{}, WrapError(err, "failed to answer message")
	}

	logger.InfoContext(ctx, "chat request processed successfully",
		"notebook_id", req.NotebookID,
		"message_length", len(req.Message),
		"reply_length", len(resp.Entry.Message),
	)
	return resp, nil
}

// History returns the chat history of a notebook.
func (s *chatService) History(ctx context.Context, notebookID string) ([]storage.ChatEntry, error) {
	if err := s.notebooks.MarkAccessed(ctx, notebookID); err != nil {
		return nil, notebookError(notebookID, err)
	}

	entries, err := s.chats.ListByNotebook(ctx, notebookID, storage.HistoryLimit)
	if err != nil {
		return nil, apperrors.LedgerFailure("failed to list chat history", err)
	}
	return entries, nil
}

func (s *chatService) requireNotebook(ctx context.Context, notebookID string) error {
	if _, err := s.notebooks.GetByID(ctx, notebookID); err != nil {
		return notebookError(notebookID, err)
	}
	return nil
}

// notebookError maps a notebook lookup failure to a coded error.
func notebookError(notebookID string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFound("notebook " + notebookID + " not found")
	}
	return apperrors.LedgerFailure("failed to load notebook", err)
}

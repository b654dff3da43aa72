package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_notebook_service.go -package=mocks -mock_names=NotebookService=MockNotebookService notebook-rag/internal/service NotebookService

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"notebook-rag/internal/apperrors"
	"notebook-rag/internal/contextutil"
	"notebook-rag/internal/storage"
)

// MaxTitleLength is the longest accepted notebook title, in characters.
const MaxTitleLength = 200

// NotebookService manages notebooks.
type NotebookService interface {
	// Create creates a notebook with a non-empty title.
	Create(ctx context.Context, title string) (*storage.Notebook, error)
	// List returns notebooks, most recently accessed first.
	List(ctx context.Context) ([]storage.Notebook, error)
	// Delete removes a notebook with its attachments, vectors and chat history.
	Delete(ctx context.Context, id string) error
}

type notebookService struct {
	notebooks   storage.NotebookStore
	attachments AttachmentService
	ledger      storage.AttachmentStore
	chats       storage.ChatStore
}

// NewNotebookService creates a new NotebookService.
func NewNotebookService(
	notebooks storage.NotebookStore,
	attachments AttachmentService,
	ledger storage.AttachmentStore,
	chats storage.ChatStore,
) NotebookService {
	return &notebookService{
		notebooks:   notebooks,
		attachments: attachments,
		ledger:      ledger,
		chats:       chats,
	}
}

func (s *notebookService) Create(ctx context.Context, title string) (*storage.Notebook, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "cannot be empty"}
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, &ValidationError{Field: "title", Message: "is too long"}
	}

	nb, err := s.notebooks.Create(ctx, title)
	if err != nil {
		return nil, apperrors.LedgerFailure("failed to create notebook", err)
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "notebook created", "notebook_id", nb.ID)
	return nb, nil
}

func (s *notebookService) List(ctx context.Context) ([]storage.Notebook, error) {
	notebooks, err := s.notebooks.List(ctx)
	if err != nil {
		return nil, apperrors.LedgerFailure("failed to list notebooks", err)
	}
	return notebooks, nil
}

// Delete removes attachments one at a time, vectors before rows, so a failure
// part way leaves every remaining attachment intact and the delete can be retried.
func (s *notebookService) Delete(ctx context.Context, id string) error {
	logger := contextutil.LoggerFromContext(ctx).With("notebook_id", id)

	if _, err := s.notebooks.GetByID(ctx, id); err != nil {
		return notebookError(id, err)
	}

	atts, err := s.ledger.ListByNotebook(ctx, id)
	if err != nil {
		return apperrors.LedgerFailure("failed to list attachments", err)
	}
	for _, att := range atts {
		if err := s.attachments.Delete(ctx, att.ID); err != nil && !errors.Is(err, ErrNotFound) {
			logger.ErrorContext(ctx, "failed to delete attachment", "attachment_id", att.ID, "error", err)
			return err
		}
	}

	if err := s.chats.DeleteByNotebook(ctx, id); err != nil {
		return apperrors.LedgerFailure("failed to delete chat history", err)
	}
	if err := s.notebooks.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return apperrors.LedgerFailure("failed to delete notebook", err)
	}

	logger.InfoContext(ctx, "notebook deleted", "attachments", len(atts))
	return nil
}

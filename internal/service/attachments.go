package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_attachment_service.go -package=mocks -mock_names=AttachmentService=MockAttachmentService notebook-rag/internal/service AttachmentService

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"notebook-rag/internal/apperrors"
	"notebook-rag/internal/contextutil"
	"notebook-rag/internal/indexer"
	"notebook-rag/internal/storage"
	"notebook-rag/internal/vectorstore"
)

// Submitter starts background ingestion of a committed attachment.
type Submitter interface {
	Submit(ctx context.Context, att storage.Attachment) *indexer.Job
}

// AttachmentService manages the files attached to notebooks.
type AttachmentService interface {
	// Upload records a file as a Pending attachment and starts ingesting it.
	// It returns before ingestion finishes. Unsupported formats are rejected
	// before anything is recorded.
	Upload(ctx context.Context, notebookID, path string) (*storage.Attachment, error)
	// List returns a notebook's attachments, newest first.
	List(ctx context.Context, notebookID string) ([]storage.Attachment, error)
	// Delete removes an attachment's vectors and then its ledger row.
	Delete(ctx context.Context, id string) error
}

type attachmentService struct {
	notebooks storage.NotebookStore
	ledger    storage.AttachmentStore
	index     vectorstore.Index
	submitter Submitter
}

// NewAttachmentService creates a new AttachmentService.
func NewAttachmentService(
	notebooks storage.NotebookStore,
	ledger storage.AttachmentStore,
	index vectorstore.Index,
	submitter Submitter,
) AttachmentService {
	return &attachmentService{
		notebooks: notebooks,
		ledger:    ledger,
		index:     index,
		submitter: submitter,
	}
}

func (s *attachmentService) Upload(ctx context.Context, notebookID, path string) (*storage.Attachment, error) {
	logger := contextutil.LoggerFromContext(ctx)

	path = strings.TrimSpace(path)
	if path == "" {
		return nil, &ValidationError{Field: "path", Message: "cannot be empty"}
	}
	if err := indexer.CheckSupported(path); err != nil {
		logger.WarnContext(ctx, "rejected unsupported file", "path", path)
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &ValidationError{Field: "path", Message: "is not a valid path"}
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ValidationError{Field: "path", Message: "file not found"}
		}
		return nil, WrapError(err, "failed to read file metadata")
	}
	if info.IsDir() {
		return nil, &ValidationError{Field: "path", Message: "is a directory"}
	}

	att := &storage.Attachment{
		NotebookID: notebookID,
		FileName:   filepath.Base(abs),
		FilePath:   abs,
		FileSize:   info.Size(),
		FileType:   indexer.FileType(abs),
	}
	if err := s.ledger.Create(ctx, att); err != nil {
		return nil, notebookError(notebookID, err)
	}

	s.submitter.Submit(ctx, *att)

	logger.InfoContext(ctx, "attachment uploaded",
		"attachment_id", att.ID,
		"notebook_id", notebookID,
		"file_type", att.FileType,
		"file_size", att.FileSize,
	)
	return att, nil
}

func (s *attachmentService) List(ctx context.Context, notebookID string) ([]storage.Attachment, error) {
	if _, err := s.notebooks.GetByID(ctx, notebookID); err != nil {
		return nil, notebookError(notebookID, err)
	}

	atts, err := s.ledger.ListByNotebook(ctx, notebookID)
	if err != nil {
		return nil, apperrors.LedgerFailure("failed to list attachments", err)
	}
	return atts, nil
}

// Delete removes vectors first: if that fails the row stays and the delete
// can be retried, and a failed row delete only leaves a row without vectors.
func (s *attachmentService) Delete(ctx context.Context, id string) error {
	logger := contextutil.LoggerFromContext(ctx).With("attachment_id", id)

	if _, err := s.ledger.GetByID(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NotFound(fmt.Sprintf("attachment %s not found", id))
		}
		return apperrors.LedgerFailure("failed to load attachment", err)
	}

	if err := s.index.DeleteByAttachment(ctx, id); err != nil {
		logger.ErrorContext(ctx, "failed to delete vectors", "error", err)
		return indexWriteError(err)
	}

	if err := s.ledger.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		logger.ErrorContext(ctx, "failed to delete attachment row", "error", err)
		return apperrors.LedgerFailure("failed to delete attachment", err)
	}

	logger.InfoContext(ctx, "attachment deleted")
	return nil
}

// indexWriteError keeps an already coded index error and wraps anything else.
func indexWriteError(err error) error {
	if apperrors.CodeOf(err) != "" {
		return err
	}
	return apperrors.IndexWriteFailure("failed to delete vectors", err)
}

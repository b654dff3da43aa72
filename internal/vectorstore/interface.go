package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_index.go -package=mocks notebook-rag/internal/vectorstore Index

import (
	"context"
	"fmt"
)

// Payload field names shared by every backend.
const (
	FieldAttachmentID = "attachment_id"
	FieldNotebookID   = "notebook_id"
	FieldPath         = "path"
	FieldText         = "text"
	FieldChunk        = "chunk"
)

// Record is one embedded chunk of an attachment.
type Record struct {
	AttachmentID string
	NotebookID   string
	Path         string
	Text         string
	Vector       []float32
}

// SearchResult is a record returned by a scoped search.
// Distance is the cosine distance to the query; smaller is closer.
type SearchResult struct {
	AttachmentID string
	NotebookID   string
	Path         string
	Text         string
	Distance     float32
}

// Index defines the interface for the notebook-scoped vector index.
type Index interface {
	// Add appends records. Either the whole batch becomes searchable or none of it does.
	Add(ctx context.Context, records []Record) error

	// DeleteByAttachment removes every record of the attachment. Deleting an
	// attachment with no records is not an error.
	DeleteByAttachment(ctx context.Context, attachmentID string) error

	// Search returns at most k records of the notebook, closest first.
	Search(ctx context.Context, notebookID string, query []float32, k int) ([]SearchResult, error)

	// AttachmentIDs returns the distinct attachment IDs that own records.
	AttachmentIDs(ctx context.Context) ([]string, error)

	// Dimensions returns the fixed vector dimension of the index.
	Dimensions() int

	// Close releases the backend.
	Close() error
}

// ErrDimensionMismatch is returned when a vector does not match the index dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// validateRecords checks that every record is addressable and has the index dimension.
func validateRecords(records []Record, dim int) error {
	for i, r := range records {
		if r.AttachmentID == "" || r.NotebookID == "" {
			return fmt.Errorf("record %d: attachment and notebook IDs are required", i)
		}
		if len(r.Vector) != dim {
			return fmt.Errorf("record %d: %w", i, ErrDimensionMismatch{Expected: dim, Got: len(r.Vector)})
		}
	}
	return nil
}

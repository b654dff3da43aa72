package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_attachment_store.go -package=mocks notebook-rag/internal/storage AttachmentStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AttachmentStore defines the interface for the attachment ledger.
type AttachmentStore interface {
	// Create inserts the attachment in Pending state and bumps the owning
	// notebook's last accessed time in the same transaction.
	// ID and CreatedAt are assigned when empty. Returns ErrNotFound if the notebook does not exist.
	Create(ctx context.Context, att *Attachment) error
	// GetByID gets an attachment by ID.
	// Returns nil and ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*Attachment, error)
	// ListByNotebook returns a notebook's attachments, newest first.
	ListByNotebook(ctx context.Context, notebookID string) ([]Attachment, error)
	// ListByStatus returns every attachment in the given status.
	ListByStatus(ctx context.Context, status AttachmentStatus) ([]Attachment, error)
	// ListIDs returns the IDs of every attachment in the ledger.
	ListIDs(ctx context.Context) ([]string, error)
	// TransitionStatus moves an attachment from status from to status to.
	// Returns ErrNotFound if the row no longer exists and ErrStatusConflict
	// if it is no longer in status from.
	TransitionStatus(ctx context.Context, id string, from, to AttachmentStatus) error
	// Delete removes an attachment row inside a transaction.
	// Returns ErrNotFound if the row does not exist.
	Delete(ctx context.Context, id string) error
}

// AttachmentRepo provides methods for attachment operations.
// It implements the AttachmentStore interface.
type AttachmentRepo struct {
	db *sql.DB
}

// NewAttachmentRepo creates a new AttachmentRepo.
func NewAttachmentRepo(db *sql.DB) *AttachmentRepo {
	return &AttachmentRepo{db: db}
}

const attachmentColumns = "id, notebook_id, file_name, file_path, file_size, file_type, status, created_at"

// Create inserts the attachment in Pending state.
func (r *AttachmentRepo) Create(ctx context.Context, att *Attachment) error {
	if att.ID == "" {
		att.ID = uuid.New().String()
	}
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	att.Status = StatusPending

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE notebooks SET last_accessed = ? WHERE id = ?",
			att.CreatedAt.Unix(), att.NotebookID,
		)
		if err != nil {
			return fmt.Errorf("failed to touch notebook: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO attachments ("+attachmentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			att.ID, att.NotebookID, att.FileName, att.FilePath, att.FileSize, att.FileType, string(att.Status), att.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert attachment: %w", err)
		}
		return nil
	})
}

// GetByID gets an attachment by ID.
func (r *AttachmentRepo) GetByID(ctx context.Context, id string) (*Attachment, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+attachmentColumns+" FROM attachments WHERE id = ?", id)
	att, err := scanAttachment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query attachment: %w", err)
	}
	return att, nil
}

// ListByNotebook returns a notebook's attachments, newest first.
func (r *AttachmentRepo) ListByNotebook(ctx context.Context, notebookID string) ([]Attachment, error) {
	return r.list(ctx,
		"SELECT "+attachmentColumns+" FROM attachments WHERE notebook_id = ? ORDER BY created_at DESC, rowid DESC",
		notebookID,
	)
}

// ListByStatus returns every attachment in the given status.
func (r *AttachmentRepo) ListByStatus(ctx context.Context, status AttachmentStatus) ([]Attachment, error) {
	return r.list(ctx,
		"SELECT "+attachmentColumns+" FROM attachments WHERE status = ? ORDER BY created_at ASC",
		string(status),
	)
}

// ListIDs returns the IDs of every attachment in the ledger.
func (r *AttachmentRepo) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM attachments")
	if err != nil {
		return nil, fmt.Errorf("failed to query attachment ids: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan attachment id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachment ids: %w", err)
	}
	return ids, nil
}

// TransitionStatus moves an attachment from one status to another in a
// single conditional update, so concurrent writers cannot overwrite each other.
func (r *AttachmentRepo) TransitionStatus(ctx context.Context, id string, from, to AttachmentStatus) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("invalid attachment status transition %q -> %q", from, to)
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE attachments SET status = ? WHERE id = ? AND status = ?",
		string(to), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update attachment status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, "SELECT status FROM attachments WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to query attachment status: %w", err)
	}
	return fmt.Errorf("%w: attachment %s is %s, not %s", ErrStatusConflict, id, current, from)
}

// Delete removes an attachment row inside a transaction.
func (r *AttachmentRepo) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM attachments WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete attachment: %w", err)
		}
		return requireAffected(res)
	})
}

func (r *AttachmentRepo) list(ctx context.Context, query string, args ...any) ([]Attachment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var attachments []Attachment
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, *att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachments: %w", err)
	}
	return attachments, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttachment(s scanner) (*Attachment, error) {
	var att Attachment
	var status string
	var createdAt int64
	if err := s.Scan(&att.ID, &att.NotebookID, &att.FileName, &att.FilePath, &att.FileSize, &att.FileType, &status, &createdAt); err != nil {
		return nil, err
	}
	att.Status = AttachmentStatus(status)
	att.CreatedAt = fromUnix(createdAt)
	return &att, nil
}

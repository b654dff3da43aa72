package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_notebook_store.go -package=mocks notebook-rag/internal/storage NotebookStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NotebookStore defines the interface for notebook storage operations.
type NotebookStore interface {
	// Create inserts a new notebook with the given title.
	Create(ctx context.Context, title string) (*Notebook, error)
	// GetByID gets a notebook by ID.
	// Returns nil and ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*Notebook, error)
	// List returns all notebooks, most recently accessed first.
	List(ctx context.Context) ([]Notebook, error)
	// MarkAccessed bumps the last accessed time of a notebook.
	MarkAccessed(ctx context.Context, id string) error
	// Delete removes a notebook row. Attachments and chat entries must be removed first.
	Delete(ctx context.Context, id string) error
}

// NotebookRepo provides methods for notebook operations.
// It implements the NotebookStore interface.
type NotebookRepo struct {
	db *sql.DB
}

// NewNotebookRepo creates a new NotebookRepo.
func NewNotebookRepo(db *sql.DB) *NotebookRepo {
	return &NotebookRepo{db: db}
}

// Create inserts a new notebook with the given title.
func (r *NotebookRepo) Create(ctx context.Context, title string) (*Notebook, error) {
	now := time.Now().UTC().Truncate(time.Second)
	nb := &Notebook{
		ID:           uuid.New().String(),
		Title:        title,
		CreatedAt:    now,
		LastAccessed: now,
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO notebooks (id, title, created_at, last_accessed) VALUES (?, ?, ?, ?)",
		nb.ID, nb.Title, now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert notebook: %w", err)
	}

	return nb, nil
}

// GetByID gets a notebook by ID.
func (r *NotebookRepo) GetByID(ctx context.Context, id string) (*Notebook, error) {
	var nb Notebook
	var createdAt, lastAccessed int64

	err := r.db.QueryRowContext(ctx,
		"SELECT id, title, created_at, last_accessed FROM notebooks WHERE id = ?",
		id,
	).Scan(&nb.ID, &nb.Title, &createdAt, &lastAccessed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query notebook: %w", err)
	}

	nb.CreatedAt = fromUnix(createdAt)
	nb.LastAccessed = fromUnix(lastAccessed)
	return &nb, nil
}

// List returns all notebooks, most recently accessed first.
func (r *NotebookRepo) List(ctx context.Context) ([]Notebook, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, title, created_at, last_accessed FROM notebooks ORDER BY last_accessed DESC, created_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notebooks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var notebooks []Notebook
	for rows.Next() {
		var nb Notebook
		var createdAt, lastAccessed int64
		if err := rows.Scan(&nb.ID, &nb.Title, &createdAt, &lastAccessed); err != nil {
			return nil, fmt.Errorf("failed to scan notebook: %w", err)
		}
		nb.CreatedAt = fromUnix(createdAt)
		nb.LastAccessed = fromUnix(lastAccessed)
		notebooks = append(notebooks, nb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notebooks: %w", err)
	}

	return notebooks, nil
}

// MarkAccessed bumps the last accessed time of a notebook.
func (r *NotebookRepo) MarkAccessed(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE notebooks SET last_accessed = ? WHERE id = ?",
		time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update notebook: %w", err)
	}
	return requireAffected(res)
}

// Delete removes a notebook row.
func (r *NotebookRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM notebooks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete notebook: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

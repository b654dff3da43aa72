package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chat_store.go -package=mocks notebook-rag/internal/storage ChatStore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HistoryLimit caps the number of chat entries returned for display.
const HistoryLimit = 100

// ChatStore defines the interface for chat history operations.
type ChatStore interface {
	// Append persists a new chat entry and returns it.
	Append(ctx context.Context, notebookID string, role Role, message string) (*ChatEntry, error)
	// ListByNotebook returns up to limit of the most recent entries, oldest first.
	ListByNotebook(ctx context.Context, notebookID string, limit int) ([]ChatEntry, error)
	// DeleteByNotebook removes every entry of a notebook.
	DeleteByNotebook(ctx context.Context, notebookID string) error
}

// ChatRepo provides methods for chat history operations.
// It implements the ChatStore interface.
type ChatRepo struct {
	db *sql.DB
}

// NewChatRepo creates a new ChatRepo.
func NewChatRepo(db *sql.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// Append persists a new chat entry and returns it.
func (r *ChatRepo) Append(ctx context.Context, notebookID string, role Role, message string) (*ChatEntry, error) {
	entry := &ChatEntry{
		ID:         uuid.New().String(),
		NotebookID: notebookID,
		Role:       role,
		Message:    message,
		Timestamp:  time.Now().UTC().Truncate(time.Second),
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO chat_entries (id, notebook_id, role, message, timestamp) VALUES (?, ?, ?, ?, ?)",
		entry.ID, entry.NotebookID, string(entry.Role), entry.Message, entry.Timestamp.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert chat entry: %w", err)
	}

	return entry, nil
}

// ListByNotebook returns up to limit of the most recent entries, oldest first.
// Entries written within the same second keep insertion order.
func (r *ChatRepo) ListByNotebook(ctx context.Context, notebookID string, limit int) ([]ChatEntry, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, notebook_id, role, message, timestamp FROM (
			SELECT rowid AS seq, id, notebook_id, role, message, timestamp
			FROM chat_entries
			WHERE notebook_id = ?
			ORDER BY timestamp DESC, rowid DESC
			LIMIT ?
		) ORDER BY timestamp ASC, seq ASC`,
		notebookID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat entries: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []ChatEntry
	for rows.Next() {
		var e ChatEntry
		var role string
		var ts int64
		if err := rows.Scan(&e.ID, &e.NotebookID, &role, &e.Message, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan chat entry: %w", err)
		}
		e.Role = Role(role)
		e.Timestamp = fromUnix(ts)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat entries: %w", err)
	}

	return entries, nil
}

// DeleteByNotebook removes every entry of a notebook.
func (r *ChatRepo) DeleteByNotebook(ctx context.Context, notebookID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM chat_entries WHERE notebook_id = ?", notebookID); err != nil {
		return fmt.Errorf("failed to delete chat entries: %w", err)
	}
	return nil
}

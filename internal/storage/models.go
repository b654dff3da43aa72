package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a notebook, attachment, or chat entry does not exist.
var ErrNotFound = errors.New("record not found")

// ErrStatusConflict is returned when an attachment is not in the status a
// transition expects.
var ErrStatusConflict = errors.New("attachment status changed")

// AttachmentStatus is the ingestion lifecycle state of an attachment.
type AttachmentStatus string

const (
	StatusPending AttachmentStatus = "pending"
	StatusReady   AttachmentStatus = "ready"
	StatusError   AttachmentStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s AttachmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusReady, StatusError:
		return true
	}
	return false
}

// Role identifies the author of a chat entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Notebook groups attachments and chat history. It is the unit of search isolation.
type Notebook struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Attachment is a file referenced by absolute path and its ingestion status.
type Attachment struct {
	ID         string           `json:"id"`
	NotebookID string           `json:"notebook_id"`
	FileName   string           `json:"file_name"`
	FilePath   string           `json:"file_path"`
	FileSize   int64            `json:"file_size"`
	FileType   string           `json:"file_type"` // lower-cased extension without the dot
	Status     AttachmentStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
}

// ChatEntry is one message of a notebook conversation. Entries are append-only.
type ChatEntry struct {
	ID         string    `json:"id"`
	NotebookID string    `json:"notebook_id"`
	Role       Role      `json:"role"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

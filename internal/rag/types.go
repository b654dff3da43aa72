package rag

import "notebook-rag/internal/storage"

// AskRequest represents a question sent to a notebook.
type AskRequest struct {
	// NotebookID is the notebook whose attachments are searched.
	NotebookID string `json:"notebook_id"`
	// Question is the user's message.
	Question string `json:"question"`
	// Debug enables debug mode, returning detailed retrieval information.
	Debug bool `json:"debug,omitempty"`
}

// Source is an attachment chunk that was given to the language model.
type Source struct {
	AttachmentID string  `json:"attachment_id"`
	Path         string  `json:"path"`
	Distance     float32 `json:"distance"`
}

// AskResponse represents the answer to a question.
type AskResponse struct {
	// Entry is the persisted assistant entry.
	Entry storage.ChatEntry `json:"entry"`
	// Sources are the chunks used to generate the answer, nearest first.
	Sources []Source `json:"sources"`
	// Debug contains debug information when debug mode is enabled.
	Debug *DebugInfo `json:"debug,omitempty"`
}

// DebugInfo contains detailed retrieval information for debugging and evaluation.
type DebugInfo struct {
	// RetrievedChunks contains all retrieved chunks with scores and ranks.
	RetrievedChunks []RetrievedChunk `json:"retrieved_chunks"`
	// Prompt is the user prompt sent to the language model.
	Prompt string `json:"prompt,omitempty"`
}

// RetrievedChunk represents a retrieved chunk with scoring information.
type RetrievedChunk struct {
	AttachmentID string `json:"attachment_id"`
	Path         string `json:"path"`
	// Distance is the cosine distance to the question.
	Distance float32 `json:"distance"`
	// ScoreLexical is the keyword overlap with the question.
	ScoreLexical float32 `json:"score_lexical"`
	// Text is the chunk text.
	Text string `json:"text"`
	// Rank is the rank of this chunk in the retrieval results (1-based).
	Rank int `json:"rank"`
}

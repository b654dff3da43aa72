package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notebook-rag/internal/apperrors"
	"notebook-rag/internal/contextutil"
	"notebook-rag/internal/llm"
	"notebook-rag/internal/storage"
	"notebook-rag/internal/vectorstore"
)

// DefaultK is the number of chunks retrieved per question.
const DefaultK = 5

// QueryEmbedder embeds a single question.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Config tunes an Engine.
type Config struct {
	// K is the number of chunks retrieved (default 5).
	K int
	// HistoryTurns is the number of prior chat entries sent to the model.
	HistoryTurns int
	// Timeout bounds the language model call. 0 means no timeout.
	Timeout time.Duration
	// Temperature is passed to the model. 0 uses the server default.
	Temperature float32
}

// Engine answers questions about a notebook from its attachments.
type Engine struct {
	embedder QueryEmbedder
	index    vectorstore.Index
	chats    storage.ChatStore
	model    llm.ChatModel
	cfg      Config
}

// NewEngine creates a new RAG engine.
func NewEngine(
	embedder QueryEmbedder,
	index vectorstore.Index,
	chats storage.ChatStore,
	model llm.ChatModel,
	cfg Config,
) *Engine {
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	return &Engine{
		embedder: embedder,
		index:    index,
		chats:    chats,
		model:    model,
		cfg:      cfg,
	}
}

// Send answers a message in a notebook's chat and returns the persisted
// assistant entry.
func (e *Engine) Send(ctx context.Context, notebookID, message string) (storage.ChatEntry, error) {
	resp, err := e.Ask(ctx, AskRequest{NotebookID: notebookID, Question: message})
	if err != nil {
		return storage.ChatEntry{}, err
	}
	return resp.Entry, nil
}

// Ask embeds the question, retrieves the nearest chunks of the notebook,
// records the user entry, and asks the language model for a grounded answer.
// With no chunks the fixed refusal is recorded without calling the model.
// If the model call fails the user entry stays recorded and no assistant
// entry is written.
func (e *Engine) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	logger := contextutil.LoggerFromContext(ctx).With("notebook_id", req.NotebookID)

	logger.InfoContext(ctx, "RAG query started", "question_length", len(req.Question), "k", e.cfg.K)

	queryVector, err := e.embedder.EmbedOne(ctx, req.Question)
	if err != nil {
		logger.ErrorContext(ctx, "failed to embed question", "error", err)
		return AskResponse{}, ensureCode(err, apperrors.EmbeddingFailure, "failed to embed question")
	}

	results, err := e.index.Search(ctx, req.NotebookID, queryVector, e.cfg.K)
	if err != nil {
		logger.ErrorContext(ctx, "failed to search vector index", "error", err)
		return AskResponse{}, ensureCode(err, apperrors.IndexSearchFailure, "failed to search vector index")
	}
	logger.InfoContext(ctx, "vector search completed", "results_count", len(results))

	history, err := e.history(ctx, req.NotebookID)
	if err != nil {
		return AskResponse{}, err
	}

	if _, err := e.chats.Append(ctx, req.NotebookID, storage.RoleUser, req.Question); err != nil {
		logger.ErrorContext(ctx, "failed to save user message", "error", err)
		return AskResponse{}, apperrors.LedgerFailure("failed to save user message", err)
	}

	resp := AskResponse{Sources: make([]Source, 0, len(results))}
	for _, r := range results {
		resp.Sources = append(resp.Sources, Source{AttachmentID: r.AttachmentID, Path: r.Path, Distance: r.Distance})
	}

	var answer string
	if len(results) == 0 {
		logger.InfoContext(ctx, "no search results found")
		answer = RefusalMessage
	} else {
		prompt := buildPrompt(req.Question, results)
		if req.Debug {
			resp.Debug = buildDebugInfo(req.Question, results, prompt)
		}

		answer, err = e.complete(ctx, history, prompt)
		if err != nil {
			logger.ErrorContext(ctx, "failed to get LLM response", "error", err)
			return AskResponse{}, apperrors.LanguageModelFailure("failed to get LLM response", err)
		}
		logger.InfoContext(ctx, "received LLM response", "answer_length", len(answer))
	}

	entry, err := e.chats.Append(ctx, req.NotebookID, storage.RoleAssistant, answer)
	if err != nil {
		logger.ErrorContext(ctx, "failed to save assistant message", "error", err)
		return AskResponse{}, apperrors.LedgerFailure("failed to save assistant message", err)
	}
	resp.Entry = *entry

	logger.InfoContext(ctx, "RAG query completed", "chunks_used", len(results))
	return resp, nil
}

// history returns the prior conversation as model messages, oldest first.
func (e *Engine) history(ctx context.Context, notebookID string) ([]llm.Message, error) {
	if e.cfg.HistoryTurns <= 0 {
		return nil, nil
	}

	entries, err := e.chats.ListByNotebook(ctx, notebookID, e.cfg.HistoryTurns)
	if err != nil {
		return nil, apperrors.LedgerFailure("failed to load chat history", err)
	}

	messages := make([]llm.Message, 0, len(entries))
	for _, entry := range entries {
		switch entry.Role {
		case storage.RoleUser:
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: entry.Message})
		case storage.RoleAssistant:
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: entry.Message})
		}
	}
	return messages, nil
}

func (e *Engine) complete(ctx context.Context, history []llm.Message, prompt string) (string, error) {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	return e.model.ChatWithMessages(ctx, messages, llm.ChatParams{Temperature: e.cfg.Temperature})
}

func buildDebugInfo(question string, results []vectorstore.SearchResult, prompt string) *DebugInfo {
	chunks := make([]RetrievedChunk, len(results))
	for i, r := range results {
		chunks[i] = RetrievedChunk{
			AttachmentID: r.AttachmentID,
			Path:         r.Path,
			Distance:     r.Distance,
			ScoreLexical: lexicalScore(question, r.Text),
			Text:         r.Text,
			Rank:         i + 1,
		}
	}
	return &DebugInfo{RetrievedChunks: chunks, Prompt: prompt}
}

// ensureCode keeps an already coded error and wraps anything else.
func ensureCode(err error, wrap func(string, error) *apperrors.Error, message string) error {
	var coded *apperrors.Error
	if errors.As(err, &coded) {
		return fmt.Errorf("%s: %w", message, err)
	}
	return wrap(message, err)
}

package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gofrs/flock"

	"notebook-rag/internal/config"
	"notebook-rag/internal/embed"
	"notebook-rag/internal/handlers"
	"notebook-rag/internal/indexer"
	"notebook-rag/internal/llm"
	"notebook-rag/internal/rag"
	"notebook-rag/internal/service"
	"notebook-rag/internal/storage"
	"notebook-rag/internal/vectorstore"
)

// dataLockFile guards the data directory. Only one process may own the
// ledger at a time, whatever the vector backend.
const dataLockFile = ".notebookrag.lock"

// app wires every component from the configuration.
type app struct {
	cfg  *config.Config
	lock *flock.Flock
	db   *sql.DB

	notebookRepo   *storage.NotebookRepo
	attachmentRepo *storage.AttachmentRepo
	chatRepo       *storage.ChatRepo

	index        vectorstore.Index
	embedder     *embed.Engine
	model        llm.ChatModel
	events       *indexer.Broadcaster
	orchestrator *indexer.Orchestrator
	reconciler   *service.Reconciler

	notebooks   service.NotebookService
	attachments service.AttachmentService
	chat        service.ChatService

	healthChecks map[string]handlers.HealthCheck
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ready := false
	defer func() {
		if !ready {
			a.close()
		}
	}()

	if err := a.lockDataDir(); err != nil {
		return nil, err
	}

	var err error
	a.db, err = storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := storage.Migrate(a.db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	a.notebookRepo = storage.NewNotebookRepo(a.db)
	a.attachmentRepo = storage.NewAttachmentRepo(a.db)
	a.chatRepo = storage.NewChatRepo(a.db)

	a.embedder, err = embed.NewEngine(ctx, newEmbeddingModel(cfg), embed.EngineConfig{
		Dimensions: cfg.EmbeddingDim,
		CacheDir:   cfg.EmbeddingCacheDir,
		Timeout:    cfg.EmbedTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
	}

	if err := a.openIndex(ctx); err != nil {
		return nil, err
	}

	switch cfg.LLMProvider {
	case config.LLMOllama:
		a.model = llm.NewOllamaClient(cfg.LLMBaseURL, cfg.LLMModelName)
	default:
		a.model = llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)
	}
	slog.Debug("LLM configuration", "provider", cfg.LLMProvider, "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)

	a.events = indexer.NewBroadcaster()
	a.orchestrator = indexer.NewOrchestrator(
		a.attachmentRepo,
		a.index,
		a.embedder,
		indexer.NewExtractor(cfg.ExtractTimeout),
		indexer.MultiNotifier{indexer.LogNotifier{}, a.events},
	)
	a.reconciler = service.NewReconciler(a.attachmentRepo, a.index)

	engine := rag.NewEngine(a.embedder, a.index, a.chatRepo, a.model, rag.Config{
		K:            cfg.SearchK,
		HistoryTurns: cfg.ChatHistoryTurns,
		Timeout:      cfg.LLMTimeout,
	})
	a.attachments = service.NewAttachmentService(a.notebookRepo, a.attachmentRepo, a.index, a.orchestrator)
	a.notebooks = service.NewNotebookService(a.notebookRepo, a.attachments, a.attachmentRepo, a.chatRepo)
	a.chat = service.NewChatService(engine, a.notebookRepo, a.chatRepo)

	a.healthChecks["ledger"] = a.db.PingContext
	ready = true
	return a, nil
}

func newEmbeddingModel(cfg *config.Config) embed.Model {
	if cfg.EmbeddingProvider == config.EmbeddingOpenAI {
		return embed.NewHTTPModel(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingDim)
	}
	return embed.NewStaticModel(cfg.EmbeddingDim)
}

func (a *app) openIndex(ctx context.Context) error {
	cfg := a.cfg
	dim := a.embedder.Dimensions()

	if cfg.VectorBackend == config.BackendQdrant {
		store, err := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantCollection, dim)
		if err != nil {
			return fmt.Errorf("failed to create Qdrant client: %w", err)
		}
		a.index = store
		if err := store.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("failed to ensure Qdrant collection: %w", err)
		}
		slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", dim)

		a.healthChecks = map[string]handlers.HealthCheck{
			"vector_index": func(ctx context.Context) error {
				exists, err := store.CollectionExists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("collection %s does not exist", cfg.QdrantCollection)
				}
				return nil
			},
		}
		return nil
	}

	store, err := vectorstore.OpenHNSWStore(vectorstore.HNSWConfig{Dir: cfg.VectorIndexDir, Dimensions: dim})
	if err != nil {
		return fmt.Errorf("failed to open vector index: %w", err)
	}
	a.index = store
	slog.Info("Vector index opened", "dir", cfg.VectorIndexDir, "records", store.Count(), "vector_size", dim)

	a.healthChecks = map[string]handlers.HealthCheck{
		"vector_index": func(ctx context.Context) error {
			_, err := store.AttachmentIDs(ctx)
			return err
		},
	}
	return nil
}

// lockDataDir takes the data directory lock without waiting, so a second
// serve, ingest or reconcile against the same ledger fails fast.
func (a *app) lockDataDir() error {
	dir := filepath.Dir(a.cfg.DBPath)
	lock := flock.New(filepath.Join(dir, dataLockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock data directory: %w", err)
	}
	if !locked {
		return fmt.Errorf("data directory %s is in use by another notebookrag process", dir)
	}
	a.lock = lock
	return nil
}

// close releases every component that was opened.
func (a *app) close() {
	if a.events != nil {
		a.events.Close()
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			slog.Warn("failed to close vector index", "error", err)
		}
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			slog.Warn("failed to release data directory lock", "error", err)
		}
	}
}

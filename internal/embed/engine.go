package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"notebook-rag/internal/apperrors"
)

// DefaultCacheSize is the number of query embeddings kept in memory.
const DefaultCacheSize = 1000

const manifestFile = "model.json"

// probeText is embedded once at startup to load the model and learn its dimension.
const probeText = "dimension probe"

// ErrEngineClosed is returned by calls made after Close.
var ErrEngineClosed = errors.New("embedding engine is closed")

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Dimensions is the required vector size. 0 accepts the model's size.
	Dimensions int
	// CacheDir holds the model manifest. Empty disables it.
	CacheDir string
	// BatchSize is the number of texts per model call (default 32).
	BatchSize int
	// Timeout bounds each model call. 0 means no timeout.
	Timeout time.Duration
	// CacheSize is the number of query embeddings memoized (default 1000).
	CacheSize int
}

// manifest records which model initialized a cache directory.
type manifest struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

type request struct {
	ctx   context.Context
	texts []string
	reply chan response
}

type response struct {
	vectors [][]float32
	err     error
}

// Engine owns one Model and serves embedding requests one at a time from a
// single goroutine. The request channel is unbuffered, so at most one call is
// in flight and later callers wait their turn.
type Engine struct {
	model     Model
	dim       int
	batchSize int
	timeout   time.Duration
	cache     *lru.Cache[string, []float32]

	requests chan request
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

// NewEngine loads the model by embedding a probe text, fixes the vector
// dimension, and starts the engine goroutine. A failed probe, or a dimension
// differing from cfg.Dimensions or from the cache directory's manifest, is an error.
func NewEngine(ctx context.Context, model Model, cfg EngineConfig) (*Engine, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}

	var lock *FileLock
	if cfg.CacheDir != "" {
		lock = NewFileLock(cfg.CacheDir)
		if err := lock.Lock(); err != nil {
			return nil, fmt.Errorf("failed to lock model cache: %w", err)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				slog.Warn("failed to release model cache lock", "error", err)
			}
		}()
	}

	start := time.Now()
	probeCtx, cancel := withTimeout(ctx, cfg.Timeout)
	vectors, err := model.EmbedBatch(probeCtx, []string{probeText})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding model %s: %w", model.Name(), err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embedding model %s returned no vector for probe", model.Name())
	}

	dim := len(vectors[0])
	if cfg.Dimensions > 0 && dim != cfg.Dimensions {
		return nil, fmt.Errorf("embedding model %s produces %d dimensions, configured %d", model.Name(), dim, cfg.Dimensions)
	}

	if cfg.CacheDir != "" {
		if err := checkManifest(cfg.CacheDir, manifest{Model: model.Name(), Dimensions: dim}); err != nil {
			return nil, err
		}
	}

	cache, err := lru.New[string, []float32](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	e := &Engine{
		model:     model,
		dim:       dim,
		batchSize: cfg.BatchSize,
		timeout:   cfg.Timeout,
		cache:     cache,
		requests:  make(chan request),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go e.run()

	slog.Info("embedding model loaded", "model", model.Name(), "dimensions", dim, "duration", time.Since(start))
	return e, nil
}

// checkManifest writes the manifest on first use and rejects a cache
// directory initialized by a model with a different dimension.
func checkManifest(dir string, want manifest) error {
	path := filepath.Join(dir, manifestFile)

	raw, err := os.ReadFile(path)
	if err == nil {
		var got manifest
		if err := json.Unmarshal(raw, &got); err != nil {
			return fmt.Errorf("failed to read model manifest: %w", err)
		}
		if got.Dimensions != want.Dimensions {
			return fmt.Errorf("model cache %s was initialized by %s with %d dimensions, model %s produces %d",
				dir, got.Model, got.Dimensions, want.Model, want.Dimensions)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read model manifest: %w", err)
	}

	raw, err = json.Marshal(want)
	if err != nil {
		return fmt.Errorf("failed to encode model manifest: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write model manifest: %w", err)
	}
	return nil
}

// Dimensions returns the fixed vector size.
func (e *Engine) Dimensions() int {
	return e.dim
}

// ModelName returns the model identifier.
func (e *Engine) ModelName() string {
	return e.model.Name()
}

// EmbedOne embeds a single query. Results are memoized by text and model.
func (e *Engine) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	key := e.cacheKey(text)
	if vec, ok := e.cache.Get(key); ok {
		return vec, nil
	}

	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	e.cache.Add(key, vectors[0])
	return vectors[0], nil
}

// EmbedMany embeds texts in batches, preserving order. If any batch fails no
// vectors are returned.
func (e *Engine) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := request{ctx: ctx, texts: texts, reply: make(chan response, 1)}

	select {
	case e.requests <- req:
	case <-e.done:
		return nil, apperrors.EmbeddingFailure("embed", ErrEngineClosed)
	case <-ctx.Done():
		return nil, apperrors.EmbeddingFailure("embed", ctx.Err())
	}

	select {
	case resp := <-req.reply:
		return resp.vectors, resp.err
	case <-ctx.Done():
		return nil, apperrors.EmbeddingFailure("embed", ctx.Err())
	}
}

// Close stops the engine goroutine. Calls after Close fail with ErrEngineClosed.
func (e *Engine) Close() error {
	e.once.Do(func() {
		close(e.done)
	})
	<-e.stopped
	return nil
}

func (e *Engine) run() {
	defer close(e.stopped)
	for {
		select {
		case req := <-e.requests:
			vectors, err := e.embed(req.ctx, req.texts)
			req.reply <- response{vectors: vectors, err: err}
		case <-e.done:
			return
		}
	}
}

// embed runs on the engine goroutine only.
func (e *Engine) embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]

		vectors, err := e.callModel(ctx, batch)
		if err != nil {
			return nil, apperrors.EmbeddingFailure(fmt.Sprintf("batch %d-%d", start, end), err)
		}
		if len(vectors) != len(batch) {
			return nil, apperrors.EmbeddingFailure(fmt.Sprintf("batch %d-%d", start, end),
				fmt.Errorf("expected %d vectors, got %d", len(batch), len(vectors)))
		}
		for i, vec := range vectors {
			if len(vec) != e.dim {
				return nil, apperrors.EmbeddingFailure(fmt.Sprintf("text %d", start+i),
					fmt.Errorf("vector has %d dimensions, expected %d", len(vec), e.dim))
			}
		}
		out = append(out, vectors...)
	}

	return out, nil
}

// callModel calls the model under the per-call timeout and recovers a panicking provider.
func (e *Engine) callModel(ctx context.Context, batch []string) (vectors [][]float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			vectors, err = nil, fmt.Errorf("embedding model panicked: %v", r)
		}
	}()

	callCtx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()
	return e.model.EmbedBatch(callCtx, batch)
}

// cacheKey generates a unique key for the cache based on text and model.
func (e *Engine) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(text + "\x00" + e.model.Name()))
	return hex.EncodeToString(hash[:])
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

package embed

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notebook-rag/internal/apperrors"
)

// fakeModel records calls and returns vectors whose first component is the
// text's position in the batch stream.
type fakeModel struct {
	mu       sync.Mutex
	dims     int
	calls    [][]string
	failCall int // 1-based call number that fails, 0 never
	badDims  int // call number returning wrong-sized vectors
	delay    time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (m *fakeModel) Name() string    { return "fake" }
func (m *fakeModel) Dimensions() int { return m.dims }

func (m *fakeModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		cur := m.maxInflight.Load()
		if n <= cur || m.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, texts)
	call := len(m.calls)
	m.mu.Unlock()

	if call == m.failCall {
		return nil, errors.New("model exploded")
	}

	dims := m.dims
	if call == m.badDims {
		dims = m.dims + 1
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, dims)
		_, _ = fmt.Sscanf(text, "t%f", &vec[0])
		out[i] = vec
	}
	return out, nil
}

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newTestEngine(t *testing.T, model Model, cfg EngineConfig) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), model, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("t%d", i)
	}
	return out
}

func TestNewEngine_ProbesDimensions(t *testing.T) {
	model := &fakeModel{dims: 4}
	e := newTestEngine(t, model, EngineConfig{})

	assert.Equal(t, 4, e.Dimensions())
	assert.Equal(t, "fake", e.ModelName())
	assert.Equal(t, 1, model.callCount())
}

func TestNewEngine_Failures(t *testing.T) {
	tests := []struct {
		name  string
		model Model
		cfg   EngineConfig
	}{
		{name: "probe fails", model: &fakeModel{dims: 4, failCall: 1}},
		{name: "dimension differs from config", model: &fakeModel{dims: 4}, cfg: EngineConfig{Dimensions: 384}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(context.Background(), tt.model, tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewEngine_CacheManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")

	e, err := NewEngine(context.Background(), NewStaticModel(8), EngineConfig{CacheDir: dir})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	assert.FileExists(t, filepath.Join(dir, manifestFile))

	// Same dimension reuses the cache.
	e, err = NewEngine(context.Background(), NewStaticModel(8), EngineConfig{CacheDir: dir})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = NewEngine(context.Background(), NewStaticModel(16), EngineConfig{CacheDir: dir})
	assert.Error(t, err)

	// The lock is released after loading.
	held := flock.New(filepath.Join(dir, modelLockFile))
	ok, err := held.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, held.Unlock())
}

func TestEngine_EmbedManyBatchesAndPreservesOrder(t *testing.T) {
	model := &fakeModel{dims: 3}
	e := newTestEngine(t, model, EngineConfig{})

	input := texts(70)
	vectors, err := e.EmbedMany(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, vectors, 70)

	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0], "vector %d out of order", i)
	}

	model.mu.Lock()
	defer model.mu.Unlock()
	// The first call is the probe.
	require.Len(t, model.calls, 4)
	assert.Len(t, model.calls[1], 32)
	assert.Len(t, model.calls[2], 32)
	assert.Len(t, model.calls[3], 6)
}

func TestEngine_EmbedManyAllOrNothing(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
	}{
		{name: "second batch fails", model: &fakeModel{dims: 3, failCall: 3}},
		{name: "second batch wrong size", model: &fakeModel{dims: 3, badDims: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, tt.model, EngineConfig{})

			vectors, err := e.EmbedMany(context.Background(), texts(40))
			assert.Nil(t, vectors)
			assert.ErrorIs(t, err, apperrors.ErrEmbedding)
		})
	}
}

func TestEngine_EmbedManyEmpty(t *testing.T) {
	model := &fakeModel{dims: 3}
	e := newTestEngine(t, model, EngineConfig{})

	vectors, err := e.EmbedMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Equal(t, 1, model.callCount())
}

func TestEngine_SerializesCalls(t *testing.T) {
	model := &fakeModel{dims: 3, delay: 5 * time.Millisecond}
	e := newTestEngine(t, model, EngineConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.EmbedOne(context.Background(), fmt.Sprintf("t%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), model.maxInflight.Load())
}

func TestEngine_EmbedOneCachesQueries(t *testing.T) {
	model := &fakeModel{dims: 3}
	e := newTestEngine(t, model, EngineConfig{})
	ctx := context.Background()

	first, err := e.EmbedOne(ctx, "t7")
	require.NoError(t, err)
	second, err := e.EmbedOne(ctx, "t7")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, model.callCount())
}

func TestEngine_Timeout(t *testing.T) {
	model := &fakeModel{dims: 3}
	e := newTestEngine(t, model, EngineConfig{Timeout: 10 * time.Millisecond})
	model.delay = time.Second

	_, err := e.EmbedMany(context.Background(), []string{"t1"})
	assert.ErrorIs(t, err, apperrors.ErrEmbedding)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngine_Closed(t *testing.T) {
	e, err := NewEngine(context.Background(), &fakeModel{dims: 3}, EngineConfig{})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.EmbedMany(context.Background(), []string{"t1"})
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestFileLock(t *testing.T) {
	dir := t.TempDir()
	lock := NewFileLock(dir)
	require.NoError(t, lock.Lock())

	other := flock.New(filepath.Join(dir, modelLockFile))
	ok, err := other.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Unlock())
	require.NoError(t, lock.Unlock())

	ok, err = other.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, other.Unlock())
}

package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"notebook-rag/internal/apperrors"
	"notebook-rag/internal/embed"
	"notebook-rag/internal/storage"
	storagemocks "notebook-rag/internal/storage/mocks"
	"notebook-rag/internal/vectorstore"
	vectormocks "notebook-rag/internal/vectorstore/mocks"
)

const testDims = 16

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) kinds() []EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]EventKind, len(n.events))
	for i, e := range n.events {
		out[i] = e.Kind
	}
	return out
}

func (n *recordingNotifier) last() Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedMany(context.Context, []string) ([][]float32, error) {
	return nil, apperrors.EmbeddingFailure("batch 0-1", errors.New("model offline"))
}

type panickingExtractor struct{}

func (panickingExtractor) Extract(context.Context, string) (string, error) {
	panic("corrupt file")
}

// blockingExtractor holds every extraction until release is closed.
type blockingExtractor struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingExtractor() *blockingExtractor {
	return &blockingExtractor{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (b *blockingExtractor) Extract(ctx context.Context, _ string) (string, error) {
	b.started <- struct{}{}
	<-b.release
	return "held text", nil
}

type fixedExtractor string

func (f fixedExtractor) Extract(context.Context, string) (string, error) {
	return string(f), nil
}

// testEnv wires an orchestrator to a real ledger and index.
type testEnv struct {
	ledger      *storage.AttachmentRepo
	notebooks   *storage.NotebookRepo
	index       *vectorstore.HNSWStore
	engine      *embed.Engine
	notifier    *recordingNotifier
	dir         string
	orchestrate *Orchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := storage.New(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Migrate(db))

	index, err := vectorstore.OpenHNSWStore(vectorstore.HNSWConfig{Dir: filepath.Join(dir, "index"), Dimensions: testDims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	engine, err := embed.NewEngine(context.Background(), embed.NewStaticModel(testDims), embed.EngineConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	env := &testEnv{
		ledger:    storage.NewAttachmentRepo(db),
		notebooks: storage.NewNotebookRepo(db),
		index:     index,
		engine:    engine,
		notifier:  &recordingNotifier{},
		dir:       dir,
	}
	env.orchestrate = NewOrchestrator(env.ledger, index, engine, NewExtractor(5*time.Second), env.notifier)
	return env
}

func (e *testEnv) notebook(t *testing.T) string {
	t.Helper()
	nb, err := e.notebooks.Create(context.Background(), "Biology")
	require.NoError(t, err)
	return nb.ID
}

func (e *testEnv) attach(t *testing.T, notebookID, name, content string) storage.Attachment {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return e.attachPath(t, notebookID, path)
}

func (e *testEnv) attachPath(t *testing.T, notebookID, path string) storage.Attachment {
	t.Helper()
	att := &storage.Attachment{
		NotebookID: notebookID,
		FileName:   filepath.Base(path),
		FilePath:   path,
		FileType:   FileType(path),
	}
	require.NoError(t, e.ledger.Create(context.Background(), att))
	return *att
}

func (e *testEnv) status(t *testing.T, id string) storage.AttachmentStatus {
	t.Helper()
	att, err := e.ledger.GetByID(context.Background(), id)
	require.NoError(t, err)
	return att.Status
}

func waitJob(t *testing.T, job *Job) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	select {
	case <-job.Done():
	case <-ctx.Done():
		t.Fatal("job did not finish")
	}
	return job.Err()
}

func TestOrchestrator_IngestsTextFile(t *testing.T) {
	env := newTestEnv(t)
	nb := env.notebook(t)
	att := env.attach(t, nb, "bio.txt", "Mitochondria are the powerhouse of the cell.\n\nRibosomes build proteins.")

	job := env.orchestrate.Submit(context.Background(), att)
	assert.Equal(t, att.ID, job.ID())
	require.NoError(t, waitJob(t, job))

	assert.Equal(t, JobSucceeded, job.State())
	assert.Equal(t, storage.StatusReady, env.status(t, att.ID))
	assert.Equal(t, 2, env.index.Count())

	query, err := env.engine.EmbedOne(context.Background(), "Mitochondria are the powerhouse of the cell.")
	require.NoError(t, err)
	results, err := env.index.Search(context.Background(), nb, query, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Mitochondria are the powerhouse of the cell.", results[0].Text)
	assert.Equal(t, att.FilePath, results[0].Path)

	assert.Equal(t, []EventKind{EventStarted, EventSucceeded}, env.notifier.kinds())

	stats := env.orchestrate.Stats()
	assert.Equal(t, 1, stats.JobsSubmitted)
	assert.Equal(t, 1, stats.JobsSucceeded)
	assert.Equal(t, 0, stats.JobsRunning)
	assert.Equal(t, 2, stats.ChunksEmbedded)
}

func TestOrchestrator_BlankPDFMarksError(t *testing.T) {
	env := newTestEnv(t)
	nb := env.notebook(t)
	path := filepath.Join(env.dir, "scan.pdf")
	writeBlankPDF(t, path)
	att := env.attachPath(t, nb, path)

	err := waitJob(t, env.orchestrate.Submit(context.Background(), att))
	assert.ErrorIs(t, err, apperrors.ErrExtraction)

	assert.Equal(t, storage.StatusError, env.status(t, att.ID))
	assert.Equal(t, 0, env.index.Count())

	last := env.notifier.last()
	assert.Equal(t, EventFailed, last.Kind)
	assert.Equal(t, FailureMessage, last.Message)
	assert.Equal(t, 1, env.orchestrate.Stats().DocsWith0Chunks)
}

func TestOrchestrator_FailuresMarkError(t *testing.T) {
	tests := []struct {
		name      string
		embedder  func(env *testEnv) Embedder
		extractor TextExtractor
		wantCode  apperrors.Code
	}{
		{
			name:      "embedding fails",
			embedder:  func(*testEnv) Embedder { return failingEmbedder{} },
			extractor: fixedExtractor("some text"),
			wantCode:  apperrors.CodeEmbedding,
		},
		{
			name:      "extractor panics",
			embedder:  func(env *testEnv) Embedder { return env.engine },
			extractor: panickingExtractor{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			nb := env.notebook(t)
			att := env.attach(t, nb, "doc.txt", "ignored")

			o := NewOrchestrator(env.ledger, env.index, tt.embedder(env), tt.extractor, env.notifier)
			job := o.Submit(context.Background(), att)
			err := waitJob(t, job)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))

			assert.Equal(t, JobFailed, job.State())
			assert.Equal(t, storage.StatusError, env.status(t, att.ID))
			assert.Equal(t, 0, env.index.Count())
			assert.Equal(t, EventFailed, env.notifier.last().Kind)
		})
	}
}

func TestOrchestrator_IndexWriteFailureRemovesVectors(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := storagemocks.NewMockAttachmentStore(ctrl)
	index := vectormocks.NewMockIndex(ctrl)
	env := newTestEnv(t)

	att := storage.Attachment{ID: "att-1", NotebookID: "nb-1", FilePath: "/docs/a.txt"}

	gomock.InOrder(
		index.EXPECT().Add(gomock.Any(), gomock.Len(1)).Return(apperrors.IndexWriteFailure("upsert", errors.New("disk full"))),
		index.EXPECT().DeleteByAttachment(gomock.Any(), "att-1").Return(nil),
		ledger.EXPECT().TransitionStatus(gomock.Any(), "att-1", storage.StatusPending, storage.StatusError).Return(nil),
	)

	o := NewOrchestrator(ledger, index, env.engine, fixedExtractor("one paragraph"), nil)
	err := waitJob(t, o.Submit(context.Background(), att))
	assert.ErrorIs(t, err, apperrors.ErrIndexWrite)
}

func TestOrchestrator_RowDeletedMidJobRemovesVectors(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := storagemocks.NewMockAttachmentStore(ctrl)
	index := vectormocks.NewMockIndex(ctrl)
	env := newTestEnv(t)

	att := storage.Attachment{ID: "att-1", NotebookID: "nb-1", FilePath: "/docs/a.txt"}

	gomock.InOrder(
		index.EXPECT().Add(gomock.Any(), gomock.Len(2)).Return(nil),
		ledger.EXPECT().TransitionStatus(gomock.Any(), "att-1", storage.StatusPending, storage.StatusReady).Return(storage.ErrNotFound),
		index.EXPECT().DeleteByAttachment(gomock.Any(), "att-1").Return(nil),
		ledger.EXPECT().TransitionStatus(gomock.Any(), "att-1", storage.StatusPending, storage.StatusError).Return(storage.ErrNotFound),
	)

	o := NewOrchestrator(ledger, index, env.engine, fixedExtractor("first\n\nsecond"), nil)
	err := waitJob(t, o.Submit(context.Background(), att))
	assert.ErrorIs(t, err, apperrors.ErrLedger)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOrchestrator_ErrorStatusFailureStillFinishes(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := storagemocks.NewMockAttachmentStore(ctrl)
	index := vectormocks.NewMockIndex(ctrl)
	notifier := &recordingNotifier{}

	att := storage.Attachment{ID: "att-1", NotebookID: "nb-1", FilePath: "/docs/a.txt"}
	ledger.EXPECT().TransitionStatus(gomock.Any(), "att-1", storage.StatusPending, storage.StatusError).Return(errors.New("database is locked")).Times(1)

	o := NewOrchestrator(ledger, index, failingEmbedder{}, fixedExtractor("text"), notifier)
	err := waitJob(t, o.Submit(context.Background(), att))
	assert.ErrorIs(t, err, apperrors.ErrEmbedding)
	assert.Equal(t, []EventKind{EventStarted, EventFailed}, notifier.kinds())
}

func TestOrchestrator_NotebookIsolation(t *testing.T) {
	env := newTestEnv(t)
	nbA := env.notebook(t)
	nbB := env.notebook(t)
	text := "Photosynthesis converts light into chemical energy."

	attA := env.attach(t, nbA, "a.md", text)
	attB := env.attach(t, nbB, "b.md", text)
	env.orchestrate.Submit(context.Background(), attA)
	env.orchestrate.Submit(context.Background(), attB)
	require.NoError(t, env.orchestrate.Wait(context.Background()))

	query, err := env.engine.EmbedOne(context.Background(), text)
	require.NoError(t, err)
	results, err := env.index.Search(context.Background(), nbA, query, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, attA.ID, results[0].AttachmentID)
}

func TestOrchestrator_SubmitOutlivesCallerContext(t *testing.T) {
	env := newTestEnv(t)
	nb := env.notebook(t)
	att := env.attach(t, nb, "notes.txt", "Cells divide by mitosis.")

	ctx, cancel := context.WithCancel(context.Background())
	job := env.orchestrate.Submit(ctx, att)
	cancel()

	require.NoError(t, waitJob(t, job))
	assert.Equal(t, storage.StatusReady, env.status(t, att.ID))
}

func TestOrchestrator_WaitHonorsContext(t *testing.T) {
	o := NewOrchestrator(nil, nil, nil, nil, nil)
	o.wg.Add(1)
	defer o.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, o.Wait(ctx), context.DeadlineExceeded)
}

func TestOrchestrator_ReadyConflictRemovesVectors(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := storagemocks.NewMockAttachmentStore(ctrl)
	index := vectormocks.NewMockIndex(ctrl)
	env := newTestEnv(t)

	att := storage.Attachment{ID: "att-1", NotebookID: "nb-1", FilePath: "/docs/a.txt"}
	conflict := fmt.Errorf("%w: attachment att-1 is error, not pending", storage.ErrStatusConflict)

	gomock.InOrder(
		index.EXPECT().Add(gomock.Any(), gomock.Len(1)).Return(nil),
		ledger.EXPECT().TransitionStatus(gomock.Any(), "att-1", storage.StatusPending, storage.StatusReady).Return(conflict),
		index.EXPECT().DeleteByAttachment(gomock.Any(), "att-1").Return(nil),
		ledger.EXPECT().TransitionStatus(gomock.Any(), "att-1", storage.StatusPending, storage.StatusError).Return(conflict),
	)

	o := NewOrchestrator(ledger, index, env.engine, fixedExtractor("one paragraph"), nil)
	job := o.Submit(context.Background(), att)
	err := waitJob(t, job)
	assert.ErrorIs(t, err, storage.ErrStatusConflict)
	assert.Equal(t, JobFailed, job.State())
}

func TestOrchestrator_RowMarkedErrorMidJobKeepsNoVectors(t *testing.T) {
	env := newTestEnv(t)
	nb := env.notebook(t)
	att := env.attach(t, nb, "held.txt", "unused")

	extractor := newBlockingExtractor()
	o := NewOrchestrator(env.ledger, env.index, env.engine, extractor, env.notifier)
	job := o.Submit(context.Background(), att)
	<-extractor.started

	// Another process gives up on the row while the job is still running.
	require.NoError(t, env.ledger.TransitionStatus(context.Background(), att.ID, storage.StatusPending, storage.StatusError))
	close(extractor.release)

	require.Error(t, waitJob(t, job))
	assert.Equal(t, storage.StatusError, env.status(t, att.ID))
	assert.Equal(t, 0, env.index.Count())
}

func TestOrchestrator_AddPanicRemovesVectors(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := storagemocks.NewMockAttachmentStore(ctrl)
	index := vectormocks.NewMockIndex(ctrl)
	env := newTestEnv(t)

	att := storage.Attachment{ID: "att-1", NotebookID: "nb-1", FilePath: "/docs/a.txt"}

	gomock.InOrder(
		index.EXPECT().Add(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, []vectorstore.Record) error {
			panic("snapshot encoder crashed")
		}),
		index.EXPECT().DeleteByAttachment(gomock.Any(), "att-1").Return(nil),
		ledger.EXPECT().TransitionStatus(gomock.Any(), "att-1", storage.StatusPending, storage.StatusError).Return(nil),
	)

	o := NewOrchestrator(ledger, index, env.engine, fixedExtractor("first\n\nsecond"), nil)
	job := o.Submit(context.Background(), att)
	err := waitJob(t, job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot encoder crashed")
	assert.Equal(t, JobFailed, job.State())
}

func TestOrchestrator_FinishedJobsAreForgotten(t *testing.T) {
	env := newTestEnv(t)
	nb := env.notebook(t)
	att := env.attach(t, nb, "held.txt", "unused")

	extractor := newBlockingExtractor()
	o := NewOrchestrator(env.ledger, env.index, env.engine, extractor, env.notifier)

	first := o.Submit(context.Background(), att)
	<-extractor.started
	assert.Same(t, first, o.Submit(context.Background(), att), "a running attachment is not ingested twice")

	close(extractor.release)
	require.NoError(t, waitJob(t, first))

	o.mu.Lock()
	assert.Empty(t, o.jobs)
	o.mu.Unlock()
	assert.Equal(t, 1, o.Stats().JobsSubmitted)
}

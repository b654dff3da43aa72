package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"notebook-rag/internal/apperrors"
	"notebook-rag/internal/contextutil"
	"notebook-rag/internal/storage"
	"notebook-rag/internal/vectorstore"
)

// TextExtractor turns a stored file into raw text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Embedder turns chunk texts into vectors, all or nothing.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

var errIngestPanic = errors.New("ingestion panicked")

// JobState is the lifecycle state of an ingestion job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Job is a handle on one background ingestion.
type Job struct {
	id   string
	done chan struct{}

	mu    sync.Mutex
	state JobState
	err   error
}

// ID returns the attachment ID the job ingests.
func (j *Job) ID() string {
	return j.id
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// State returns the current job state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the internal failure of a finished job, or nil.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Wait blocks until the job finishes and returns its failure, or until ctx ends.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) finish(state JobState, err error) {
	j.mu.Lock()
	j.state = state
	j.err = err
	j.mu.Unlock()
	close(j.done)
}

// Orchestrator runs ingestion jobs: extract, chunk, embed, write vectors,
// then mark the attachment Ready. Any failure marks it Error. Jobs run
// detached from the caller and can be joined with Wait.
type Orchestrator struct {
	ledger    storage.AttachmentStore
	index     vectorstore.Index
	embedder  Embedder
	extractor TextExtractor
	notifier  Notifier
	stats     statsRecorder

	mu   sync.Mutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// NewOrchestrator creates an orchestrator. A nil notifier logs events.
func NewOrchestrator(
	ledger storage.AttachmentStore,
	index vectorstore.Index,
	embedder Embedder,
	extractor TextExtractor,
	notifier Notifier,
) *Orchestrator {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Orchestrator{
		ledger:    ledger,
		index:     index,
		embedder:  embedder,
		extractor: extractor,
		notifier:  notifier,
		jobs:      make(map[string]*Job),
	}
}

// Submit starts ingesting an attachment whose Pending row is already
// committed and returns immediately. The job keeps running after ctx is
// canceled; only values such as the logger are inherited from it.
// Submitting an attachment that already has a running job returns that job.
func (o *Orchestrator) Submit(ctx context.Context, att storage.Attachment) *Job {
	o.mu.Lock()
	if running, ok := o.jobs[att.ID]; ok {
		o.mu.Unlock()
		return running
	}
	job := &Job{
		id:    att.ID,
		done:  make(chan struct{}),
		state: JobRunning,
	}
	o.jobs[att.ID] = job
	o.mu.Unlock()

	o.stats.submitted()
	o.wg.Add(1)
	go o.run(context.WithoutCancel(ctx), job, att)

	return job
}

// Wait blocks until every submitted job has finished, or until ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns counters for the jobs run so far.
func (o *Orchestrator) Stats() IngestionStats {
	return o.stats.snapshot()
}

func (o *Orchestrator) run(ctx context.Context, job *Job, att storage.Attachment) {
	defer o.wg.Done()

	logger := contextutil.LoggerFromContext(ctx).With("attachment_id", att.ID, "notebook_id", att.NotebookID)
	ctx = contextutil.WithLogger(ctx, logger)

	o.notifier.Notify(ctx, Event{Kind: EventStarted, AttachmentID: att.ID, NotebookID: att.NotebookID})
	logger.InfoContext(ctx, "ingestion started", "file", att.FilePath)

	chunks, err := o.ingest(ctx, att)
	if err != nil {
		if errors.Is(err, errIngestPanic) {
			o.removeVectors(ctx, att.ID)
		}
		o.fail(ctx, job, att, err, len(chunks) == 0)
		return
	}

	// Only a Pending row may become Ready. A row moved to Error meanwhile,
	// for example by startup recovery in another process, or deleted, keeps
	// no vectors.
	if err := o.ledger.TransitionStatus(ctx, att.ID, storage.StatusPending, storage.StatusReady); err != nil {
		o.removeVectors(ctx, att.ID)
		o.fail(ctx, job, att, apperrors.LedgerFailure("failed to mark attachment ready", err), false)
		return
	}

	o.stats.succeeded(chunks)
	o.notifier.Notify(ctx, Event{Kind: EventSucceeded, AttachmentID: att.ID, NotebookID: att.NotebookID})
	logger.InfoContext(ctx, "ingestion succeeded", "chunks", len(chunks))
	o.finish(job, JobSucceeded, nil)
}

// finish forgets a job and then completes it, so a caller woken by Done
// never sees it as running.
func (o *Orchestrator) finish(job *Job, state JobState, err error) {
	o.mu.Lock()
	if o.jobs[job.id] == job {
		delete(o.jobs, job.id)
	}
	o.mu.Unlock()
	job.finish(state, err)
}

// ingest writes the attachment's vectors and returns its chunks.
func (o *Orchestrator) ingest(ctx context.Context, att storage.Attachment) (chunks []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errIngestPanic, r)
		}
	}()

	text, err := o.extractor.Extract(ctx, att.FilePath)
	if err != nil {
		return nil, err
	}

	chunks = Chunk(text)
	if len(chunks) == 0 {
		return nil, apperrors.ExtractionFailure("no extractable text", nil)
	}

	vectors, err := o.embedder.EmbedMany(ctx, chunks)
	if err != nil {
		return chunks, err
	}
	if len(vectors) != len(chunks) {
		return chunks, apperrors.EmbeddingFailure(
			fmt.Sprintf("expected %d vectors, got %d", len(chunks), len(vectors)), nil)
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vectorstore.Record{
			AttachmentID: att.ID,
			NotebookID:   att.NotebookID,
			Path:         att.FilePath,
			Text:         chunk,
			Vector:       vectors[i],
		}
	}

	if err := o.index.Add(ctx, records); err != nil {
		o.removeVectors(ctx, att.ID)
		return chunks, err
	}

	return chunks, nil
}

// fail marks the attachment Error and reports a generic failure. The status
// update is best effort: its failure is logged and the job still ends.
func (o *Orchestrator) fail(ctx context.Context, job *Job, att storage.Attachment, cause error, noChunks bool) {
	logger := contextutil.LoggerFromContext(ctx)
	logger.ErrorContext(ctx, "ingestion failed", "code", apperrors.CodeOf(cause), "error", cause)

	if err := o.ledger.TransitionStatus(ctx, att.ID, storage.StatusPending, storage.StatusError); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			logger.WarnContext(ctx, "attachment no longer exists, nothing to mark")
		case errors.Is(err, storage.ErrStatusConflict):
			logger.WarnContext(ctx, "attachment is no longer pending, leaving its status", "error", err)
		default:
			logger.ErrorContext(ctx, "failed to mark attachment as error", "error", err)
		}
	}

	o.stats.failed(noChunks)
	o.notifier.Notify(ctx, Event{
		Kind:         EventFailed,
		AttachmentID: att.ID,
		NotebookID:   att.NotebookID,
		Message:      FailureMessage,
	})
	o.finish(job, JobFailed, cause)
}

// removeVectors deletes an attachment's vectors, logging any failure.
func (o *Orchestrator) removeVectors(ctx context.Context, attachmentID string) {
	if err := o.index.DeleteByAttachment(ctx, attachmentID); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to remove vectors", "error", err)
	}
}

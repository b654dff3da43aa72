package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"notebook-rag/internal/contextutil"
	"notebook-rag/internal/storage"
	"notebook-rag/internal/vectorstore"
)

// Reconciler repairs drift between the attachment ledger and the vector index.
type Reconciler struct {
	ledger storage.AttachmentStore
	index  vectorstore.Index
}

// NewReconciler creates a new Reconciler.
func NewReconciler(ledger storage.AttachmentStore, index vectorstore.Index) *Reconciler {
	return &Reconciler{ledger: ledger, index: index}
}

// RecoverPending moves attachments left Pending by a previous process to
// Error and purges any vectors they wrote. Each row is claimed with a
// conditional Pending to Error transition before its vectors are touched, so
// a job still running elsewhere can no longer mark it Ready and removes its
// own vectors instead.
func (r *Reconciler) RecoverPending(ctx context.Context) (int, error) {
	logger := contextutil.LoggerFromContext(ctx)

	pending, err := r.ledger.ListByStatus(ctx, storage.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending attachments: %w", err)
	}

	recovered := 0
	for _, att := range pending {
		err := r.ledger.TransitionStatus(ctx, att.ID, storage.StatusPending, storage.StatusError)
		if errors.Is(err, storage.ErrStatusConflict) || errors.Is(err, storage.ErrNotFound) {
			logger.InfoContext(ctx, "pending attachment finished meanwhile", "attachment_id", att.ID)
			continue
		}
		if err != nil {
			logger.ErrorContext(ctx, "failed to mark abandoned attachment as error", "attachment_id", att.ID, "error", err)
			continue
		}
		recovered++

		if err := r.index.DeleteByAttachment(ctx, att.ID); err != nil {
			// The next sweep removes vectors of Error rows.
			logger.ErrorContext(ctx, "failed to purge vectors of abandoned attachment", "attachment_id", att.ID, "error", err)
		}
	}

	if recovered > 0 {
		logger.WarnContext(ctx, "recovered abandoned attachments", "count", recovered)
	}
	return recovered, nil
}

// SweepOrphans deletes vectors whose attachment no longer exists in the
// ledger or is marked Error.
func (r *Reconciler) SweepOrphans(ctx context.Context) (int, error) {
	logger := contextutil.LoggerFromContext(ctx)

	// The index is read before the ledger: a row is always committed before
	// its vectors are written, so an upload racing the sweep is never seen as an orphan.
	indexed, err := r.index.AttachmentIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list indexed attachments: %w", err)
	}
	if len(indexed) == 0 {
		return 0, nil
	}

	ids, err := r.ledger.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list attachments: %w", err)
	}
	failed, err := r.ledger.ListByStatus(ctx, storage.StatusError)
	if err != nil {
		return 0, fmt.Errorf("failed to list failed attachments: %w", err)
	}

	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	for _, att := range failed {
		delete(known, att.ID)
	}

	removed := 0
	for _, id := range indexed {
		if _, ok := known[id]; ok {
			continue
		}
		if err := r.index.DeleteByAttachment(ctx, id); err != nil {
			logger.ErrorContext(ctx, "failed to delete orphaned vectors", "attachment_id", id, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.InfoContext(ctx, "removed orphaned vectors", "attachments", removed)
	}
	return removed, nil
}

// Run sweeps orphans on the cron schedule until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context, schedule string) error {
	logger := contextutil.LoggerFromContext(ctx)

	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	if _, err := c.AddFunc(schedule, func() {
		if _, err := r.SweepOrphans(ctx); err != nil {
			logger.ErrorContext(ctx, "reconciliation sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}

	c.Start()
	logger.InfoContext(ctx, "reconciler started", "schedule", schedule)

	<-ctx.Done()

	// Wait for a running sweep to finish.
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(10 * time.Second):
		logger.WarnContext(ctx, "reconciler stop timed out")
	}
	logger.InfoContext(ctx, "reconciler stopped")
	return nil
}

package indexer

import (
	"context"
	"sync"

	"notebook-rag/internal/contextutil"
)

// EventKind names an ingestion progress signal.
type EventKind string

const (
	EventStarted   EventKind = "processing-started"
	EventSucceeded EventKind = "processing-succeeded"
	EventFailed    EventKind = "processing-failed"
)

// FailureMessage is the only failure detail sent to event sinks.
const FailureMessage = "Failed to process the file."

// Event reports the progress of one attachment's ingestion.
type Event struct {
	Kind         EventKind `json:"kind"`
	AttachmentID string    `json:"attachment_id"`
	NotebookID   string    `json:"notebook_id"`
	Message      string    `json:"message,omitempty"`
}

// Notifier receives ingestion events. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// LogNotifier writes events to the context logger.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, event Event) {
	logger := contextutil.LoggerFromContext(ctx)
	logger.InfoContext(ctx, "ingestion event",
		"kind", event.Kind,
		"attachment_id", event.AttachmentID,
		"notebook_id", event.NotebookID,
	)
}

// MultiNotifier fans an event out to several notifiers in order.
type MultiNotifier []Notifier

// Notify implements Notifier.
func (m MultiNotifier) Notify(ctx context.Context, event Event) {
	for _, n := range m {
		n.Notify(ctx, event)
	}
}

// subscriberBuffer is the number of events queued per subscriber before drops.
const subscriberBuffer = 64

// Broadcaster delivers events to any number of subscribers. A subscriber
// that falls behind misses events rather than stalling ingestion.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a channel of events and a function that unsubscribes
// and closes it.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

// Notify implements Notifier.
func (b *Broadcaster) Notify(ctx context.Context, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "dropping event for slow subscriber",
				"kind", event.Kind, "attachment_id", event.AttachmentID)
		}
	}
}

// Close closes every subscriber channel. Later subscriptions receive a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
}

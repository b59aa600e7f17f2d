// Package savequeue coalesces chunk edits into batched update writes.
//
// All pending entries share one debounce timer: any Queue call pushes back
// the flush of every pending entry. A Flush that starts while another is
// in flight returns without doing anything; entries queued meanwhile wait
// for the next Queue call to re-arm the timer.
package savequeue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"plotline/internal/domain/models/story"
	storySvc "plotline/internal/domain/services/story"
)

const (
	// DefaultDelay is the debounce interval
	DefaultDelay = 400 * time.Millisecond
	// DefaultConcurrency bounds parallel writes within one flush
	DefaultConcurrency = 4
)

// Entry is one pending write, last write wins per ID
type Entry struct {
	ID      string            `json:"id"`
	Content string            `json:"content"`
	Kind    story.SnippetKind `json:"kind"`
}

func (e Entry) request() *storySvc.UpdateRequest {
	content := e.Content
	kind := e.Kind
	return &storySvc.UpdateRequest{Content: &content, Kind: &kind}
}

// Writer delivers updates to the story service
type Writer interface {
	Update(ctx context.Context, id string, req *storySvc.UpdateRequest) (*story.Snippet, error)
	SendBeacon(id string, req *storySvc.UpdateRequest) bool
	UpdateKeepalive(ctx context.Context, id string, req *storySvc.UpdateRequest) error
}

// Fallback receives keepalive entries that no delivery path accepted
type Fallback interface {
	Save(ctx context.Context, entry Entry, cause error) error
}

// FlushOptions selects the delivery path
type FlushOptions struct {
	// Keepalive tries beacon, then keepalive request, then a normal request
	Keepalive bool
}

// Options configures a Queue
type Options struct {
	Delay       time.Duration
	Clock       Clock
	Concurrency int
	Fallback    Fallback
	// OnError is called once per entry whose write failed
	OnError func(entry Entry, err error)
	Logger  *slog.Logger
}

// Queue batches pending edits behind a single shared timer
type Queue struct {
	writer      Writer
	delay       time.Duration
	clock       Clock
	concurrency int
	fallback    Fallback
	onError     func(entry Entry, err error)
	logger      *slog.Logger

	mu       sync.Mutex
	pending  map[string]Entry
	order    []string
	timer    Timer
	flushing bool
}

// New creates a queue writing through w
func New(w Writer, opts Options) *Queue {
	q := &Queue{
		writer:      w,
		delay:       opts.Delay,
		clock:       opts.Clock,
		concurrency: opts.Concurrency,
		fallback:    opts.Fallback,
		onError:     opts.OnError,
		logger:      opts.Logger,
		pending:     make(map[string]Entry),
	}
	if q.delay <= 0 {
		q.delay = DefaultDelay
	}
	if q.clock == nil {
		q.clock = SystemClock{}
	}
	if q.concurrency <= 0 {
		q.concurrency = DefaultConcurrency
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	return q
}

// Queue records an edit and re-arms the shared timer
func (q *Queue) Queue(id, content string, kind story.SnippetKind) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[id]; !ok {
		q.order = append(q.order, id)
	}
	q.pending[id] = Entry{ID: id, Content: content, Kind: kind}

	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = q.clock.AfterFunc(q.delay, func() {
		if err := q.Flush(context.Background(), FlushOptions{}); err != nil {
			q.logger.Debug("debounced flush finished with errors", "error", err)
		}
	})
}

// Pending returns the queued entries in first-queued order
func (q *Queue) Pending() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := make([]Entry, 0, len(q.order))
	for _, id := range q.order {
		entries = append(entries, q.pending[id])
	}
	return entries
}

// HasPending reports whether any of ids is queued; with no ids, whether anything is
func (q *Queue) HasPending(ids ...string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(ids) == 0 {
		return len(q.pending) > 0
	}
	for _, id := range ids {
		if _, ok := q.pending[id]; ok {
			return true
		}
	}
	return false
}

// Flushing reports whether a flush is in flight
func (q *Queue) Flushing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.flushing
}

// Cancel stops the timer. Pending entries stay queued.
func (q *Queue) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

// Flush drains the pending entries and writes each one. Failures are
// reported per entry through OnError and joined into the returned error;
// one failure never blocks the other writes.
func (q *Queue) Flush(ctx context.Context, opts FlushOptions) error {
	q.mu.Lock()
	if q.flushing {
		q.mu.Unlock()
		return nil
	}
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	entries := make([]Entry, 0, len(q.order))
	for _, id := range q.order {
		entries = append(entries, q.pending[id])
	}
	q.pending = make(map[string]Entry)
	q.order = nil
	if len(entries) == 0 {
		q.mu.Unlock()
		return nil
	}
	q.flushing = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.mu.Unlock()
	}()

	var (
		errMu sync.Mutex
		errs  []error
	)
	g := new(errgroup.Group)
	g.SetLimit(q.concurrency)
	for _, entry := range entries {
		g.Go(func() error {
			var err error
			if opts.Keepalive {
				err = q.deliverKeepalive(ctx, entry)
			} else {
				_, err = q.writer.Update(ctx, entry.ID, entry.request())
			}
			if err != nil {
				q.logger.Warn("save failed", "snippet_id", entry.ID, "keepalive", opts.Keepalive, "error", err)
				if q.onError != nil {
					q.onError(entry, err)
				}
				errMu.Lock()
				errs = append(errs, fmt.Errorf("save %s: %w", entry.ID, err))
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	q.logger.Debug("flushed save queue", "entries", len(entries), "failed", len(errs), "keepalive", opts.Keepalive)
	return errors.Join(errs...)
}

// deliverKeepalive tries beacon, keepalive request, normal request, then the fallback
func (q *Queue) deliverKeepalive(ctx context.Context, entry Entry) error {
	req := entry.request()
	if q.writer.SendBeacon(entry.ID, req) {
		return nil
	}

	keepaliveErr := q.writer.UpdateKeepalive(ctx, entry.ID, req)
	if keepaliveErr == nil {
		return nil
	}

	_, updateErr := q.writer.Update(ctx, entry.ID, req)
	if updateErr == nil {
		return nil
	}

	cause := errors.Join(keepaliveErr, updateErr)
	if q.fallback == nil {
		return cause
	}
	if err := q.fallback.Save(ctx, entry, cause); err != nil {
		return errors.Join(cause, fmt.Errorf("fallback: %w", err))
	}
	q.logger.Info("save handed to fallback", "snippet_id", entry.ID)
	return nil
}

// Package reconcile aligns the local draft with a freshly fetched path.
//
// The policy never merges. It only decides whether the local copy is stale
// enough to be replaced wholesale by the backend path.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"plotline/internal/domain/models/story"
	"plotline/internal/draft"
)

// Decision is the outcome of one reconciliation pass
type Decision int

const (
	// Equivalent: same ids and text, nothing to do
	Equivalent Decision = iota
	// CutOver: the (story, branch) changed; local is replaced unconditionally
	CutOver
	// EmptyBackend: an empty fetch never clobbers local work
	EmptyBackend
	// Adopt: local was empty and takes the backend path
	Adopt
	// Diverged: the shared prefix differs; local is left untouched
	Diverged
	// AdoptTail: prefix matches but length or head differ; backend wins
	AdoptTail
	// Deferred: AdoptTail held back because local edits are still queued
	Deferred
)

func (d Decision) String() string {
	switch d {
	case Equivalent:
		return "equivalent"
	case CutOver:
		return "cut_over"
	case EmptyBackend:
		return "empty_backend"
	case Adopt:
		return "adopt"
	case Diverged:
		return "diverged"
	case AdoptTail:
		return "adopt_tail"
	case Deferred:
		return "deferred"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// Replaces reports whether the decision replaces the local draft
func (d Decision) Replaces() bool {
	return d == CutOver || d == Adopt || d == AdoptTail
}

// Decide applies the reconciliation policy to one pass
func Decide(keyChanged bool, local, backend []draft.Chunk) Decision {
	if keyChanged {
		return CutOver
	}
	if len(backend) == 0 {
		return EmptyBackend
	}
	if len(local) == 0 {
		return Adopt
	}
	if !PrefixMatches(local, backend) {
		return Diverged
	}
	if len(local) != len(backend) || local[len(local)-1].ID != backend[len(backend)-1].ID {
		return AdoptTail
	}
	return Equivalent
}

// PrefixMatches compares ids and text up to the shorter length
func PrefixMatches(local, backend []draft.Chunk) bool {
	n := min(len(local), len(backend))
	for i := 0; i < n; i++ {
		if local[i].ID != backend[i].ID || local[i].Text != backend[i].Text {
			return false
		}
	}
	return true
}

// Key identifies what the draft is showing
type Key struct {
	Story  string
	Branch string
}

// PendingChecker is satisfied by the save queue
type PendingChecker interface {
	HasPending(ids ...string) bool
}

// PathFetcher is satisfied by the story API client
type PathFetcher interface {
	GetPath(ctx context.Context, storyName, branch, headID string) (*story.PathResult, error)
}

// Option configures an Engine
type Option func(*Engine)

// WithPendingGuard defers tail adoption while any local chunk has a queued write
func WithPendingGuard(p PendingChecker) Option {
	return func(e *Engine) { e.pending = p }
}

// WithLogger sets the engine logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Engine applies decisions to a draft store and remembers the last key.
// The first pass only records its key; it does not count as a switch.
type Engine struct {
	store   *draft.Store
	pending PendingChecker
	logger  *slog.Logger

	mu     sync.Mutex
	key    Key
	hasKey bool
}

// New creates an engine writing into store
func New(store *draft.Store, opts ...Option) *Engine {
	e := &Engine{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply reconciles the draft with backend for key
func (e *Engine) Apply(key Key, backend []draft.Chunk) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	keyChanged := e.hasKey && e.key != key
	e.key = key
	e.hasKey = true

	local := e.store.Chunks()
	decision := Decide(keyChanged, local, backend)

	if decision == AdoptTail && e.pending != nil && e.pending.HasPending(chunkIDs(local)...) {
		decision = Deferred
	}
	if decision.Replaces() {
		e.store.SetChunks(backend)
	}

	e.logger.Debug("reconciled draft",
		"story", key.Story,
		"branch", key.Branch,
		"decision", decision.String(),
		"local_len", len(local),
		"backend_len", len(backend),
	)
	return decision
}

// Sync fetches the branch path and applies it. A failed fetch leaves the
// draft as the last known good state.
func (e *Engine) Sync(ctx context.Context, fetcher PathFetcher, key Key) (Decision, error) {
	result, err := fetcher.GetPath(ctx, key.Story, key.Branch, "")
	if err != nil {
		return Equivalent, fmt.Errorf("fetch path %s/%s: %w", key.Story, key.Branch, err)
	}
	return e.Apply(key, draft.FromPath(result.Path)), nil
}

// Key returns the key of the last pass
func (e *Engine) Key() (Key, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.key, e.hasKey
}

// Reset forgets the last key so the next pass is not treated as a switch
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.key = Key{}
	e.hasKey = false
}

func chunkIDs(chunks []draft.Chunk) []string {
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = chunks[i].ID
	}
	return ids
}

// Package memory is an in-process implementation of the story repositories.
// Snippets live in an arena keyed by id; nodes refer to each other only by id.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"plotline/internal/config"
	"plotline/internal/domain/models/story"
	"plotline/internal/domain/repositories"
)

type node struct {
	snippet  story.Snippet
	seq      int64
	children []string // ordered by seq
}

type branchKey struct {
	story string
	name  string
}

type branchEntry struct {
	branch story.Branch
	seq    int64
}

// Store holds the arena shared by the snippet and branch repositories
type Store struct {
	mu       sync.RWMutex
	txMu     sync.Mutex
	nodes    map[string]*node
	branches map[branchKey]*branchEntry
	seq      int64
	now      func() time.Time
	maxDepth int
}

// NewStore creates an empty arena
func NewStore() *Store {
	return &Store{
		nodes:    make(map[string]*node),
		branches: make(map[branchKey]*branchEntry),
		now:      time.Now,
		maxDepth: config.MaxPathDepth,
	}
}

// SetClock overrides the timestamp source (tests)
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetMaxPathDepth overrides the parent-link walk limit; n <= 0 is ignored
func (s *Store) SetMaxPathDepth(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxDepth = n
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// ExecTx serializes transactional callers and restores the arena when fn fails.
// A nested call joins the running transaction.
func (s *Store) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

// writeLock holds a write outside ExecTx until running transactions finish,
// so their rollback cannot discard it. Writes inside ExecTx pass through.
func (s *Store) writeLock(ctx context.Context) (unlock func()) {
	if s.inTx(ctx) {
		return func() {}
	}
	s.txMu.Lock()
	return s.txMu.Unlock
}

type arenaSnapshot struct {
	nodes    map[string]*node
	branches map[branchKey]*branchEntry
	seq      int64
}

func (s *Store) snapshot() arenaSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := arenaSnapshot{
		nodes:    make(map[string]*node, len(s.nodes)),
		branches: make(map[branchKey]*branchEntry, len(s.branches)),
		seq:      s.seq,
	}
	for id, n := range s.nodes {
		cp := *n
		cp.children = append([]string(nil), n.children...)
		snap.nodes[id] = &cp
	}
	for k, b := range s.branches {
		cp := *b
		snap.branches[k] = &cp
	}
	return snap
}

func (s *Store) restore(snap arenaSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = snap.nodes
	s.branches = snap.branches
	s.seq = snap.seq
}

// insertChild keeps a parent's children ordered by creation sequence
func (s *Store) insertChild(parent *node, childID string) {
	childSeq := s.nodes[childID].seq
	idx := sort.Search(len(parent.children), func(i int) bool {
		return s.nodes[parent.children[i]].seq > childSeq
	})
	parent.children = append(parent.children, "")
	copy(parent.children[idx+1:], parent.children[idx:])
	parent.children[idx] = childID
}

func removeChild(parent *node, childID string) {
	for i, id := range parent.children {
		if id == childID {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			return
		}
	}
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// clone returns a snippet value that does not alias arena pointers
func (n *node) clone() story.Snippet {
	out := n.snippet
	out.ParentID = copyString(n.snippet.ParentID)
	out.ChildID = copyString(n.snippet.ChildID)
	return out
}

package draft

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrChunkNotFound is returned when an id or tag is not in the draft
var ErrChunkNotFound = errors.New("chunk not found")

// Action tags a history entry. Informational only.
type Action string

const (
	ActionGenerate   Action = "generate"
	ActionRegenerate Action = "regenerate"
	ActionRevert     Action = "revert"
	ActionDelete     Action = "delete"
	ActionBranch     Action = "branch"
	ActionEdit       Action = "edit"
	ActionInsert     Action = "insert"
)

// HistoryEntry is one undo record holding full snapshots
type HistoryEntry struct {
	ID     string
	Action Action
	Before []Chunk
	After  []Chunk
	At     time.Time
}

// Patch lists the fields UpdateChunk changes; nil fields are kept
type Patch struct {
	ID        *string
	Text      *string
	Author    *Author
	Timestamp *time.Time
}

// Store is the in-memory ordered list of chunks plus an unbounded undo stack.
// Every accessor returns copies.
type Store struct {
	mu       sync.RWMutex
	chunks   []Chunk
	history  []HistoryEntry // newest last
	revision uint64
	now      func() time.Time
}

// NewStore creates an empty draft
func NewStore() *Store {
	return &Store{chunks: []Chunk{}, now: time.Now}
}

// Chunks returns a snapshot of the draft
func (s *Store) Chunks() []Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneChunks(s.chunks)
}

// Len returns the number of chunks
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Revision counts mutations; unchanged revision means nothing was re-rendered
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Get returns the chunk with the given id
func (s *Store) Get(id string) (Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.chunks[i], true
	}
	return Chunk{}, false
}

// IndexOf returns the position of id, or -1
func (s *Store) IndexOf(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(id)
}

// SetChunks replaces the whole draft
func (s *Store) SetChunks(chunks []Chunk) {
	next := cloneChunks(chunks)
	for i := range next {
		if next[i].Tag == "" {
			next[i].Tag = newTag()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = next
	s.revision++
}

// InsertChunk places c at index. A chunk without an id gets a local
// placeholder id. The stored chunk is returned.
func (s *Store) InsertChunk(index int, c Chunk) (Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index > len(s.chunks) {
		return Chunk{}, fmt.Errorf("insert at %d: index out of range [0,%d]", index, len(s.chunks))
	}
	s.prepare(&c)

	s.chunks = append(s.chunks, Chunk{})
	copy(s.chunks[index+1:], s.chunks[index:])
	s.chunks[index] = c
	s.revision++
	return c, nil
}

// AppendChunk adds c at the end
func (s *Store) AppendChunk(c Chunk) Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prepare(&c)
	s.chunks = append(s.chunks, c)
	s.revision++
	return c
}

func (s *Store) prepare(c *Chunk) {
	if c.ID == "" {
		c.ID = NewLocalID()
	}
	if c.Tag == "" {
		c.Tag = newTag()
	}
	if c.Author == "" {
		c.Author = AuthorUser
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = s.now().UTC()
	}
}

// UpdateChunk merges patch into the chunk with the given id
func (s *Store) UpdateChunk(id string, patch Patch) (Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Chunk{}, fmt.Errorf("update %s: %w", id, ErrChunkNotFound)
	}
	c := &s.chunks[i]
	if patch.ID != nil {
		c.ID = *patch.ID
	}
	if patch.Text != nil {
		c.Text = *patch.Text
	}
	if patch.Author != nil {
		c.Author = *patch.Author
	}
	if patch.Timestamp != nil {
		c.Timestamp = *patch.Timestamp
	}
	s.revision++
	return *c, nil
}

// ConfirmChunk swaps the id found by tag for the server-assigned id
func (s *Store) ConfirmChunk(tag, id string, timestamp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.chunks {
		if s.chunks[i].Tag == tag {
			s.chunks[i].ID = id
			if !timestamp.IsZero() {
				s.chunks[i].Timestamp = timestamp
			}
			s.revision++
			return nil
		}
	}
	return fmt.Errorf("confirm tag %s: %w", tag, ErrChunkNotFound)
}

// DeleteChunk removes the chunk with the given id
func (s *Store) DeleteChunk(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("delete %s: %w", id, ErrChunkNotFound)
	}
	s.chunks = append(s.chunks[:i], s.chunks[i+1:]...)
	s.revision++
	return nil
}

// PushHistory records an undo entry
func (s *Store) PushHistory(action Action, before, after []Chunk) HistoryEntry {
	entry := HistoryEntry{
		ID:     uuid.NewString(),
		Action: action,
		Before: cloneChunks(before),
		After:  cloneChunks(after),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry.At = s.now().UTC()
	s.history = append(s.history, entry)
	return entry
}

// RevertFromHistory pops the newest entry and restores its Before snapshot
func (s *Store) RevertFromHistory() (HistoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) == 0 {
		return HistoryEntry{}, false
	}
	entry := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	s.chunks = cloneChunks(entry.Before)
	s.revision++
	return entry, true
}

// History returns the undo stack, newest first
func (s *Store) History() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]HistoryEntry, len(s.history))
	for i, entry := range s.history {
		entry.Before = cloneChunks(entry.Before)
		entry.After = cloneChunks(entry.After)
		out[len(s.history)-1-i] = entry
	}
	return out
}

func (s *Store) indexOf(id string) int {
	for i := range s.chunks {
		if s.chunks[i].ID == id {
			return i
		}
	}
	return -1
}

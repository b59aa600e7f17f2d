package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"plotline/internal/domain"
	"plotline/internal/domain/models/story"
	storyRepo "plotline/internal/domain/repositories/story"
)

// SnippetRepository implements storyRepo.SnippetRepository on the arena
type SnippetRepository struct {
	store *Store
}

// NewSnippetRepository creates a snippet repository backed by store
func NewSnippetRepository(store *Store) storyRepo.SnippetRepository {
	return &SnippetRepository{store: store}
}

func notFound(id string) error {
	return fmt.Errorf("snippet %s: %w", id, domain.ErrNotFound)
}

// Create inserts a snippet and links it under its parent
func (r *SnippetRepository) Create(ctx context.Context, snippet *story.Snippet) error {
	defer r.store.writeLock(ctx)()
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var parent *node
	if snippet.ParentID != nil {
		p, ok := s.nodes[*snippet.ParentID]
		if !ok {
			return notFound(*snippet.ParentID)
		}
		parent = p
	}

	if snippet.ID == "" {
		snippet.ID = uuid.NewString()
	}
	if _, exists := s.nodes[snippet.ID]; exists {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("snippet %s already exists", snippet.ID),
			ResourceType: "snippet",
			ResourceID:   snippet.ID,
		}
	}
	snippet.CreatedAt = s.now().UTC()

	n := &node{seq: s.nextSeq()}
	n.snippet = *snippet
	n.snippet.ParentID = copyString(snippet.ParentID)
	n.snippet.ChildID = copyString(snippet.ChildID)
	s.nodes[snippet.ID] = n

	if parent != nil {
		s.insertChild(parent, snippet.ID)
	}
	return nil
}

// Get retrieves a snippet by ID
func (r *SnippetRepository) Get(ctx context.Context, id string) (*story.Snippet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	n, ok := r.store.nodes[id]
	if !ok {
		return nil, notFound(id)
	}
	out := n.clone()
	return &out, nil
}

// GetPath walks parent links from headID and returns root first
func (r *SnippetRepository) GetPath(ctx context.Context, headID string) ([]story.Snippet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	n, ok := r.store.nodes[headID]
	if !ok {
		return nil, notFound(headID)
	}

	var reversed []story.Snippet
	for n != nil {
		if len(reversed) == r.store.maxDepth {
			return nil, fmt.Errorf("%w: path to %s exceeds %d snippets", domain.ErrValidation, headID, r.store.maxDepth)
		}
		reversed = append(reversed, n.clone())
		if n.snippet.ParentID == nil {
			break
		}
		n = r.store.nodes[*n.snippet.ParentID]
	}

	path := make([]story.Snippet, len(reversed))
	for i := range reversed {
		path[len(reversed)-1-i] = reversed[i]
	}
	return path, nil
}

// ListChildren returns a snippet's children ordered by creation
func (r *SnippetRepository) ListChildren(ctx context.Context, parentID string) ([]story.Snippet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	parent, ok := r.store.nodes[parentID]
	if !ok {
		return nil, notFound(parentID)
	}
	children := make([]story.Snippet, 0, len(parent.children))
	for _, id := range parent.children {
		children = append(children, r.store.nodes[id].clone())
	}
	return children, nil
}

// ListByStory returns all snippets of a story ordered by creation
func (r *SnippetRepository) ListByStory(ctx context.Context, storyName string) ([]story.Snippet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var matched []*node
	for _, n := range r.store.nodes {
		if n.snippet.Story == storyName {
			matched = append(matched, n)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	out := make([]story.Snippet, len(matched))
	for i, n := range matched {
		out[i] = n.clone()
	}
	return out, nil
}

// UpdateContent sets content and/or kind
func (r *SnippetRepository) UpdateContent(ctx context.Context, id string, content *string, kind *story.SnippetKind) (*story.Snippet, error) {
	defer r.store.writeLock(ctx)()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	n, ok := r.store.nodes[id]
	if !ok {
		return nil, notFound(id)
	}
	if content != nil {
		n.snippet.Content = *content
	}
	if kind != nil {
		n.snippet.Kind = *kind
	}
	out := n.clone()
	return &out, nil
}

// SetParent moves a snippet under a new parent (nil makes it a root)
func (r *SnippetRepository) SetParent(ctx context.Context, id string, parentID *string) error {
	defer r.store.writeLock(ctx)()
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return notFound(id)
	}

	var newParent *node
	if parentID != nil {
		p, ok := s.nodes[*parentID]
		if !ok {
			return notFound(*parentID)
		}
		// Reject cycles: the new parent must not descend from id
		for cur, depth := p, 0; cur != nil && depth < s.maxDepth; depth++ {
			if cur.snippet.ID == id {
				return fmt.Errorf("snippet %s cannot be its own ancestor: %w", id, domain.ErrValidation)
			}
			if cur.snippet.ParentID == nil {
				break
			}
			cur = s.nodes[*cur.snippet.ParentID]
		}
		newParent = p
	}

	if n.snippet.ParentID != nil {
		if old, ok := s.nodes[*n.snippet.ParentID]; ok {
			removeChild(old, id)
		}
	}
	n.snippet.ParentID = copyString(parentID)
	if newParent != nil {
		s.insertChild(newParent, id)
	}
	return nil
}

// SetActiveChild points child_id at one of the snippet's children
func (r *SnippetRepository) SetActiveChild(ctx context.Context, id string, childID *string) error {
	defer r.store.writeLock(ctx)()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	n, ok := r.store.nodes[id]
	if !ok {
		return notFound(id)
	}
	if childID != nil {
		child, ok := r.store.nodes[*childID]
		if !ok {
			return notFound(*childID)
		}
		if child.snippet.ParentID == nil || *child.snippet.ParentID != id {
			return fmt.Errorf("snippet %s is not a child of %s: %w", *childID, id, domain.ErrValidation)
		}
	}
	n.snippet.ChildID = copyString(childID)
	return nil
}

// Delete removes a snippet that no longer has children
func (r *SnippetRepository) Delete(ctx context.Context, id string) error {
	defer r.store.writeLock(ctx)()
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return notFound(id)
	}
	if len(n.children) > 0 {
		return fmt.Errorf("snippet %s still has %d children: %w", id, len(n.children), domain.ErrValidation)
	}
	if n.snippet.ParentID != nil {
		if parent, ok := s.nodes[*n.snippet.ParentID]; ok {
			removeChild(parent, id)
			if parent.snippet.ChildID != nil && *parent.snippet.ChildID == id {
				parent.snippet.ChildID = nil
			}
		}
	}
	delete(s.nodes, id)
	return nil
}

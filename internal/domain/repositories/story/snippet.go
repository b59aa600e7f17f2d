package story

import (
	"context"

	"plotline/internal/domain/models/story"
)

// SnippetRepository defines data access for the snippet tree
type SnippetRepository interface {
	// Create inserts a snippet; ID and CreatedAt are assigned by the store.
	// Returns domain.ErrNotFound if ParentID references a missing snippet.
	Create(ctx context.Context, snippet *story.Snippet) error

	// Get retrieves a snippet by ID
	// Returns domain.ErrNotFound if not found
	Get(ctx context.Context, id string) (*story.Snippet, error)

	// GetPath walks parent links from headID to the root
	// Returns snippets ordered root first, head last
	GetPath(ctx context.Context, headID string) ([]story.Snippet, error)

	// ListChildren returns all children of a snippet ordered by created_at
	ListChildren(ctx context.Context, parentID string) ([]story.Snippet, error)

	// ListByStory returns every snippet of a story ordered by created_at
	ListByStory(ctx context.Context, storyName string) ([]story.Snippet, error)

	// UpdateContent sets content and/or kind (nil leaves the field unchanged)
	UpdateContent(ctx context.Context, id string, content *string, kind *story.SnippetKind) (*story.Snippet, error)

	// SetParent re-parents a snippet (nil makes it a root)
	SetParent(ctx context.Context, id string, parentID *string) error

	// SetActiveChild points a snippet's child_id at one of its children (nil = leaf)
	SetActiveChild(ctx context.Context, id string, childID *string) error

	// Delete removes a single snippet row. Callers re-link children first.
	Delete(ctx context.Context, id string) error
}

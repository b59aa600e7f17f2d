package story

import (
	"context"

	"plotline/internal/domain/models/story"
)

// BranchRepository defines data access for named branch pointers
type BranchRepository interface {
	// List returns a story's branches ordered by created_at
	List(ctx context.Context, storyName string) ([]story.Branch, error)

	// Get returns a branch by story and name
	// Returns domain.ErrNotFound if not found
	Get(ctx context.Context, storyName, name string) (*story.Branch, error)

	// Create registers a new branch pointer
	// Returns *domain.ConflictError if the name is taken in that story
	Create(ctx context.Context, branch *story.Branch) error

	// UpdateHead moves a branch pointer
	UpdateHead(ctx context.Context, storyName, name, headID string) error

	// Delete removes the pointer only; snippets are untouched
	Delete(ctx context.Context, storyName, name string) error
}

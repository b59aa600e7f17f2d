package memory

import (
	"context"
	"fmt"
	"sort"

	"plotline/internal/domain"
	"plotline/internal/domain/models/story"
	storyRepo "plotline/internal/domain/repositories/story"
)

// BranchRepository implements storyRepo.BranchRepository on the arena
type BranchRepository struct {
	store *Store
}

// NewBranchRepository creates a branch repository backed by store
func NewBranchRepository(store *Store) storyRepo.BranchRepository {
	return &BranchRepository{store: store}
}

func branchNotFound(storyName, name string) error {
	return fmt.Errorf("branch %s/%s: %w", storyName, name, domain.ErrNotFound)
}

// List returns a story's branches ordered by creation
func (r *BranchRepository) List(ctx context.Context, storyName string) ([]story.Branch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var entries []*branchEntry
	for key, entry := range r.store.branches {
		if key.story == storyName {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	branches := make([]story.Branch, len(entries))
	for i, e := range entries {
		branches[i] = e.branch
	}
	return branches, nil
}

// Get returns a branch by story and name
func (r *BranchRepository) Get(ctx context.Context, storyName, name string) (*story.Branch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	entry, ok := r.store.branches[branchKey{storyName, name}]
	if !ok {
		return nil, branchNotFound(storyName, name)
	}
	b := entry.branch
	return &b, nil
}

// Create registers a new branch pointer
func (r *BranchRepository) Create(ctx context.Context, branch *story.Branch) error {
	defer r.store.writeLock(ctx)()
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	key := branchKey{branch.Story, branch.Name}
	if _, exists := s.branches[key]; exists {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("branch %q already exists in story %q", branch.Name, branch.Story),
			ResourceType: "branch",
			ResourceID:   branch.Name,
		}
	}
	branch.CreatedAt = s.now().UTC()
	s.branches[key] = &branchEntry{branch: *branch, seq: s.nextSeq()}
	return nil
}

// UpdateHead moves a branch pointer
func (r *BranchRepository) UpdateHead(ctx context.Context, storyName, name, headID string) error {
	defer r.store.writeLock(ctx)()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	entry, ok := r.store.branches[branchKey{storyName, name}]
	if !ok {
		return branchNotFound(storyName, name)
	}
	entry.branch.HeadID = headID
	return nil
}

// Delete removes a branch pointer
func (r *BranchRepository) Delete(ctx context.Context, storyName, name string) error {
	defer r.store.writeLock(ctx)()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	key := branchKey{storyName, name}
	if _, ok := r.store.branches[key]; !ok {
		return branchNotFound(storyName, name)
	}
	delete(r.store.branches, key)
	return nil
}

package story

import (
	"context"
	"fmt"

	"plotline/internal/domain"
	storyModels "plotline/internal/domain/models/story"
)

// storyShape is the parent/child structure of one story
type storyShape struct {
	parents  map[string]*string
	children map[string][]string
}

func (s *snippetService) loadShape(ctx context.Context, storyName string) (*storyShape, error) {
	snippets, err := s.snippetRepo.ListByStory(ctx, storyName)
	if err != nil {
		return nil, err
	}
	shape := &storyShape{
		parents:  make(map[string]*string, len(snippets)),
		children: make(map[string][]string),
	}
	for i := range snippets {
		shape.parents[snippets[i].ID] = snippets[i].ParentID
		if p := snippets[i].ParentID; p != nil {
			shape.children[*p] = append(shape.children[*p], snippets[i].ID)
		}
	}
	return shape, nil
}

// depth counts the snippets from the root down to id, stopping past limit
func (t *storyShape) depth(id string, limit int) int {
	n := 0
	for cur := &id; cur != nil && n <= limit; n++ {
		cur = t.parents[*cur]
	}
	return n
}

// height counts the snippets on the longest downward chain starting at id
func (t *storyShape) height(id string, limit int) int {
	level := []string{id}
	seen := map[string]bool{id: true}
	h := 0
	for len(level) > 0 && h <= limit {
		h++
		var next []string
		for _, cur := range level {
			for _, child := range t.children[cur] {
				if !seen[child] {
					seen[child] = true
					next = append(next, child)
				}
			}
		}
		level = next
	}
	return h
}

func (s *snippetService) tooDeep(longest int) error {
	return fmt.Errorf("%w: path would reach %d snippets, limit is %d", domain.ErrValidation, longest, s.maxDepth)
}

// checkAppendDepth rejects a child under parentID past the depth limit
func (s *snippetService) checkAppendDepth(ctx context.Context, parentID string) error {
	path, err := s.snippetRepo.GetPath(ctx, parentID)
	if err != nil {
		return err
	}
	if longest := len(path) + 1; longest > s.maxDepth {
		return s.tooDeep(longest)
	}
	return nil
}

// checkInsertDepth rejects splicing one snippet in above the chain rooted at
// shiftedID, which lies below anchorID. An empty shiftedID means nothing
// moves down and the new snippet becomes a leaf under anchorID.
func (s *snippetService) checkInsertDepth(ctx context.Context, storyName, anchorID, shiftedID string) error {
	shape, err := s.loadShape(ctx, storyName)
	if err != nil {
		return err
	}

	longest := 1
	if anchorID != "" {
		longest += shape.depth(anchorID, s.maxDepth)
	}
	if shiftedID != "" {
		longest += shape.height(shiftedID, s.maxDepth)
	}
	if longest > s.maxDepth {
		return s.tooDeep(longest)
	}
	return nil
}

// anchorOf returns the parent id of a snippet, or "" for a root
func anchorOf(snippet *storyModels.Snippet) string {
	if snippet.ParentID == nil {
		return ""
	}
	return *snippet.ParentID
}

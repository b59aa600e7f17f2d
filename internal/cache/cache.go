// Package cache holds rendered story paths between writes.
package cache

import (
	"context"

	"plotline/internal/domain/models/story"
)

// PathCache stores path results per story. Selector is either a branch name
// or an explicit head id, as chosen by the caller.
//
// Get reports the story's version alongside a miss. Callers read the store
// and hand that version back to Set, which drops the write if the story was
// invalidated in between. A negative version never stores anything.
// Implementations swallow backend failures and report a miss.
type PathCache interface {
	Get(ctx context.Context, storyName, selector string) (result *story.PathResult, version int64, ok bool)
	Set(ctx context.Context, storyName, selector string, version int64, result *story.PathResult)
	// Invalidate drops every cached path of the story
	Invalidate(ctx context.Context, storyName string)
}

// Noop is used when no cache backend is configured
type Noop struct{}

func (Noop) Get(context.Context, string, string) (*story.PathResult, int64, bool) {
	return nil, -1, false
}
func (Noop) Set(context.Context, string, string, int64, *story.PathResult) {}
func (Noop) Invalidate(context.Context, string) {}

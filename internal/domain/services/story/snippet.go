package story

import (
	"context"

	"plotline/internal/domain/models/story"
	"plotline/internal/domain/services/generation"
)

// SnippetService defines the business logic for the snippet tree
type SnippetService interface {
	// GetPath returns the ordered root-to-head path for a branch or explicit head.
	// HeadID wins over Branch; Branch defaults to "main".
	GetPath(ctx context.Context, req *GetPathRequest) (*story.PathResult, error)

	// Append creates a snippet under ParentID (default: the branch head)
	Append(ctx context.Context, req *AppendRequest) (*story.Snippet, error)

	// InsertAbove creates a snippet between TargetID and its parent
	InsertAbove(ctx context.Context, req *InsertRequest) (*story.Snippet, error)

	// InsertBelow creates a snippet between TargetID and its active child
	InsertBelow(ctx context.Context, req *InsertRequest) (*story.Snippet, error)

	// Update changes content and/or kind of a snippet
	Update(ctx context.Context, id string, req *UpdateRequest) (*story.Snippet, error)

	// Delete removes a snippet and splices its children up to its parent
	Delete(ctx context.Context, storyName, id string) error

	// Regenerate creates an AI-authored alternative to TargetID as its sibling
	Regenerate(ctx context.Context, req *RegenerateRequest) (*story.Snippet, error)

	// GetTree lists every parent with its children
	GetTree(ctx context.Context, storyName string) ([]story.TreeEntry, error)

	// ChooseActiveChild moves a parent's active pointer to one of its children
	ChooseActiveChild(ctx context.Context, req *ChooseActiveChildRequest) error
}

// BranchService manages named branch pointers
type BranchService interface {
	ListBranches(ctx context.Context, storyName string) ([]story.Branch, error)
	GetBranch(ctx context.Context, storyName, name string) (*story.Branch, error)
	CreateBranch(ctx context.Context, req *CreateBranchRequest) (*story.Branch, error)
	// MoveBranch repoints an existing branch, e.g. after its head was deleted
	MoveBranch(ctx context.Context, req *MoveBranchRequest) (*story.Branch, error)
	DeleteBranch(ctx context.Context, storyName, name string) error
}

// GetPathRequest selects a path by branch or explicit head
type GetPathRequest struct {
	Story  string  `json:"story"`
	Branch string  `json:"branch,omitempty"`
	HeadID *string `json:"head_id,omitempty"`
}

// AppendRequest is the DTO for appending a snippet
type AppendRequest struct {
	Story    string            `json:"story"`
	Content  string            `json:"content"`
	Kind     story.SnippetKind `json:"kind"`
	ParentID *string           `json:"parent_id,omitempty"`
	Branch   string            `json:"branch,omitempty"`
}

// InsertRequest is the DTO for insert above/below
type InsertRequest struct {
	Story    string            `json:"story"`
	TargetID string            `json:"target_id"`
	Content  string            `json:"content"`
	Kind     story.SnippetKind `json:"kind"`
	Branch   string            `json:"branch,omitempty"`
}

// UpdateRequest carries optional content/kind changes
type UpdateRequest struct {
	Content *string            `json:"content,omitempty"`
	Kind    *story.SnippetKind `json:"kind,omitempty"`
}

// RegenerateRequest is the DTO for regenerating a snippet
type RegenerateRequest struct {
	Story       string                 `json:"story"`
	TargetID    string                 `json:"target_id"`
	Instruction string                 `json:"instruction"`
	Model       string                 `json:"model"`
	Params      generation.ModelParams `json:"params"`
	Context     string                 `json:"context,omitempty"`
	Branch      string                 `json:"branch,omitempty"`
}

// ChooseActiveChildRequest is the DTO for switching the active child
type ChooseActiveChildRequest struct {
	Story    string `json:"story"`
	ParentID string `json:"parent_id"`
	ChildID  string `json:"child_id"`
	Branch   string `json:"branch,omitempty"`
}

// CreateBranchRequest is the DTO for creating a branch
type CreateBranchRequest struct {
	Story  string `json:"story"`
	Name   string `json:"name"`
	HeadID string `json:"head_id"`
}

// MoveBranchRequest is the DTO for repointing a branch
type MoveBranchRequest struct {
	Story  string `json:"story"`
	Name   string `json:"name"`
	HeadID string `json:"head_id"`
}

package story

import (
	"strings"
	"time"
)

// SnippetKind records who authored a snippet
type SnippetKind string

const (
	KindUser SnippetKind = "user"
	KindAI   SnippetKind = "ai"
)

// Valid reports whether k is a known kind
func (k SnippetKind) Valid() bool {
	return k == KindUser || k == KindAI
}

// Snippet is a single content node of a story.
// Snippets form a forest via parent_id; child_id marks the one active child
// among possibly many (nil when the snippet is currently a leaf).
type Snippet struct {
	ID        string      `json:"id" db:"id"`
	Story     string      `json:"story" db:"story"`
	ParentID  *string     `json:"parent_id" db:"parent_id"`
	ChildID   *string     `json:"child_id" db:"child_id"`
	Kind      SnippetKind `json:"kind" db:"kind"`
	Content   string      `json:"content" db:"content"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// PathSeparator joins snippet contents when a path is rendered as text
const PathSeparator = "\n\n"

// PathResult is an ordered root-to-head walk through the tree
type PathResult struct {
	HeadID *string   `json:"head_id"`
	Path   []Snippet `json:"path"`
	Text   string    `json:"text"`
}

// NewPathResult builds a PathResult from an ordered root-to-head path
func NewPathResult(path []Snippet) *PathResult {
	if path == nil {
		path = []Snippet{}
	}
	result := &PathResult{Path: path}
	if len(path) > 0 {
		head := path[len(path)-1].ID
		result.HeadID = &head
	}
	contents := make([]string, len(path))
	for i := range path {
		contents[i] = path[i].Content
	}
	result.Text = strings.Join(contents, PathSeparator)
	return result
}

// Contains reports whether the path visits the snippet id
func (p *PathResult) Contains(id string) bool {
	for i := range p.Path {
		if p.Path[i].ID == id {
			return true
		}
	}
	return false
}

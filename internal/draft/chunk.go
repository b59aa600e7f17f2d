package draft

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"plotline/internal/domain/models/story"
)

// Author marks who wrote a chunk
type Author string

const (
	AuthorUser Author = "user"
	AuthorLLM  Author = "llm"
)

// Kind converts an author to the snippet kind stored by the service
func (a Author) Kind() story.SnippetKind {
	if a == AuthorLLM {
		return story.KindAI
	}
	return story.KindUser
}

// AuthorFromKind is the inverse of Author.Kind
func AuthorFromKind(kind story.SnippetKind) Author {
	if kind == story.KindAI {
		return AuthorLLM
	}
	return AuthorUser
}

// Chunk is the editable client-side projection of a snippet.
// Tag is a client-only correlation key that survives the swap from a
// local placeholder ID to the server-assigned one.
type Chunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    Author    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Tag       string    `json:"-"`
}

const localIDPrefix = "local-"

// NewLocalID returns a placeholder id for a chunk the server has not confirmed
func NewLocalID() string {
	return localIDPrefix + uuid.NewString()
}

// IsLocalID reports whether id is a placeholder from NewLocalID
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

func newTag() string {
	return uuid.NewString()
}

// FromSnippet projects a server snippet into a chunk
func FromSnippet(s story.Snippet) Chunk {
	return Chunk{
		ID:        s.ID,
		Text:      s.Content,
		Author:    AuthorFromKind(s.Kind),
		Timestamp: s.CreatedAt,
		Tag:       newTag(),
	}
}

// FromPath projects an ordered path into chunks
func FromPath(path []story.Snippet) []Chunk {
	chunks := make([]Chunk, len(path))
	for i := range path {
		chunks[i] = FromSnippet(path[i])
	}
	return chunks
}

// Text joins chunk texts the way the service joins a path
func Text(chunks []Chunk) string {
	parts := make([]string, len(chunks))
	for i := range chunks {
		parts[i] = chunks[i].Text
	}
	return strings.Join(parts, story.PathSeparator)
}

func cloneChunks(chunks []Chunk) []Chunk {
	if chunks == nil {
		return []Chunk{}
	}
	out := make([]Chunk, len(chunks))
	copy(out, chunks)
	return out
}

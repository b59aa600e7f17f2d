package story

import "time"

// DefaultBranch always exists for a non-empty story
const DefaultBranch = "main"

// Branch is a named, story-scoped pointer to a head snippet
type Branch struct {
	Story     string    `json:"story" db:"story"`
	Name      string    `json:"name" db:"name"`
	HeadID    string    `json:"head_id" db:"head_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

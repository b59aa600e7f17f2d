package config

const (
	// MaxStoryNameLength is the maximum length for story names.
	// Limited to 255 to fit in PostgreSQL VARCHAR(255).
	MaxStoryNameLength = 255

	// MaxBranchNameLength is the maximum length for branch names.
	// Branch names show up in selectors, so they are kept short.
	MaxBranchNameLength = 100

	// MaxSnippetContentLength is the maximum size of a single snippet in bytes.
	// A snippet is one passage of a story, not a whole manuscript.
	MaxSnippetContentLength = 200_000

	// MaxInstructionLength bounds generation instructions.
	MaxInstructionLength = 4_000

	// MaxPathDepth bounds parent-link walks from a head snippet to the root.
	// Also guards against cycles introduced by a corrupted tree.
	MaxPathDepth = 10_000
)

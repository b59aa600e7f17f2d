package story

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"plotline/internal/config"
	storyModels "plotline/internal/domain/models/story"
)

var branchNamePattern = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

var (
	storyRules = []validation.Rule{
		validation.Required,
		validation.Length(1, config.MaxStoryNameLength),
	}
	optionalBranchRules = []validation.Rule{
		validation.Length(0, config.MaxBranchNameLength),
		validation.Match(branchNamePattern).Error("may only contain letters, digits, '.', '_', '/' and '-'"),
	}
	branchNameRules = append([]validation.Rule{validation.Required}, optionalBranchRules...)
	contentRules    = []validation.Rule{
		validation.Length(0, config.MaxSnippetContentLength),
	}
	kindRules = []validation.Rule{
		validation.In(storyModels.KindUser, storyModels.KindAI).Error("must be 'user' or 'ai'"),
	}
)

// branchOrDefault returns name, or "main" when empty
func branchOrDefault(name string) string {
	if name == "" {
		return storyModels.DefaultBranch
	}
	return name
}

// kindOrDefault treats an omitted kind as user-authored
func kindOrDefault(kind storyModels.SnippetKind) storyModels.SnippetKind {
	if kind == "" {
		return storyModels.KindUser
	}
	return kind
}

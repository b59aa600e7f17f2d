package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"plotline/internal/cache"
	"plotline/internal/config"
	"plotline/internal/domain"
	storyModels "plotline/internal/domain/models/story"
	"plotline/internal/domain/repositories"
	storyRepo "plotline/internal/domain/repositories/story"
	"plotline/internal/domain/services/generation"
	storyServices "plotline/internal/domain/services/story"
)

// snippetService implements the SnippetService interface
type snippetService struct {
	snippetRepo storyRepo.SnippetRepository
	branchRepo  storyRepo.BranchRepository
	txManager   repositories.TransactionManager
	generator   generation.Generator
	pathCache   cache.PathCache
	logger      *slog.Logger
	maxDepth    int
}

// Option adjusts a snippet service
type Option func(*snippetService)

// WithMaxPathDepth bounds the number of snippets on any root-to-leaf path.
// Defaults to config.MaxPathDepth.
func WithMaxPathDepth(n int) Option {
	return func(s *snippetService) {
		if n > 0 {
			s.maxDepth = n
		}
	}
}

// NewSnippetService creates a new snippet service.
// A nil pathCache disables caching.
func NewSnippetService(
	snippetRepo storyRepo.SnippetRepository,
	branchRepo storyRepo.BranchRepository,
	txManager repositories.TransactionManager,
	generator generation.Generator,
	pathCache cache.PathCache,
	logger *slog.Logger,
	opts ...Option,
) storyServices.SnippetService {
	if pathCache == nil {
		pathCache = cache.Noop{}
	}
	s := &snippetService{
		snippetRepo: snippetRepo,
		branchRepo:  branchRepo,
		txManager:   txManager,
		generator:   generator,
		pathCache:   pathCache,
		logger:      logger,
		maxDepth:    config.MaxPathDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetPath returns the root-to-head path for an explicit head or a branch
func (s *snippetService) GetPath(ctx context.Context, req *storyServices.GetPathRequest) (*storyModels.PathResult, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Story, storyRules...),
		validation.Field(&req.Branch, optionalBranchRules...),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if req.HeadID != nil && *req.HeadID != "" {
		selector := "head:" + *req.HeadID
		cached, version, ok := s.pathCache.Get(ctx, req.Story, selector)
		if ok {
			return cached, nil
		}

		path, err := s.snippetRepo.GetPath(ctx, *req.HeadID)
		if err != nil {
			return nil, err
		}
		if path[len(path)-1].Story != req.Story {
			return nil, fmt.Errorf("snippet %s in story %q: %w", *req.HeadID, req.Story, domain.ErrNotFound)
		}

		result := storyModels.NewPathResult(path)
		s.pathCache.Set(ctx, req.Story, selector, version, result)
		return result, nil
	}

	branchName := branchOrDefault(req.Branch)
	selector := "branch:" + branchName
	// The version is read before the store so a concurrent write wins
	cached, version, ok := s.pathCache.Get(ctx, req.Story, selector)
	if ok {
		return cached, nil
	}

	branch, err := s.branchRepo.Get(ctx, req.Story, branchName)
	if err != nil {
		// A story without main has not been written yet
		if errors.Is(err, domain.ErrNotFound) && branchName == storyModels.DefaultBranch {
			return storyModels.NewPathResult(nil), nil
		}
		return nil, err
	}

	path, err := s.snippetRepo.GetPath(ctx, branch.HeadID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		// main outlives the last snippet of its story, which reads as empty
		empty, emptyErr := s.mainOutlivedStory(ctx, req.Story, branchName)
		if emptyErr != nil {
			return nil, emptyErr
		}
		if !empty {
			return nil, fmt.Errorf("branch %q head %s no longer exists: %w", branchName, branch.HeadID, domain.ErrNotFound)
		}
		path = nil
	}

	result := storyModels.NewPathResult(path)
	s.pathCache.Set(ctx, req.Story, selector, version, result)
	return result, nil
}

// Append creates a snippet under the given parent or the branch head
func (s *snippetService) Append(ctx context.Context, req *storyServices.AppendRequest) (*storyModels.Snippet, error) {
	req.Kind = kindOrDefault(req.Kind)
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Story, storyRules...),
		validation.Field(&req.Content, contentRules...),
		validation.Field(&req.Kind, kindRules...),
		validation.Field(&req.Branch, optionalBranchRules...),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	branchName := branchOrDefault(req.Branch)
	var created *storyModels.Snippet

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		branch, err := s.findBranch(txCtx, req.Story, branchName)
		if err != nil {
			return err
		}

		parentID := req.ParentID
		if parentID != nil && *parentID == "" {
			parentID = nil
		}
		fromHead := false
		if parentID == nil && branch != nil {
			parentID = &branch.HeadID
			fromHead = true
		}

		var parent *storyModels.Snippet
		restart := false
		if parentID != nil {
			parent, err = s.getInStory(txCtx, req.Story, *parentID)
			if err != nil {
				if !fromHead || !errors.Is(err, domain.ErrNotFound) {
					return err
				}
				empty, emptyErr := s.mainOutlivedStory(txCtx, req.Story, branchName)
				if emptyErr != nil {
					return emptyErr
				}
				if !empty {
					return err
				}
				// the story starts over from a new root
				parent = nil
				restart = true
			}
		} else if branchName != storyModels.DefaultBranch {
			// A new root only starts a story; other branches need a head to grow from
			mainBranch, err := s.findBranch(txCtx, req.Story, storyModels.DefaultBranch)
			if err != nil {
				return err
			}
			if mainBranch != nil {
				return fmt.Errorf("branch %s/%s: %w", req.Story, branchName, domain.ErrNotFound)
			}
		}

		if parent != nil {
			if err := s.checkAppendDepth(txCtx, parent.ID); err != nil {
				return err
			}
		}

		snippet := &storyModels.Snippet{
			Story:   req.Story,
			Kind:    req.Kind,
			Content: req.Content,
		}
		if parent != nil {
			snippet.ParentID = &parent.ID
		}
		if err := s.snippetRepo.Create(txCtx, snippet); err != nil {
			return err
		}

		if parent != nil {
			if err := s.snippetRepo.SetActiveChild(txCtx, parent.ID, &snippet.ID); err != nil {
				return err
			}
		}

		switch {
		case branch == nil:
			if err := s.startStoryBranches(txCtx, req.Story, branchName, snippet.ID); err != nil {
				return err
			}
		case restart, parent != nil && branch.HeadID == parent.ID:
			if err := s.branchRepo.UpdateHead(txCtx, req.Story, branchName, snippet.ID); err != nil {
				return err
			}
		}

		created = snippet
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.pathCache.Invalidate(ctx, req.Story)
	s.logger.Info("snippet appended",
		"story", req.Story,
		"branch", branchName,
		"snippet_id", created.ID,
		"parent_id", created.ParentID,
		"kind", created.Kind,
	)
	return created, nil
}

// InsertAbove creates N between the target and its parent
func (s *snippetService) InsertAbove(ctx context.Context, req *storyServices.InsertRequest) (*storyModels.Snippet, error) {
	if err := s.validateInsertRequest(req); err != nil {
		return nil, err
	}

	var created *storyModels.Snippet
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		target, err := s.getInStory(txCtx, req.Story, req.TargetID)
		if err != nil {
			return err
		}
		if err := s.checkInsertDepth(txCtx, req.Story, anchorOf(target), target.ID); err != nil {
			return err
		}

		inserted := &storyModels.Snippet{
			Story:    req.Story,
			ParentID: target.ParentID,
			Kind:     req.Kind,
			Content:  req.Content,
		}
		if err := s.snippetRepo.Create(txCtx, inserted); err != nil {
			return err
		}

		if target.ParentID != nil {
			parent, err := s.snippetRepo.Get(txCtx, *target.ParentID)
			if err != nil {
				return err
			}
			if parent.ChildID != nil && *parent.ChildID == target.ID {
				if err := s.snippetRepo.SetActiveChild(txCtx, parent.ID, &inserted.ID); err != nil {
					return err
				}
			}
		}

		if err := s.snippetRepo.SetParent(txCtx, target.ID, &inserted.ID); err != nil {
			return err
		}
		if err := s.snippetRepo.SetActiveChild(txCtx, inserted.ID, &target.ID); err != nil {
			return err
		}
		inserted.ChildID = &target.ID

		created = inserted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.pathCache.Invalidate(ctx, req.Story)
	s.logger.Info("snippet inserted above",
		"story", req.Story,
		"snippet_id", created.ID,
		"target_id", req.TargetID,
	)
	return created, nil
}

// InsertBelow creates N under the target, adopting the target's active child
func (s *snippetService) InsertBelow(ctx context.Context, req *storyServices.InsertRequest) (*storyModels.Snippet, error) {
	if err := s.validateInsertRequest(req); err != nil {
		return nil, err
	}

	branchName := branchOrDefault(req.Branch)
	var created *storyModels.Snippet

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		parent, err := s.getInStory(txCtx, req.Story, req.TargetID)
		if err != nil {
			return err
		}
		shifted := ""
		if parent.ChildID != nil {
			shifted = *parent.ChildID
		}
		if err := s.checkInsertDepth(txCtx, req.Story, parent.ID, shifted); err != nil {
			return err
		}

		inserted := &storyModels.Snippet{
			Story:    req.Story,
			ParentID: &parent.ID,
			Kind:     req.Kind,
			Content:  req.Content,
		}
		if err := s.snippetRepo.Create(txCtx, inserted); err != nil {
			return err
		}

		if parent.ChildID != nil {
			activeID := *parent.ChildID
			if err := s.snippetRepo.SetParent(txCtx, activeID, &inserted.ID); err != nil {
				return err
			}
			if err := s.snippetRepo.SetActiveChild(txCtx, inserted.ID, &activeID); err != nil {
				return err
			}
			inserted.ChildID = &activeID
		}
		if err := s.snippetRepo.SetActiveChild(txCtx, parent.ID, &inserted.ID); err != nil {
			return err
		}

		branch, err := s.findBranch(txCtx, req.Story, branchName)
		if err != nil {
			return err
		}
		if branch != nil && branch.HeadID == parent.ID {
			if err := s.branchRepo.UpdateHead(txCtx, req.Story, branchName, inserted.ID); err != nil {
				return err
			}
		}

		created = inserted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.pathCache.Invalidate(ctx, req.Story)
	s.logger.Info("snippet inserted below",
		"story", req.Story,
		"branch", branchName,
		"snippet_id", created.ID,
		"parent_id", req.TargetID,
	)
	return created, nil
}

// Update changes content and/or kind in place
func (s *snippetService) Update(ctx context.Context, id string, req *storyServices.UpdateRequest) (*storyModels.Snippet, error) {
	if req.Content == nil && req.Kind == nil {
		return nil, fmt.Errorf("%w: content or kind is required", domain.ErrValidation)
	}
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Content, contentRules...),
		validation.Field(&req.Kind, kindRules...),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	snippet, err := s.snippetRepo.UpdateContent(ctx, id, req.Content, req.Kind)
	if err != nil {
		return nil, err
	}

	s.pathCache.Invalidate(ctx, snippet.Story)
	s.logger.Debug("snippet updated", "story", snippet.Story, "snippet_id", id)
	return snippet, nil
}

// Delete removes a snippet, splicing its children up to its parent.
// Branch pointers naming the snippet are left as they are.
func (s *snippetService) Delete(ctx context.Context, storyName, id string) error {
	if err := validation.Validate(storyName, storyRules...); err != nil {
		return fmt.Errorf("%w: story %v", domain.ErrValidation, err)
	}

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		target, err := s.getInStory(txCtx, storyName, id)
		if err != nil {
			return err
		}

		children, err := s.snippetRepo.ListChildren(txCtx, target.ID)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := s.snippetRepo.SetParent(txCtx, child.ID, target.ParentID); err != nil {
				return err
			}
		}

		if target.ParentID != nil {
			parent, err := s.snippetRepo.Get(txCtx, *target.ParentID)
			if err != nil {
				return err
			}
			if parent.ChildID != nil && *parent.ChildID == target.ID {
				if err := s.snippetRepo.SetActiveChild(txCtx, parent.ID, target.ChildID); err != nil {
					return err
				}
			}
		}

		return s.snippetRepo.Delete(txCtx, target.ID)
	})
	if err != nil {
		return err
	}

	s.pathCache.Invalidate(ctx, storyName)
	s.logger.Info("snippet deleted", "story", storyName, "snippet_id", id)
	return nil
}

// Regenerate creates an ai sibling of the target from the text before it
func (s *snippetService) Regenerate(ctx context.Context, req *storyServices.RegenerateRequest) (*storyModels.Snippet, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Story, storyRules...),
		validation.Field(&req.TargetID, validation.Required),
		validation.Field(&req.Model, validation.Required),
		validation.Field(&req.Instruction, validation.Length(0, config.MaxInstructionLength)),
		validation.Field(&req.Context, contentRules...),
		validation.Field(&req.Branch, optionalBranchRules...),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	target, err := s.getInStory(ctx, req.Story, req.TargetID)
	if err != nil {
		return nil, err
	}

	draft := ""
	if target.ParentID != nil {
		before, err := s.snippetRepo.GetPath(ctx, *target.ParentID)
		if err != nil {
			return nil, err
		}
		draft = storyModels.NewPathResult(before).Text
	}

	// Generation runs outside the transaction; it can take minutes
	resp, err := s.generator.Generate(ctx, &generation.ProviderRequest{
		Model:       req.Model,
		DraftText:   draft,
		Instruction: req.Instruction,
		Context:     req.Context,
		Params:      req.Params,
	})
	if err != nil {
		return nil, err
	}

	branchName := branchOrDefault(req.Branch)
	var created *storyModels.Snippet

	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		// The target may have moved or vanished while generating
		current, err := s.getInStory(txCtx, req.Story, req.TargetID)
		if err != nil {
			return err
		}

		sibling := &storyModels.Snippet{
			Story:    req.Story,
			ParentID: current.ParentID,
			Kind:     storyModels.KindAI,
			Content:  resp.Text,
		}
		if err := s.snippetRepo.Create(txCtx, sibling); err != nil {
			return err
		}
		if current.ParentID != nil {
			if err := s.snippetRepo.SetActiveChild(txCtx, *current.ParentID, &sibling.ID); err != nil {
				return err
			}
		}

		onBranch, err := s.branchPathContains(txCtx, req.Story, branchName, current.ID)
		if err != nil {
			return err
		}
		if onBranch {
			if err := s.branchRepo.UpdateHead(txCtx, req.Story, branchName, sibling.ID); err != nil {
				return err
			}
		}

		created = sibling
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.pathCache.Invalidate(ctx, req.Story)
	s.logger.Info("snippet regenerated",
		"story", req.Story,
		"branch", branchName,
		"snippet_id", created.ID,
		"target_id", req.TargetID,
		"model", resp.Model,
	)
	return created, nil
}

// GetTree lists each parent with its children in creation order
func (s *snippetService) GetTree(ctx context.Context, storyName string) ([]storyModels.TreeEntry, error) {
	if err := validation.Validate(storyName, storyRules...); err != nil {
		return nil, fmt.Errorf("%w: story %v", domain.ErrValidation, err)
	}

	snippets, err := s.snippetRepo.ListByStory(ctx, storyName)
	if err != nil {
		return nil, err
	}
	return storyModels.BuildTree(snippets), nil
}

// ChooseActiveChild moves the parent's active pointer; siblings are kept
func (s *snippetService) ChooseActiveChild(ctx context.Context, req *storyServices.ChooseActiveChildRequest) error {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Story, storyRules...),
		validation.Field(&req.ParentID, validation.Required),
		validation.Field(&req.ChildID, validation.Required),
		validation.Field(&req.Branch, optionalBranchRules...),
	); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if _, err := s.getInStory(txCtx, req.Story, req.ParentID); err != nil {
			return err
		}
		child, err := s.getInStory(txCtx, req.Story, req.ChildID)
		if err != nil {
			return err
		}
		if child.ParentID == nil || *child.ParentID != req.ParentID {
			return fmt.Errorf("%w: snippet %s is not a child of %s", domain.ErrValidation, req.ChildID, req.ParentID)
		}

		if err := s.snippetRepo.SetActiveChild(txCtx, req.ParentID, &req.ChildID); err != nil {
			return err
		}

		if req.Branch == "" {
			return nil
		}
		onBranch, err := s.branchPathContains(txCtx, req.Story, req.Branch, req.ParentID)
		if err != nil || !onBranch {
			return err
		}
		leaf, err := s.descend(txCtx, req.ChildID)
		if err != nil {
			return err
		}
		return s.branchRepo.UpdateHead(txCtx, req.Story, req.Branch, leaf)
	})
	if err != nil {
		return err
	}

	s.pathCache.Invalidate(ctx, req.Story)
	s.logger.Info("active child chosen",
		"story", req.Story,
		"branch", req.Branch,
		"parent_id", req.ParentID,
		"child_id", req.ChildID,
	)
	return nil
}

func (s *snippetService) validateInsertRequest(req *storyServices.InsertRequest) error {
	req.Kind = kindOrDefault(req.Kind)
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Story, storyRules...),
		validation.Field(&req.TargetID, validation.Required),
		validation.Field(&req.Content, contentRules...),
		validation.Field(&req.Kind, kindRules...),
		validation.Field(&req.Branch, optionalBranchRules...),
	); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

// getInStory loads a snippet and hides snippets of other stories
func (s *snippetService) getInStory(ctx context.Context, storyName, id string) (*storyModels.Snippet, error) {
	snippet, err := s.snippetRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if snippet.Story != storyName {
		return nil, fmt.Errorf("snippet %s in story %q: %w", id, storyName, domain.ErrNotFound)
	}
	return snippet, nil
}

// findBranch returns nil, nil for a missing branch
func (s *snippetService) findBranch(ctx context.Context, storyName, name string) (*storyModels.Branch, error) {
	branch, err := s.branchRepo.Get(ctx, storyName, name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return branch, err
}

// startStoryBranches points a missing branch (and main, if absent) at the first snippet
func (s *snippetService) startStoryBranches(ctx context.Context, storyName, branchName, headID string) error {
	names := []string{branchName}
	if branchName != storyModels.DefaultBranch {
		mainBranch, err := s.findBranch(ctx, storyName, storyModels.DefaultBranch)
		if err != nil {
			return err
		}
		if mainBranch == nil {
			names = append(names, storyModels.DefaultBranch)
		}
	}

	for _, name := range names {
		branch := &storyModels.Branch{Story: storyName, Name: name, HeadID: headID}
		if err := s.branchRepo.Create(ctx, branch); err != nil {
			return err
		}
		s.logger.Info("branch started", "story", storyName, "branch", name, "head_id", headID)
	}
	return nil
}

// mainOutlivedStory reports whether branchName is main and no snippet of the
// story is left, the state after deleting a story's only snippet.
func (s *snippetService) mainOutlivedStory(ctx context.Context, storyName, branchName string) (bool, error) {
	if branchName != storyModels.DefaultBranch {
		return false, nil
	}
	snippets, err := s.snippetRepo.ListByStory(ctx, storyName)
	if err != nil {
		return false, err
	}
	return len(snippets) == 0, nil
}

// branchPathContains reports whether the branch's current path visits id.
// Missing branches and orphaned heads contain nothing.
func (s *snippetService) branchPathContains(ctx context.Context, storyName, branchName, id string) (bool, error) {
	branch, err := s.findBranch(ctx, storyName, branchName)
	if err != nil || branch == nil {
		return false, err
	}
	path, err := s.snippetRepo.GetPath(ctx, branch.HeadID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return storyModels.NewPathResult(path).Contains(id), nil
}

// descend follows active-child links down to a leaf
func (s *snippetService) descend(ctx context.Context, id string) (string, error) {
	current := id
	for depth := 0; depth < s.maxDepth; depth++ {
		snippet, err := s.snippetRepo.Get(ctx, current)
		if err != nil {
			return "", err
		}
		if snippet.ChildID == nil {
			return current, nil
		}
		current = *snippet.ChildID
	}
	return "", fmt.Errorf("%w: active path below %s exceeds %d snippets", domain.ErrValidation, id, s.maxDepth)
}

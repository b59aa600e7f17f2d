package story

import (
	"context"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"plotline/internal/cache"
	"plotline/internal/domain"
	storyModels "plotline/internal/domain/models/story"
	storyRepo "plotline/internal/domain/repositories/story"
	storyServices "plotline/internal/domain/services/story"
)

// branchService implements the BranchService interface
type branchService struct {
	branchRepo  storyRepo.BranchRepository
	snippetRepo storyRepo.SnippetRepository
	pathCache   cache.PathCache
	logger      *slog.Logger
}

// NewBranchService creates a new branch service
func NewBranchService(
	branchRepo storyRepo.BranchRepository,
	snippetRepo storyRepo.SnippetRepository,
	pathCache cache.PathCache,
	logger *slog.Logger,
) storyServices.BranchService {
	if pathCache == nil {
		pathCache = cache.Noop{}
	}
	return &branchService{
		branchRepo:  branchRepo,
		snippetRepo: snippetRepo,
		pathCache:   pathCache,
		logger:      logger,
	}
}

// ListBranches returns the story's branches
func (s *branchService) ListBranches(ctx context.Context, storyName string) ([]storyModels.Branch, error) {
	if err := validation.Validate(storyName, storyRules...); err != nil {
		return nil, fmt.Errorf("%w: story %v", domain.ErrValidation, err)
	}
	return s.branchRepo.List(ctx, storyName)
}

// GetBranch returns one branch
func (s *branchService) GetBranch(ctx context.Context, storyName, name string) (*storyModels.Branch, error) {
	return s.branchRepo.Get(ctx, storyName, name)
}

// CreateBranch registers a named pointer at an existing snippet
func (s *branchService) CreateBranch(ctx context.Context, req *storyServices.CreateBranchRequest) (*storyModels.Branch, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Story, storyRules...),
		validation.Field(&req.Name, branchNameRules...),
		validation.Field(&req.HeadID, validation.Required),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if err := s.requireHead(ctx, req.Story, req.HeadID); err != nil {
		return nil, err
	}

	branch := &storyModels.Branch{
		Story:  req.Story,
		Name:   req.Name,
		HeadID: req.HeadID,
	}
	if err := s.branchRepo.Create(ctx, branch); err != nil {
		return nil, err
	}

	s.logger.Info("branch created",
		"story", req.Story,
		"branch", req.Name,
		"head_id", req.HeadID,
	)
	return branch, nil
}

// MoveBranch points an existing branch at another snippet of the story
func (s *branchService) MoveBranch(ctx context.Context, req *storyServices.MoveBranchRequest) (*storyModels.Branch, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Story, storyRules...),
		validation.Field(&req.Name, branchNameRules...),
		validation.Field(&req.HeadID, validation.Required),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if err := s.requireHead(ctx, req.Story, req.HeadID); err != nil {
		return nil, err
	}
	if err := s.branchRepo.UpdateHead(ctx, req.Story, req.Name, req.HeadID); err != nil {
		return nil, err
	}
	s.pathCache.Invalidate(ctx, req.Story)

	s.logger.Info("branch moved",
		"story", req.Story,
		"branch", req.Name,
		"head_id", req.HeadID,
	)
	return s.branchRepo.Get(ctx, req.Story, req.Name)
}

// requireHead checks that headID names a snippet of storyName
func (s *branchService) requireHead(ctx context.Context, storyName, headID string) error {
	head, err := s.snippetRepo.Get(ctx, headID)
	if err != nil {
		return err
	}
	if head.Story != storyName {
		return fmt.Errorf("snippet %s in story %q: %w", headID, storyName, domain.ErrNotFound)
	}
	return nil
}

// DeleteBranch removes the pointer only; main cannot be deleted
func (s *branchService) DeleteBranch(ctx context.Context, storyName, name string) error {
	if name == storyModels.DefaultBranch {
		return fmt.Errorf("%w: the %q branch cannot be deleted", domain.ErrValidation, storyModels.DefaultBranch)
	}

	if err := s.branchRepo.Delete(ctx, storyName, name); err != nil {
		return err
	}

	s.pathCache.Invalidate(ctx, storyName)
	s.logger.Info("branch deleted", "story", storyName, "branch", name)
	return nil
}

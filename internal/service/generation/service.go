package generation

import (
	"context"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"plotline/internal/config"
	"plotline/internal/domain"
	storyModels "plotline/internal/domain/models/story"
	domaingen "plotline/internal/domain/services/generation"
	storyServices "plotline/internal/domain/services/story"
)

// storyWriter is the slice of the snippet service a persisted continuation needs
type storyWriter interface {
	GetPath(ctx context.Context, req *storyServices.GetPathRequest) (*storyModels.PathResult, error)
	Append(ctx context.Context, req *storyServices.AppendRequest) (*storyModels.Snippet, error)
}

// service implements domaingen.Service
type service struct {
	generator    domaingen.Generator
	stories      storyWriter
	defaultModel string
	logger       *slog.Logger
}

// NewService creates the continuation service
func NewService(
	generator domaingen.Generator,
	stories storyWriter,
	defaultModel string,
	logger *slog.Logger,
) domaingen.Service {
	return &service{
		generator:    generator,
		stories:      stories,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// Continue generates a continuation and, unless PreviewOnly, appends it to the story
func (s *service) Continue(ctx context.Context, req *domaingen.ContinueRequest) (*domaingen.ContinueResponse, error) {
	if req.Model == "" {
		req.Model = s.defaultModel
	}
	if err := s.validateContinueRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	draft := req.DraftText
	if draft == "" && req.Story != "" {
		// Persisting callers may leave the draft to the server
		path, err := s.stories.GetPath(ctx, &storyServices.GetPathRequest{Story: req.Story, Branch: req.Branch})
		if err != nil {
			return nil, err
		}
		draft = path.Text
	}

	resp, err := s.generator.Generate(ctx, &domaingen.ProviderRequest{
		Model:       req.Model,
		DraftText:   draft,
		Instruction: req.Instruction,
		Context:     req.Context,
		Params:      req.Params,
	})
	if err != nil {
		return nil, err
	}

	result := &domaingen.ContinueResponse{
		Continuation: resp.Text,
		Model:        resp.Model,
	}
	if req.PreviewOnly {
		return result, nil
	}

	snippet, err := s.stories.Append(ctx, &storyServices.AppendRequest{
		Story:   req.Story,
		Content: resp.Text,
		Kind:    storyModels.KindAI,
		Branch:  req.Branch,
	})
	if err != nil {
		return nil, err
	}
	result.Snippet = snippet

	s.logger.Info("continuation persisted",
		"story", req.Story,
		"branch", req.Branch,
		"snippet_id", snippet.ID,
		"model", resp.Model,
	)
	return result, nil
}

func (s *service) validateContinueRequest(req *domaingen.ContinueRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Model, validation.Required),
		validation.Field(&req.DraftText, validation.Length(0, config.MaxSnippetContentLength*4)),
		validation.Field(&req.Instruction, validation.Length(0, config.MaxInstructionLength)),
		validation.Field(&req.Context, validation.Length(0, config.MaxSnippetContentLength)),
		validation.Field(&req.Story,
			validation.When(!req.PreviewOnly, validation.Required),
			validation.Length(0, config.MaxStoryNameLength),
		),
		validation.Field(&req.Params, validation.By(validateParams)),
	)
}

func validateParams(value interface{}) error {
	params, _ := value.(domaingen.ModelParams)
	if params.Temperature != nil && (*params.Temperature < 0 || *params.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	if params.MaxTokens != nil && *params.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative")
	}
	return nil
}

package handler

import (
	"log/slog"
	"net/http"

	"plotline/internal/domain"
	"plotline/internal/domain/models/story"
	storySvc "plotline/internal/domain/services/story"
	"plotline/internal/httputil"
)

// BranchHandler handles branch pointer HTTP requests
type BranchHandler struct {
	branchService storySvc.BranchService
	logger        *slog.Logger
}

// NewBranchHandler creates a new branch handler
func NewBranchHandler(branchService storySvc.BranchService, logger *slog.Logger) *BranchHandler {
	return &BranchHandler{
		branchService: branchService,
		logger:        logger,
	}
}

// ListBranches lists a story's branches
// GET /api/stories/{story}/branches
func (h *BranchHandler) ListBranches(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "story")
	if !ok {
		return
	}

	branches, err := h.branchService.ListBranches(r.Context(), params[0])
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, branches)
}

// CreateBranch registers a named pointer
// POST /api/stories/{story}/branches
// Returns 201 if created, 409 with the existing branch if the name is taken
func (h *BranchHandler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "story")
	if !ok {
		return
	}

	var req storySvc.CreateBranchRequest
	if !parseBody(w, r, &req) {
		return
	}
	req.Story = params[0]

	branch, err := h.branchService.CreateBranch(r.Context(), &req)
	if err != nil {
		HandleCreateConflict(w, err, func(conflict *domain.ConflictError) (*story.Branch, error) {
			return h.branchService.GetBranch(r.Context(), req.Story, conflict.ResourceID)
		})
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, branch)
}

// MoveBranch repoints a branch at another snippet
// PUT /api/stories/{story}/branches/{name}
func (h *BranchHandler) MoveBranch(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "story", "name")
	if !ok {
		return
	}

	var req storySvc.MoveBranchRequest
	if !parseBody(w, r, &req) {
		return
	}
	req.Story = params[0]
	req.Name = params[1]

	branch, err := h.branchService.MoveBranch(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, branch)
}

// DeleteBranch removes a named pointer
// DELETE /api/stories/{story}/branches/{name}
func (h *BranchHandler) DeleteBranch(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "story", "name")
	if !ok {
		return
	}

	if err := h.branchService.DeleteBranch(r.Context(), params[0], params[1]); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondNoContent(w)
}

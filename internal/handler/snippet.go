package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"plotline/internal/domain"
	"plotline/internal/domain/models/story"
	storySvc "plotline/internal/domain/services/story"
	"plotline/internal/httputil"
)

// SnippetHandler handles snippet tree HTTP requests
type SnippetHandler struct {
	snippetService storySvc.SnippetService
	logger         *slog.Logger
}

// NewSnippetHandler creates a new snippet handler
func NewSnippetHandler(snippetService storySvc.SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{
		snippetService: snippetService,
		logger:         logger,
	}
}

// GetPath returns the root-to-head path of a branch or explicit head
// GET /api/stories/{story}/path?branch=&head_id=
func (h *SnippetHandler) GetPath(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "story")
	if !ok {
		return
	}

	query := r.URL.Query()
	req := &storySvc.GetPathRequest{
		Story:  params[0],
		Branch: query.Get("branch"),
	}
	if headID := query.Get("head_id"); headID != "" {
		req.HeadID = &headID
	}

	result, err := h.snippetService.GetPath(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// GetTree lists every parent with its children
// GET /api/stories/{story}/tree
func (h *SnippetHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "story")
	if !ok {
		return
	}

	tree, err := h.snippetService.GetTree(r.Context(), params[0])
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, tree)
}

// Append creates a snippet under parent_id or the branch head
// POST /api/stories/{story}/snippets
func (h *SnippetHandler) Append(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "story")
	if !ok {
		return
	}

	var req storySvc.AppendRequest
	if !parseBody(w, r, &req) {
		return
	}
	req.Story = params[0]

	snippet, err := h.snippetService.Append(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, snippet)
}

// InsertAbove creates a snippet between {id} and its parent
// POST /api/stories/{story}/snippets/{id}/insert-above
func (h *SnippetHandler) InsertAbove(w http.ResponseWriter, r *http.Request) {
	h.insert(w, r, h.snippetService.InsertAbove)
}

// InsertBelow creates a snippet between {id} and its active child
// POST /api/stories/{story}/snippets/{id}/insert-below
func (h *SnippetHandler) InsertBelow(w http.ResponseWriter, r *http.Request) {
	h.insert(w, r, h.snippetService.InsertBelow)
}

type insertFunc func(ctx context.Context, req *storySvc.InsertRequest) (*story.Snippet, error)

func (h *SnippetHandler) insert(w http.ResponseWriter, r *http.Request, op insertFunc) {
	params, ok := pathParams(w, r, "story", "id")
	if !ok {
		return
	}

	var req storySvc.InsertRequest
	if !parseBody(w, r, &req) {
		return
	}
	req.Story = params[0]
	req.TargetID = params[1]

	snippet, err := op(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, snippet)
}

// Regenerate creates an ai alternative to {id}
// POST /api/stories/{story}/snippets/{id}/regenerate
func (h *SnippetHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "story", "id")
	if !ok {
		return
	}

	var req storySvc.RegenerateRequest
	if !parseBody(w, r, &req) {
		return
	}
	req.Story = params[0]
	req.TargetID = params[1]

	snippet, err := h.snippetService.Regenerate(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, snippet)
}

// ChooseActiveChild switches which child of {id} is active
// PUT /api/stories/{story}/snippets/{id}/active-child
func (h *SnippetHandler) ChooseActiveChild(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "story", "id")
	if !ok {
		return
	}

	var req storySvc.ChooseActiveChildRequest
	if !parseBody(w, r, &req) {
		return
	}
	req.Story = params[0]
	req.ParentID = params[1]

	if err := h.snippetService.ChooseActiveChild(r.Context(), &req); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondNoContent(w)
}

// Delete removes a snippet and splices its children up
// DELETE /api/stories/{story}/snippets/{id}
func (h *SnippetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "story", "id")
	if !ok {
		return
	}

	if err := h.snippetService.Delete(r.Context(), params[0], params[1]); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondNoContent(w)
}

// updateSnippetBody is the PATCH body; absent fields are left unchanged
type updateSnippetBody struct {
	Content httputil.OptionalString `json:"content"`
	Kind    httputil.OptionalString `json:"kind"`
}

// Update changes content and/or kind. Also the keepalive flush target.
// PATCH /api/snippets/{id}
func (h *SnippetHandler) Update(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "id")
	if !ok {
		return
	}

	var body updateSnippetBody
	if !parseBody(w, r, &body) {
		return
	}
	if body.Content.IsNull() || body.Kind.IsNull() {
		handleError(w, fmt.Errorf("%w: content and kind cannot be null", domain.ErrValidation))
		return
	}

	req := &storySvc.UpdateRequest{Content: body.Content.Ptr()}
	if kind := body.Kind.Ptr(); kind != nil {
		k := story.SnippetKind(*kind)
		req.Kind = &k
	}

	snippet, err := h.snippetService.Update(r.Context(), params[0], req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, snippet)
}

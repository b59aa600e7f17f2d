package handler

import (
	"log/slog"
	"net/http"

	"plotline/internal/domain/services/generation"
	"plotline/internal/httputil"
)

// GenerationHandler serves continuation requests
type GenerationHandler struct {
	generationService generation.Service
	logger            *slog.Logger
}

// NewGenerationHandler creates a new generation handler
func NewGenerationHandler(generationService generation.Service, logger *slog.Logger) *GenerationHandler {
	return &GenerationHandler{
		generationService: generationService,
		logger:            logger,
	}
}

// Continue generates the next passage of a draft
// POST /api/generate/continue
func (h *GenerationHandler) Continue(w http.ResponseWriter, r *http.Request) {
	var req generation.ContinueRequest
	if !parseBody(w, r, &req) {
		return
	}

	resp, err := h.generationService.Continue(r.Context(), &req)
	if err != nil {
		h.logger.Warn("continuation failed", "model", req.Model, "story", req.Story, "error", err)
		handleError(w, err)
		return
	}

	status := http.StatusOK
	if resp.Snippet != nil {
		status = http.StatusCreated
	}
	httputil.RespondJSON(w, status, resp)
}

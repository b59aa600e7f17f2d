package handler

import (
	"log/slog"
	"net/http"

	"plotline/internal/capabilities"
	"plotline/internal/httputil"
)

// ModelLister reports the models this server can generate with
type ModelLister interface {
	Available() []capabilities.ModelCapabilities
}

// ModelsHandler lists continuation models
type ModelsHandler struct {
	lister       ModelLister
	defaultModel string
	logger       *slog.Logger
}

// NewModelsHandler creates a new models handler
func NewModelsHandler(lister ModelLister, defaultModel string, logger *slog.Logger) *ModelsHandler {
	return &ModelsHandler{lister: lister, defaultModel: defaultModel, logger: logger}
}

// ModelsResponse is the body of GET /api/models
type ModelsResponse struct {
	DefaultModel string                           `json:"default_model"`
	Models       []capabilities.ModelCapabilities `json:"models"`
}

// List returns the models of every registered provider
// GET /api/models
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	models := h.lister.Available()
	if models == nil {
		models = []capabilities.ModelCapabilities{}
	}
	httputil.RespondJSON(w, http.StatusOK, ModelsResponse{DefaultModel: h.defaultModel, Models: models})
}

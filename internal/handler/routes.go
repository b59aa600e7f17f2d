package handler

import (
	"net/http"

	"plotline/internal/httputil"
)

// Handlers bundles the route handlers
type Handlers struct {
	Snippets   *SnippetHandler
	Branches   *BranchHandler
	Generation *GenerationHandler
	Models     *ModelsHandler
}

// RegisterRoutes mounts every API route on mux
func RegisterRoutes(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Snippet tree
	mux.HandleFunc("GET /api/stories/{story}/path", h.Snippets.GetPath)
	mux.HandleFunc("GET /api/stories/{story}/tree", h.Snippets.GetTree)
	mux.HandleFunc("POST /api/stories/{story}/snippets", h.Snippets.Append)
	mux.HandleFunc("POST /api/stories/{story}/snippets/{id}/insert-above", h.Snippets.InsertAbove)
	mux.HandleFunc("POST /api/stories/{story}/snippets/{id}/insert-below", h.Snippets.InsertBelow)
	mux.HandleFunc("POST /api/stories/{story}/snippets/{id}/regenerate", h.Snippets.Regenerate)
	mux.HandleFunc("PUT /api/stories/{story}/snippets/{id}/active-child", h.Snippets.ChooseActiveChild)
	mux.HandleFunc("DELETE /api/stories/{story}/snippets/{id}", h.Snippets.Delete)
	mux.HandleFunc("PATCH /api/snippets/{id}", h.Snippets.Update)

	// Branches
	mux.HandleFunc("GET /api/stories/{story}/branches", h.Branches.ListBranches)
	mux.HandleFunc("POST /api/stories/{story}/branches", h.Branches.CreateBranch)
	mux.HandleFunc("PUT /api/stories/{story}/branches/{name...}", h.Branches.MoveBranch)
	mux.HandleFunc("DELETE /api/stories/{story}/branches/{name...}", h.Branches.DeleteBranch)

	// Generation
	mux.HandleFunc("POST /api/generate/continue", h.Generation.Continue)
	if h.Models != nil {
		mux.HandleFunc("GET /api/models", h.Models.List)
	}
}

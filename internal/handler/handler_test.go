package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"plotline/internal/capabilities"
	"plotline/internal/domain/models/story"
	"plotline/internal/repository/memory"
	generationSvc "plotline/internal/service/generation"
	"plotline/internal/service/generation/providers/lorem"
	storyService "plotline/internal/service/story"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	caps, err := capabilities.NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	registry := generationSvc.NewProviderRegistry(caps, logger)
	registry.Register(lorem.NewProvider(nil))

	store := memory.NewStore()
	snippets := memory.NewSnippetRepository(store)
	branches := memory.NewBranchRepository(store)
	snippetService := storyService.NewSnippetService(snippets, branches, store, registry, nil, logger)
	branchService := storyService.NewBranchService(branches, snippets, nil, logger)
	generationService := generationSvc.NewService(registry, snippetService, "lorem-fast", logger)

	mux := http.NewServeMux()
	RegisterRoutes(mux, &Handlers{
		Snippets:   NewSnippetHandler(snippetService, logger),
		Branches:   NewBranchHandler(branchService, logger),
		Generation: NewGenerationHandler(generationService, logger),
		Models:     NewModelsHandler(registry, "lorem-fast", logger),
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, server *httptest.Server, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	server := newTestServer(t)
	var body map[string]string
	if status := doJSON(t, server, http.MethodGet, "/health", nil, &body); status != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", status, body)
	}
}

func TestListModels(t *testing.T) {
	server := newTestServer(t)

	var body ModelsResponse
	if status := doJSON(t, server, http.MethodGet, "/api/models", nil, &body); status != http.StatusOK {
		t.Fatalf("models status = %d", status)
	}
	if body.DefaultModel != "lorem-fast" {
		t.Errorf("default model = %q", body.DefaultModel)
	}
	// Only lorem is registered, so no anthropic models are offered
	if len(body.Models) != 2 {
		t.Fatalf("models = %+v", body.Models)
	}
	for _, m := range body.Models {
		if m.Provider != "lorem" {
			t.Errorf("model %s from unregistered provider %s", m.ID, m.Provider)
		}
	}
}

func TestSnippetLifecycle(t *testing.T) {
	server := newTestServer(t)

	var a story.Snippet
	if status := doJSON(t, server, http.MethodPost, "/api/stories/Demo/snippets",
		map[string]any{"content": "Once upon a time", "kind": "user"}, &a); status != http.StatusCreated {
		t.Fatalf("append status = %d", status)
	}

	var n story.Snippet
	if status := doJSON(t, server, http.MethodPost, "/api/stories/Demo/snippets/"+a.ID+"/insert-below",
		map[string]any{"content": "A storm arrived."}, &n); status != http.StatusCreated {
		t.Fatalf("insert-below status = %d", status)
	}

	var path story.PathResult
	if status := doJSON(t, server, http.MethodGet, "/api/stories/Demo/path?branch=main", nil, &path); status != http.StatusOK {
		t.Fatalf("path status = %d", status)
	}
	if len(path.Path) != 2 || path.Path[1].ID != n.ID || path.Text != "Once upon a time\n\nA storm arrived." {
		t.Fatalf("unexpected path %+v", path)
	}

	var updated story.Snippet
	if status := doJSON(t, server, http.MethodPatch, "/api/snippets/"+n.ID,
		map[string]any{"content": "A gale arrived."}, &updated); status != http.StatusOK {
		t.Fatalf("update status = %d", status)
	}
	if updated.Content != "A gale arrived." || updated.Kind != story.KindUser {
		t.Errorf("unexpected update %+v", updated)
	}

	if status := doJSON(t, server, http.MethodPatch, "/api/snippets/"+n.ID,
		map[string]any{"content": nil}, nil); status != http.StatusBadRequest {
		t.Errorf("null content status = %d, want 400", status)
	}

	if status := doJSON(t, server, http.MethodDelete, "/api/stories/Demo/snippets/"+n.ID, nil, nil); status != http.StatusNoContent {
		t.Fatalf("delete status = %d", status)
	}

	var problem map[string]any
	if status := doJSON(t, server, http.MethodGet, "/api/stories/Demo/path", nil, &problem); status != http.StatusNotFound {
		t.Errorf("orphaned head status = %d, want 404", status)
	}
	if problem["title"] != "Not Found" {
		t.Errorf("problem body = %v", problem)
	}
}

func TestActiveChildAndTree(t *testing.T) {
	server := newTestServer(t)

	var root, first story.Snippet
	doJSON(t, server, http.MethodPost, "/api/stories/Demo/snippets", map[string]any{"content": "root"}, &root)
	doJSON(t, server, http.MethodPost, "/api/stories/Demo/snippets", map[string]any{"content": "first"}, &first)

	var regenerated story.Snippet
	if status := doJSON(t, server, http.MethodPost, "/api/stories/Demo/snippets/"+first.ID+"/regenerate",
		map[string]any{"model": "lorem-fast", "params": map[string]any{"max_tokens": 5}}, &regenerated); status != http.StatusCreated {
		t.Fatalf("regenerate status = %d", status)
	}
	if regenerated.Kind != story.KindAI {
		t.Errorf("regenerated kind = %s", regenerated.Kind)
	}

	if status := doJSON(t, server, http.MethodPut, "/api/stories/Demo/snippets/"+root.ID+"/active-child",
		map[string]any{"child_id": first.ID, "branch": "main"}, nil); status != http.StatusNoContent {
		t.Fatalf("active-child status = %d", status)
	}

	var tree []story.TreeEntry
	if status := doJSON(t, server, http.MethodGet, "/api/stories/Demo/tree", nil, &tree); status != http.StatusOK {
		t.Fatalf("tree status = %d", status)
	}
	if len(tree) != 1 || len(tree[0].Children) != 2 {
		t.Fatalf("unexpected tree %+v", tree)
	}
	if !tree[0].Children[0].Active || tree[0].Children[1].Active {
		t.Errorf("active flag should be on the first child: %+v", tree[0].Children)
	}

	var path story.PathResult
	doJSON(t, server, http.MethodGet, "/api/stories/Demo/path", nil, &path)
	if path.HeadID == nil || *path.HeadID != first.ID {
		t.Errorf("main head = %v, want %s", path.HeadID, first.ID)
	}

	if status := doJSON(t, server, http.MethodPut, "/api/stories/Demo/snippets/"+first.ID+"/active-child",
		map[string]any{"child_id": root.ID}, nil); status != http.StatusBadRequest {
		t.Errorf("non-child status = %d, want 400", status)
	}
}

func TestBranchRoutes(t *testing.T) {
	server := newTestServer(t)

	var a story.Snippet
	doJSON(t, server, http.MethodPost, "/api/stories/Demo/snippets", map[string]any{"content": "a"}, &a)

	var created story.Branch
	if status := doJSON(t, server, http.MethodPost, "/api/stories/Demo/branches",
		map[string]any{"name": "drafts/alt", "head_id": a.ID}, &created); status != http.StatusCreated {
		t.Fatalf("create status = %d", status)
	}

	var existing story.Branch
	if status := doJSON(t, server, http.MethodPost, "/api/stories/Demo/branches",
		map[string]any{"name": "drafts/alt", "head_id": a.ID}, &existing); status != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", status)
	}
	if existing.Name != "drafts/alt" || existing.HeadID != a.ID {
		t.Errorf("409 should carry the existing branch, got %+v", existing)
	}

	var branches []story.Branch
	doJSON(t, server, http.MethodGet, "/api/stories/Demo/branches", nil, &branches)
	if len(branches) != 2 {
		t.Errorf("branches = %+v", branches)
	}

	var b story.Snippet
	doJSON(t, server, http.MethodPost, "/api/stories/Demo/snippets", map[string]any{"content": "b"}, &b)
	var moved story.Branch
	if status := doJSON(t, server, http.MethodPut, "/api/stories/Demo/branches/drafts/alt",
		map[string]any{"head_id": b.ID}, &moved); status != http.StatusOK {
		t.Fatalf("move status = %d", status)
	}
	if moved.Name != "drafts/alt" || moved.HeadID != b.ID {
		t.Errorf("moved = %+v", moved)
	}

	if status := doJSON(t, server, http.MethodDelete, "/api/stories/Demo/branches/drafts/alt", nil, nil); status != http.StatusNoContent {
		t.Errorf("delete status = %d", status)
	}
	if status := doJSON(t, server, http.MethodDelete, "/api/stories/Demo/branches/main", nil, nil); status != http.StatusBadRequest {
		t.Errorf("delete main status = %d, want 400", status)
	}
}

func TestGenerateContinue(t *testing.T) {
	server := newTestServer(t)

	var preview struct {
		Continuation string         `json:"continuation"`
		Model        string         `json:"model"`
		Snippet      *story.Snippet `json:"snippet"`
	}
	if status := doJSON(t, server, http.MethodPost, "/api/generate/continue", map[string]any{
		"draft_text":   "Once upon a time",
		"preview_only": true,
		"params":       map[string]any{"max_tokens": 4},
	}, &preview); status != http.StatusOK {
		t.Fatalf("preview status = %d", status)
	}
	if preview.Continuation == "" || preview.Model != "lorem-fast" || preview.Snippet != nil {
		t.Errorf("unexpected preview %+v", preview)
	}

	var persisted struct {
		Snippet *story.Snippet `json:"snippet"`
	}
	if status := doJSON(t, server, http.MethodPost, "/api/generate/continue", map[string]any{
		"story": "Demo",
	}, &persisted); status != http.StatusCreated {
		t.Fatalf("persist status = %d", status)
	}
	if persisted.Snippet == nil || persisted.Snippet.Kind != story.KindAI {
		t.Errorf("expected ai snippet, got %+v", persisted.Snippet)
	}

	if status := doJSON(t, server, http.MethodPost, "/api/generate/continue", map[string]any{
		"preview_only": true, "model": "not-a-model",
	}, nil); status != http.StatusBadRequest {
		t.Errorf("unknown model status = %d, want 400", status)
	}
}

func TestInvalidBody(t *testing.T) {
	server := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/stories/Demo/snippets", bytes.NewReader([]byte("{")))
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %q", ct)
	}
}

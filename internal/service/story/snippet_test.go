package story

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"plotline/internal/domain"
	storyModels "plotline/internal/domain/models/story"
	"plotline/internal/domain/repositories"
	storyRepo "plotline/internal/domain/repositories/story"
	"plotline/internal/domain/services/generation"
	storyServices "plotline/internal/domain/services/story"
	"plotline/internal/repository/memory"
)

// fakeGenerator records requests and echoes a canned continuation
type fakeGenerator struct {
	mu       sync.Mutex
	requests []generation.ProviderRequest
	text     string
	err      error
}

func (g *fakeGenerator) Generate(ctx context.Context, req *generation.ProviderRequest) (*generation.ProviderResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, *req)
	if g.err != nil {
		return nil, g.err
	}
	return &generation.ProviderResponse{Text: g.text, Model: req.Model}, nil
}

// mapCache is an in-process PathCache with a per-story version counter
type mapCache struct {
	mu       sync.Mutex
	entries  map[string]map[string]*storyModels.PathResult
	versions map[string]int64
	hits     int
}

func newMapCache() *mapCache {
	return &mapCache{
		entries:  make(map[string]map[string]*storyModels.PathResult),
		versions: make(map[string]int64),
	}
}

func (c *mapCache) Get(_ context.Context, storyName, selector string) (*storyModels.PathResult, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[storyName][selector]
	if ok {
		c.hits++
	}
	return r, c.versions[storyName], ok
}

func (c *mapCache) Set(_ context.Context, storyName, selector string, version int64, result *storyModels.PathResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if version != c.versions[storyName] {
		return
	}
	if c.entries[storyName] == nil {
		c.entries[storyName] = make(map[string]*storyModels.PathResult)
	}
	c.entries[storyName][selector] = result
}

func (c *mapCache) Invalidate(_ context.Context, storyName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[storyName]++
	delete(c.entries, storyName)
}

type fixture struct {
	snippets  storyRepo.SnippetRepository
	branches  storyRepo.BranchRepository
	service   storyServices.SnippetService
	branchSvc storyServices.BranchService
	generator *fakeGenerator
	cache     *mapCache
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		snippets:  memory.NewSnippetRepository(store),
		branches:  memory.NewBranchRepository(store),
		generator: &fakeGenerator{text: "The storm broke."},
		cache:     newMapCache(),
	}
	f.service = NewSnippetService(f.snippets, f.branches, store, f.generator, f.cache, logger, opts...)
	f.branchSvc = NewBranchService(f.branches, f.snippets, f.cache, logger)
	return f
}

func (f *fixture) append(t *testing.T, content string, parentID *string, branch string) *storyModels.Snippet {
	t.Helper()
	s, err := f.service.Append(context.Background(), &storyServices.AppendRequest{
		Story:    "Demo",
		Content:  content,
		Kind:     storyModels.KindUser,
		ParentID: parentID,
		Branch:   branch,
	})
	if err != nil {
		t.Fatalf("Append(%q): %v", content, err)
	}
	return s
}

func (f *fixture) pathIDs(t *testing.T, branch string) []string {
	t.Helper()
	result, err := f.service.GetPath(context.Background(), &storyServices.GetPathRequest{Story: "Demo", Branch: branch})
	if err != nil {
		t.Fatalf("GetPath(%s): %v", branch, err)
	}
	ids := make([]string, len(result.Path))
	for i := range result.Path {
		ids[i] = result.Path[i].ID
	}
	return ids
}

func (f *fixture) get(t *testing.T, id string) *storyModels.Snippet {
	t.Helper()
	s, err := f.snippets.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return s
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestGetPath_EmptyStory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.GetPath(ctx, &storyServices.GetPathRequest{Story: "Demo"})
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}
	if len(result.Path) != 0 || result.HeadID != nil || result.Text != "" {
		t.Errorf("expected empty path, got %+v", result)
	}

	_, err = f.service.GetPath(ctx, &storyServices.GetPathRequest{Story: "Demo", Branch: "alt"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing branch err = %v, want ErrNotFound", err)
	}
}

func TestAppend_StartsStoryAndAdvancesHead(t *testing.T) {
	f := newFixture(t)

	a := f.append(t, "Once upon a time", nil, "")
	b := f.append(t, "A storm arrived.", nil, "")

	if got := f.pathIDs(t, ""); !equalIDs(got, []string{a.ID, b.ID}) {
		t.Fatalf("path = %v, want [a b]", got)
	}
	if child := f.get(t, a.ID).ChildID; child == nil || *child != b.ID {
		t.Errorf("a.child_id = %v, want %s", child, b.ID)
	}

	result, err := f.service.GetPath(context.Background(), &storyServices.GetPathRequest{Story: "Demo"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "Once upon a time\n\nA storm arrived." {
		t.Errorf("text = %q", result.Text)
	}
}

func TestAppend_UnderNonHeadParentForks(t *testing.T) {
	f := newFixture(t)

	a := f.append(t, "a", nil, "")
	b := f.append(t, "b", nil, "")
	fork := f.append(t, "fork", &a.ID, "")

	if got := f.pathIDs(t, ""); !equalIDs(got, []string{a.ID, b.ID}) {
		t.Errorf("main moved on fork: %v", got)
	}
	if child := f.get(t, a.ID).ChildID; child == nil || *child != fork.ID {
		t.Errorf("fork should become the active child, got %v", child)
	}
}

func TestAppend_NamedBranchNeedsExistingBranch(t *testing.T) {
	f := newFixture(t)
	f.append(t, "a", nil, "")

	_, err := f.service.Append(context.Background(), &storyServices.AppendRequest{
		Story: "Demo", Content: "x", Branch: "ghost",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAppend_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  storyServices.AppendRequest
	}{
		{name: "missing story", req: storyServices.AppendRequest{Content: "x"}},
		{name: "bad kind", req: storyServices.AppendRequest{Story: "Demo", Content: "x", Kind: "robot"}},
		{name: "bad branch", req: storyServices.AppendRequest{Story: "Demo", Content: "x", Branch: "no spaces"}},
		{name: "too long", req: storyServices.AppendRequest{Story: "Demo", Content: strings.Repeat("x", 200_001)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Append(context.Background(), &tt.req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestInsertBelow_AdvancesHeadAtParent(t *testing.T) {
	f := newFixture(t)
	a := f.append(t, "Once upon a time", nil, "")

	n, err := f.service.InsertBelow(context.Background(), &storyServices.InsertRequest{
		Story: "Demo", TargetID: a.ID, Content: "A storm arrived.",
	})
	if err != nil {
		t.Fatalf("InsertBelow: %v", err)
	}

	if got := f.pathIDs(t, ""); !equalIDs(got, []string{a.ID, n.ID}) {
		t.Errorf("path = %v, want [a n]", got)
	}
	if n.Kind != storyModels.KindUser {
		t.Errorf("default kind = %s, want user", n.Kind)
	}
}

func TestInsertBelow_AdoptsActiveChild(t *testing.T) {
	f := newFixture(t)
	a := f.append(t, "a", nil, "")
	c := f.append(t, "c", nil, "")
	other := f.append(t, "other", &a.ID, "")
	// Restore c as active so the insert adopts it
	if err := f.service.ChooseActiveChild(context.Background(), &storyServices.ChooseActiveChildRequest{
		Story: "Demo", ParentID: a.ID, ChildID: c.ID,
	}); err != nil {
		t.Fatal(err)
	}

	n, err := f.service.InsertBelow(context.Background(), &storyServices.InsertRequest{
		Story: "Demo", TargetID: a.ID, Content: "n",
	})
	if err != nil {
		t.Fatalf("InsertBelow: %v", err)
	}

	if got := f.pathIDs(t, ""); !equalIDs(got, []string{a.ID, n.ID, c.ID}) {
		t.Errorf("path = %v, want [a n c]", got)
	}
	if p := f.get(t, other.ID).ParentID; p == nil || *p != a.ID {
		t.Errorf("inactive sibling should stay under a, parent = %v", p)
	}
	if child := f.get(t, n.ID).ChildID; child == nil || *child != c.ID {
		t.Errorf("n.child_id = %v, want c", child)
	}
}

func TestInsertAbove(t *testing.T) {
	f := newFixture(t)
	a := f.append(t, "a", nil, "")
	c := f.append(t, "c", nil, "")

	n, err := f.service.InsertAbove(context.Background(), &storyServices.InsertRequest{
		Story: "Demo", TargetID: c.ID, Content: "n", Kind: storyModels.KindAI,
	})
	if err != nil {
		t.Fatalf("InsertAbove: %v", err)
	}

	if got := f.pathIDs(t, ""); !equalIDs(got, []string{a.ID, n.ID, c.ID}) {
		t.Errorf("path = %v, want [a n c]", got)
	}
	if child := f.get(t, a.ID).ChildID; child == nil || *child != n.ID {
		t.Errorf("a.child_id = %v, want n", child)
	}

	// Above the root makes a new root
	root, err := f.service.InsertAbove(context.Background(), &storyServices.InsertRequest{
		Story: "Demo", TargetID: a.ID, Content: "prologue",
	})
	if err != nil {
		t.Fatalf("InsertAbove root: %v", err)
	}
	if root.ParentID != nil {
		t.Errorf("new root has parent %v", *root.ParentID)
	}
	if got := f.pathIDs(t, ""); len(got) != 4 || got[0] != root.ID {
		t.Errorf("path = %v, want prologue first", got)
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	a := f.append(t, "draft", nil, "")
	ctx := context.Background()

	content := "final"
	updated, err := f.service.Update(ctx, a.ID, &storyServices.UpdateRequest{Content: &content})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Content != "final" || updated.Kind != storyModels.KindUser {
		t.Errorf("unexpected snippet %+v", updated)
	}

	if _, err := f.service.Update(ctx, a.ID, &storyServices.UpdateRequest{}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty patch err = %v, want ErrValidation", err)
	}
	if _, err := f.service.Update(ctx, "missing", &storyServices.UpdateRequest{Content: &content}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}
}

func TestDelete_SplicesChildren(t *testing.T) {
	f := newFixture(t)
	a := f.append(t, "a", nil, "")
	b := f.append(t, "b", nil, "")
	c := f.append(t, "c", nil, "")

	if err := f.service.Delete(context.Background(), "Demo", b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if got := f.pathIDs(t, ""); !equalIDs(got, []string{a.ID, c.ID}) {
		t.Errorf("path = %v, want [a c]", got)
	}
	if child := f.get(t, a.ID).ChildID; child == nil || *child != c.ID {
		t.Errorf("a.child_id = %v, want c", child)
	}
}

func TestDelete_HeadOrphansBranch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.append(t, "a", nil, "")
	b := f.append(t, "b", nil, "")

	if err := f.service.Delete(ctx, "Demo", b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err := f.service.GetPath(ctx, &storyServices.GetPathRequest{Story: "Demo"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("orphaned head err = %v, want ErrNotFound", err)
	}

	if err := f.service.Delete(ctx, "Other", b.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("deleted twice err = %v, want ErrNotFound", err)
	}
}

func TestRegenerate(t *testing.T) {
	f := newFixture(t)
	a := f.append(t, "Once upon a time", nil, "")
	b := f.append(t, "It was sunny.", nil, "")

	s, err := f.service.Regenerate(context.Background(), &storyServices.RegenerateRequest{
		Story:       "Demo",
		TargetID:    b.ID,
		Instruction: "make it stormy",
		Model:       "lorem-fast",
	})
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}

	if s.Kind != storyModels.KindAI || s.Content != "The storm broke." {
		t.Errorf("unexpected regenerated snippet %+v", s)
	}
	if s.ParentID == nil || *s.ParentID != a.ID {
		t.Errorf("regenerated snippet should be a sibling of the target")
	}
	if got := f.pathIDs(t, ""); !equalIDs(got, []string{a.ID, s.ID}) {
		t.Errorf("path = %v, want [a s]", got)
	}

	req := f.generator.requests[0]
	if req.DraftText != "Once upon a time" || req.Instruction != "make it stormy" {
		t.Errorf("generator saw %+v", req)
	}

	tree, err := f.service.GetTree(context.Background(), "Demo")
	if err != nil {
		t.Fatal(err)
	}
	if len(tree) != 1 || len(tree[0].Children) != 2 {
		t.Fatalf("target subtree should be kept: %+v", tree)
	}
}

func TestRegenerate_GeneratorFailureLeavesTree(t *testing.T) {
	f := newFixture(t)
	f.append(t, "a", nil, "")
	b := f.append(t, "b", nil, "")
	f.generator.err = errors.New("provider down")

	_, err := f.service.Regenerate(context.Background(), &storyServices.RegenerateRequest{
		Story: "Demo", TargetID: b.ID, Model: "lorem-fast",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	tree, _ := f.service.GetTree(context.Background(), "Demo")
	if len(tree) != 1 || len(tree[0].Children) != 1 {
		t.Errorf("tree changed on failure: %+v", tree)
	}
}

func TestChooseActiveChild_NonDestructive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := f.append(t, "parent", nil, "")
	childA := f.append(t, "A", nil, "")
	childB := f.append(t, "B", &parent.ID, "")
	grandB := f.append(t, "B2", &childB.ID, "")

	if err := f.service.ChooseActiveChild(ctx, &storyServices.ChooseActiveChildRequest{
		Story: "Demo", ParentID: parent.ID, ChildID: childA.ID,
	}); err != nil {
		t.Fatal(err)
	}

	if err := f.service.ChooseActiveChild(ctx, &storyServices.ChooseActiveChildRequest{
		Story: "Demo", ParentID: parent.ID, ChildID: childB.ID, Branch: "main",
	}); err != nil {
		t.Fatalf("ChooseActiveChild: %v", err)
	}

	tree, err := f.service.GetTree(ctx, "Demo")
	if err != nil {
		t.Fatal(err)
	}
	var entry *storyModels.TreeEntry
	for i := range tree {
		if tree[i].Parent.ID == parent.ID {
			entry = &tree[i]
		}
	}
	if entry == nil || len(entry.Children) != 2 {
		t.Fatalf("parent should still list both children: %+v", tree)
	}
	for _, child := range entry.Children {
		wantActive := child.ID == childB.ID
		if child.Active != wantActive {
			t.Errorf("child %s active = %v, want %v", child.Content, child.Active, wantActive)
		}
	}

	// main contained the parent, so its head follows the chosen subtree
	if got := f.pathIDs(t, "main"); !equalIDs(got, []string{parent.ID, childB.ID, grandB.ID}) {
		t.Errorf("path = %v, want [parent B B2]", got)
	}
}

func TestChooseActiveChild_RejectsNonChild(t *testing.T) {
	f := newFixture(t)
	a := f.append(t, "a", nil, "")
	b := f.append(t, "b", nil, "")

	err := f.service.ChooseActiveChild(context.Background(), &storyServices.ChooseActiveChildRequest{
		Story: "Demo", ParentID: b.ID, ChildID: a.ID,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestGetPath_ByHeadIDAndCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.append(t, "a", nil, "")
	b := f.append(t, "b", nil, "")

	result, err := f.service.GetPath(ctx, &storyServices.GetPathRequest{Story: "Demo", HeadID: &a.ID, Branch: "ignored"})
	if err != nil {
		t.Fatal(err)
	}
	if result.HeadID == nil || *result.HeadID != a.ID || len(result.Path) != 1 {
		t.Errorf("head_id should win over branch: %+v", result)
	}

	if _, err := f.service.GetPath(ctx, &storyServices.GetPathRequest{Story: "Other", HeadID: &b.ID}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cross-story head err = %v, want ErrNotFound", err)
	}

	f.pathIDs(t, "")
	f.pathIDs(t, "")
	if f.cache.hits == 0 {
		t.Error("expected cached path to be served")
	}

	c := f.append(t, "c", nil, "")
	if got := f.pathIDs(t, ""); !equalIDs(got, []string{a.ID, b.ID, c.ID}) {
		t.Errorf("stale cache after append: %v", got)
	}
}

func TestDelete_OnlySnippetLeavesEmptyStory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.append(t, "a", nil, "")

	if err := f.service.Delete(ctx, "Demo", a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := f.pathIDs(t, ""); len(got) != 0 {
		t.Fatalf("path after deleting the only snippet = %v, want empty", got)
	}

	b := f.append(t, "b", nil, "")
	if b.ParentID != nil {
		t.Errorf("restarted story should begin with a root, parent = %v", *b.ParentID)
	}
	if got := f.pathIDs(t, ""); !equalIDs(got, []string{b.ID}) {
		t.Errorf("main = %v, want [b]", got)
	}
	c := f.append(t, "c", nil, "")
	if got := f.pathIDs(t, ""); !equalIDs(got, []string{b.ID, c.ID}) {
		t.Errorf("main = %v, want [b c]", got)
	}
}

func TestGetPath_OrphanedMainWithSnippetsLeftIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.append(t, "a", nil, "")
	if _, err := f.branchSvc.CreateBranch(ctx, &storyServices.CreateBranchRequest{Story: "Demo", Name: "alt", HeadID: a.ID}); err != nil {
		t.Fatal(err)
	}
	alt := f.append(t, "alt only", nil, "alt")

	if err := f.service.Delete(ctx, "Demo", a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if f.get(t, alt.ID).ParentID != nil {
		t.Fatal("child of a deleted root should become a root")
	}

	_, err := f.service.GetPath(ctx, &storyServices.GetPathRequest{Story: "Demo"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("orphaned main err = %v, want ErrNotFound", err)
	}
	_, err = f.service.Append(ctx, &storyServices.AppendRequest{Story: "Demo", Content: "more", Kind: storyModels.KindUser})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("append to orphaned main err = %v, want ErrNotFound", err)
	}
}

// racingRepo runs onGetPath once, after the first path read
type racingRepo struct {
	storyRepo.SnippetRepository
	once      sync.Once
	onGetPath func()
}

func (r *racingRepo) GetPath(ctx context.Context, headID string) ([]storyModels.Snippet, error) {
	path, err := r.SnippetRepository.GetPath(ctx, headID)
	r.once.Do(r.onGetPath)
	return path, err
}

func TestGetPath_WriteDuringReadIsNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.append(t, "a", nil, "")

	var c *storyModels.Snippet
	racing := &racingRepo{SnippetRepository: f.snippets}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewSnippetService(racing, f.branches, noTx{}, f.generator, f.cache, logger)
	racing.onGetPath = func() {
		c = f.append(t, "c", nil, "")
	}

	stale, err := service.GetPath(ctx, &storyServices.GetPathRequest{Story: "Demo"})
	if err != nil {
		t.Fatal(err)
	}
	if len(stale.Path) != 1 {
		t.Fatalf("first read = %d snippets, want the pre-write path", len(stale.Path))
	}

	got, err := service.GetPath(ctx, &storyServices.GetPathRequest{Story: "Demo"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Path) != 2 || got.Path[0].ID != a.ID || got.Path[1].ID != c.ID {
		t.Errorf("second read served the path read before the write: %+v", got.Path)
	}
}

// noTx runs fn directly
type noTx struct{}

func (noTx) ExecTx(ctx context.Context, fn repositories.TxFn) error { return fn(ctx) }

func TestDepthLimit(t *testing.T) {
	const limit = 3

	tests := []struct {
		name    string
		run     func(f *fixture, chain []*storyModels.Snippet) error
		wantErr error
	}{
		{
			name: "append under a snippet at the limit",
			run: func(f *fixture, chain []*storyModels.Snippet) error {
				_, err := f.service.Append(context.Background(), &storyServices.AppendRequest{Story: "Demo", Content: "x"})
				return err
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "append under a shallower snippet",
			run: func(f *fixture, chain []*storyModels.Snippet) error {
				_, err := f.service.Append(context.Background(), &storyServices.AppendRequest{Story: "Demo", Content: "x", ParentID: &chain[1].ID})
				return err
			},
		},
		{
			name: "insert below the root pushes the leaf past the limit",
			run: func(f *fixture, chain []*storyModels.Snippet) error {
				_, err := f.service.InsertBelow(context.Background(), &storyServices.InsertRequest{Story: "Demo", TargetID: chain[0].ID, Content: "x"})
				return err
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "insert above the root pushes the leaf past the limit",
			run: func(f *fixture, chain []*storyModels.Snippet) error {
				_, err := f.service.InsertAbove(context.Background(), &storyServices.InsertRequest{Story: "Demo", TargetID: chain[0].ID, Content: "x"})
				return err
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "regenerate keeps the depth",
			run: func(f *fixture, chain []*storyModels.Snippet) error {
				_, err := f.service.Regenerate(context.Background(), &storyServices.RegenerateRequest{Story: "Demo", TargetID: chain[2].ID, Model: "lorem-fast"})
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, WithMaxPathDepth(limit))
			var chain []*storyModels.Snippet
			for i := 0; i < limit; i++ {
				chain = append(chain, f.append(t, "part", nil, ""))
			}
			before := f.pathIDs(t, "")

			err := tt.run(f, chain)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("err = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got := f.pathIDs(t, ""); !equalIDs(got, before) {
				t.Errorf("rejected write changed main: %v", got)
			}
		})
	}
}

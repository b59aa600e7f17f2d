package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"plotline/internal/domain"
	"plotline/internal/domain/models/story"
)

func strPtr(s string) *string { return &s }

func mustCreate(t *testing.T, repo interface {
	Create(context.Context, *story.Snippet) error
}, s *story.Snippet) *story.Snippet {
	t.Helper()
	if err := repo.Create(context.Background(), s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return s
}

func TestSnippetRepository_PathAndChildren(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewSnippetRepository(store)

	root := mustCreate(t, repo, &story.Snippet{Story: "Demo", Kind: story.KindUser, Content: "Once"})
	a := mustCreate(t, repo, &story.Snippet{Story: "Demo", ParentID: &root.ID, Kind: story.KindAI, Content: "A"})
	b := mustCreate(t, repo, &story.Snippet{Story: "Demo", ParentID: &root.ID, Kind: story.KindAI, Content: "B"})

	path, err := repo.GetPath(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}
	if len(path) != 2 || path[0].ID != root.ID || path[1].ID != b.ID {
		t.Fatalf("unexpected path: %+v", path)
	}

	children, err := repo.ListChildren(ctx, root.ID)
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(children) != 2 || children[0].ID != a.ID || children[1].ID != b.ID {
		t.Fatalf("children out of creation order: %+v", children)
	}

	if _, err := repo.GetPath(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetPath(missing) err = %v, want ErrNotFound", err)
	}
}

func TestSnippetRepository_SetParentRejectsCycle(t *testing.T) {
	ctx := context.Background()
	repo := NewSnippetRepository(NewStore())

	root := mustCreate(t, repo, &story.Snippet{Story: "Demo", Kind: story.KindUser, Content: "root"})
	child := mustCreate(t, repo, &story.Snippet{Story: "Demo", ParentID: &root.ID, Kind: story.KindUser, Content: "child"})

	err := repo.SetParent(ctx, root.ID, &child.ID)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("SetParent cycle err = %v, want ErrValidation", err)
	}
}

func TestSnippetRepository_SetActiveChildRequiresChild(t *testing.T) {
	ctx := context.Background()
	repo := NewSnippetRepository(NewStore())

	root := mustCreate(t, repo, &story.Snippet{Story: "Demo", Kind: story.KindUser, Content: "root"})
	other := mustCreate(t, repo, &story.Snippet{Story: "Demo", Kind: story.KindUser, Content: "other root"})

	if err := repo.SetActiveChild(ctx, root.ID, &other.ID); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("SetActiveChild(non-child) err = %v, want ErrValidation", err)
	}
}

func TestStore_ExecTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	snippets := NewSnippetRepository(store)
	branches := NewBranchRepository(store)

	root := mustCreate(t, snippets, &story.Snippet{Story: "Demo", Kind: story.KindUser, Content: "root"})

	boom := errors.New("boom")
	err := store.ExecTx(ctx, func(ctx context.Context) error {
		if _, err := snippets.UpdateContent(ctx, root.ID, strPtr("changed"), nil); err != nil {
			return err
		}
		if err := branches.Create(ctx, &story.Branch{Story: "Demo", Name: "main", HeadID: root.ID}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("ExecTx err = %v, want boom", err)
	}

	got, err := snippets.Get(ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "root" {
		t.Errorf("content = %q after rollback, want root", got.Content)
	}
	if _, err := branches.Get(ctx, "Demo", "main"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("branch survived rollback: %v", err)
	}
}

func TestBranchRepository_Conflict(t *testing.T) {
	ctx := context.Background()
	repo := NewBranchRepository(NewStore())

	if err := repo.Create(ctx, &story.Branch{Story: "Demo", Name: "main", HeadID: "a"}); err != nil {
		t.Fatal(err)
	}
	err := repo.Create(ctx, &story.Branch{Story: "Demo", Name: "main", HeadID: "b"})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if conflict.ResourceID != "main" {
		t.Errorf("ResourceID = %q", conflict.ResourceID)
	}

	// Same name in another story is fine
	if err := repo.Create(ctx, &story.Branch{Story: "Other", Name: "main", HeadID: "c"}); err != nil {
		t.Errorf("Create in other story: %v", err)
	}
}

func TestSnippetRepository_GetPathDepthLimit(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.SetMaxPathDepth(3)
	repo := NewSnippetRepository(store)

	var ids []string
	var parent *string
	for i := 0; i < 4; i++ {
		s := mustCreate(t, repo, &story.Snippet{Story: "Demo", ParentID: parent, Kind: story.KindUser, Content: "part"})
		ids = append(ids, s.ID)
		parent = &s.ID
	}

	tests := []struct {
		name    string
		head    string
		wantLen int
		wantErr error
	}{
		{name: "below the limit", head: ids[1], wantLen: 2},
		{name: "at the limit", head: ids[2], wantLen: 3},
		{name: "past the limit", head: ids[3], wantErr: domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := repo.GetPath(ctx, tt.head)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(path) != tt.wantLen || path[0].ID != ids[0] {
				t.Errorf("path = %d snippets from %s, want %d from the root", len(path), path[0].ID, tt.wantLen)
			}
		})
	}
}

func TestStore_WriteOutsideTxSurvivesRollback(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	snippets := NewSnippetRepository(store)
	root := mustCreate(t, snippets, &story.Snippet{Story: "Demo", Kind: story.KindUser, Content: "root"})

	entered := make(chan struct{})
	release := make(chan struct{})
	txDone := make(chan error, 1)
	boom := errors.New("boom")
	go func() {
		txDone <- store.ExecTx(ctx, func(ctx context.Context) error {
			close(entered)
			<-release
			return boom
		})
	}()
	<-entered

	updated := make(chan error, 1)
	go func() {
		_, err := snippets.UpdateContent(ctx, root.ID, strPtr("edited"), nil)
		updated <- err
	}()

	select {
	case err := <-updated:
		t.Fatalf("UpdateContent finished inside a running transaction: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-txDone; !errors.Is(err, boom) {
		t.Fatalf("ExecTx err = %v, want boom", err)
	}
	if err := <-updated; err != nil {
		t.Fatalf("UpdateContent: %v", err)
	}

	got, err := snippets.Get(ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "edited" {
		t.Errorf("content = %q, the rollback discarded a concurrent edit", got.Content)
	}
}

func TestStore_NestedExecTxJoins(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	snippets := NewSnippetRepository(store)

	err := store.ExecTx(ctx, func(ctx context.Context) error {
		return store.ExecTx(ctx, func(ctx context.Context) error {
			return snippets.Create(ctx, &story.Snippet{Story: "Demo", Kind: story.KindUser, Content: "nested"})
		})
	})
	if err != nil {
		t.Fatalf("nested ExecTx: %v", err)
	}
	if got, _ := snippets.ListByStory(ctx, "Demo"); len(got) != 1 {
		t.Errorf("snippets = %d, want 1", len(got))
	}
}

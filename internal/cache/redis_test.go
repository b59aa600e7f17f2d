package cache

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"plotline/internal/domain/models/story"
)

func setupTestCache(t *testing.T) (*RedisPathCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewRedisPathCache("redis://"+s.Addr(), time.Minute, slog.Default())
	if err != nil {
		t.Fatalf("failed to create path cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func samplePath() *story.PathResult {
	parent := "a"
	return story.NewPathResult([]story.Snippet{
		{ID: "a", Story: "Demo", Kind: story.KindUser, Content: "Once upon a time", ChildID: strPtr("b")},
		{ID: "b", Story: "Demo", ParentID: &parent, Kind: story.KindAI, Content: "A storm arrived."},
	})
}

func strPtr(s string) *string { return &s }

func TestRedisPathCache_SetGet(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	_, version, ok := c.Get(ctx, "Demo", "main")
	if ok {
		t.Fatal("expected miss on empty cache")
	}
	if version != 0 {
		t.Fatalf("version = %d, want 0 for a fresh story", version)
	}

	c.Set(ctx, "Demo", "main", version, samplePath())

	got, _, ok := c.Get(ctx, "Demo", "main")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if got.HeadID == nil || *got.HeadID != "b" {
		t.Errorf("head_id = %v, want b", got.HeadID)
	}
	if got.Text != "Once upon a time\n\nA storm arrived." {
		t.Errorf("unexpected text %q", got.Text)
	}
	if len(got.Path) != 2 || got.Path[1].ParentID == nil || *got.Path[1].ParentID != "a" {
		t.Errorf("unexpected path %+v", got.Path)
	}
}

// fill reads the version on a miss and stores under it, as GetPath does
func fill(t *testing.T, c PathCache, storyName string) {
	t.Helper()
	ctx := context.Background()
	_, version, _ := c.Get(ctx, storyName, "main")
	c.Set(ctx, storyName, "main", version, samplePath())
}

func TestRedisPathCache_InvalidateIsPerStory(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	fill(t, c, "Demo")
	fill(t, c, "Other")

	c.Invalidate(ctx, "Demo")

	if _, _, ok := c.Get(ctx, "Demo", "main"); ok {
		t.Error("expected miss for invalidated story")
	}
	if _, _, ok := c.Get(ctx, "Other", "main"); !ok {
		t.Error("expected hit for untouched story")
	}

	fill(t, c, "Demo")
	if _, _, ok := c.Get(ctx, "Demo", "main"); !ok {
		t.Error("expected hit after re-populating under the new version")
	}
}

func TestRedisPathCache_SetAfterInvalidateIsDropped(t *testing.T) {
	tests := []struct {
		name        string
		invalidates int
		wantHit     bool
	}{
		{name: "no write in between", invalidates: 0, wantHit: true},
		{name: "one write in between", invalidates: 1, wantHit: false},
		{name: "several writes in between", invalidates: 3, wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := setupTestCache(t)
			ctx := context.Background()

			// miss, then a writer commits and invalidates before the reader stores
			_, version, ok := c.Get(ctx, "Demo", "main")
			if ok {
				t.Fatal("expected miss on empty cache")
			}
			for i := 0; i < tt.invalidates; i++ {
				c.Invalidate(ctx, "Demo")
			}
			c.Set(ctx, "Demo", "main", version, samplePath())

			if _, _, ok := c.Get(ctx, "Demo", "main"); ok != tt.wantHit {
				t.Errorf("hit = %v, want %v", ok, tt.wantHit)
			}
		})
	}
}

func TestRedisPathCache_Expiry(t *testing.T) {
	c, s := setupTestCache(t)
	ctx := context.Background()

	fill(t, c, "Demo")
	s.FastForward(2 * time.Minute)

	if _, _, ok := c.Get(ctx, "Demo", "main"); ok {
		t.Error("expected miss after ttl")
	}
}

func TestRedisPathCache_BackendDown(t *testing.T) {
	c, s := setupTestCache(t)
	ctx := context.Background()

	fill(t, c, "Demo")
	s.Close()

	// Failures degrade to misses
	_, version, ok := c.Get(ctx, "Demo", "main")
	if ok {
		t.Error("expected miss with backend down")
	}
	if version >= 0 {
		t.Errorf("version = %d, want negative when the counter is unreadable", version)
	}
	c.Set(ctx, "Demo", "main", 0, samplePath())
	c.Invalidate(ctx, "Demo")
}

func TestRedisPathCache_CorruptEntry(t *testing.T) {
	c, s := setupTestCache(t)
	ctx := context.Background()

	if err := s.Set(pathKey("Demo", 0, "main"), "{not json"); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := c.Get(ctx, "Demo", "main"); ok {
		t.Error("expected miss for corrupt entry")
	}
}

func TestNoop(t *testing.T) {
	var c PathCache = Noop{}
	ctx := context.Background()
	fill(t, c, "Demo")
	if _, _, ok := c.Get(ctx, "Demo", "main"); ok {
		t.Error("noop cache should never hit")
	}
}

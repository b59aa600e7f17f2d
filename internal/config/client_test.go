package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadClient(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg, err := LoadClient(filepath.Join(t.TempDir(), "nope.yaml"))
		if err != nil {
			t.Fatalf("LoadClient: %v", err)
		}
		if cfg.Branch != "main" {
			t.Errorf("Branch = %q, want main", cfg.Branch)
		}
		if cfg.SaveDelay != 400*time.Millisecond {
			t.Errorf("SaveDelay = %v, want 400ms", cfg.SaveDelay)
		}
		if cfg.GenerationTimeout != 2*time.Minute {
			t.Errorf("GenerationTimeout = %v, want 2m", cfg.GenerationTimeout)
		}
	})

	t.Run("file values and env overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "storyctl.yaml")
		content := "server_url: http://example.test\nstory: Saga\nsave_delay: 250ms\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("PLOTLINE_BRANCH", "draft")

		cfg, err := LoadClient(path)
		if err != nil {
			t.Fatalf("LoadClient: %v", err)
		}
		if cfg.ServerURL != "http://example.test" {
			t.Errorf("ServerURL = %q", cfg.ServerURL)
		}
		if cfg.Story != "Saga" {
			t.Errorf("Story = %q", cfg.Story)
		}
		if cfg.Branch != "draft" {
			t.Errorf("Branch = %q, want env override", cfg.Branch)
		}
		if cfg.SaveDelay != 250*time.Millisecond {
			t.Errorf("SaveDelay = %v", cfg.SaveDelay)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("story: [unterminated"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadClient(path); err == nil {
			t.Fatal("expected parse error")
		}
	})
}

func TestGetTablePrefix(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"prod", "prod_"},
		{"test", "test_"},
		{"dev", "dev_"},
		{"staging", "dev_"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("TABLE_PREFIX", "")
			if got := getTablePrefix(tt.env); got != tt.want {
				t.Errorf("getTablePrefix(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

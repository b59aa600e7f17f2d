package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig configures storyctl and any other process embedding the editor session.
type ClientConfig struct {
	ServerURL         string        `yaml:"server_url"`
	Story             string        `yaml:"story"`
	Branch            string        `yaml:"branch"`
	Model             string        `yaml:"model"`
	SaveDelay         time.Duration `yaml:"save_delay"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
	JournalPath       string        `yaml:"journal_path"`
}

// DefaultClientConfig returns the settings used when no file is present.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL:         "http://localhost:8080",
		Story:             "Demo",
		Branch:            "main",
		Model:             "lorem-fast",
		SaveDelay:         400 * time.Millisecond,
		RequestTimeout:    15 * time.Second,
		GenerationTimeout: 2 * time.Minute,
		JournalPath:       defaultJournalPath(),
	}
}

// DefaultClientConfigPath is ~/.storyctl.yaml
func DefaultClientConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".storyctl.yaml"
	}
	return filepath.Join(home, ".storyctl.yaml")
}

func defaultJournalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".storyctl", "journal.db")
	}
	return filepath.Join(home, ".storyctl", "journal.db")
}

// LoadClient reads the YAML file at path (a missing file is not an error),
// then applies PLOTLINE_* environment overrides.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.ServerURL = getEnv("PLOTLINE_SERVER_URL", cfg.ServerURL)
	cfg.Story = getEnv("PLOTLINE_STORY", cfg.Story)
	cfg.Branch = getEnv("PLOTLINE_BRANCH", cfg.Branch)
	cfg.Model = getEnv("PLOTLINE_MODEL", cfg.Model)
	cfg.JournalPath = getEnv("PLOTLINE_JOURNAL", cfg.JournalPath)

	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.SaveDelay <= 0 {
		cfg.SaveDelay = 400 * time.Millisecond
	}

	return cfg, nil
}

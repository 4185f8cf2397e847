package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lectern/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if cfg.Workflow.PollInterval != 5 {
		t.Fatalf("poll interval default = %d", cfg.Workflow.PollInterval)
	}
	if cfg.Workflow.IdleBackoffFactor != 1.5 {
		t.Fatalf("backoff factor default = %v", cfg.Workflow.IdleBackoffFactor)
	}
	if cfg.Workflow.PromotionBatch != 10 {
		t.Fatalf("promotion batch default = %d", cfg.Workflow.PromotionBatch)
	}
}

func TestLoadParsesAndExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[workflow]
poll_interval = 2
max_poll_interval = 10

[ingest]
allowed_extensions = ["PDF", " .txt "]
default_language = "DE"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.Workflow.PollInterval != 2 {
		t.Fatalf("poll interval = %d", cfg.Workflow.PollInterval)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("data dir not absolute: %q", cfg.Paths.DataDir)
	}
	if got := cfg.Ingest.AllowedExtensions; len(got) != 2 || got[0] != ".pdf" || got[1] != ".txt" {
		t.Fatalf("extensions = %v", got)
	}
	if cfg.Ingest.DefaultLanguage != "de" {
		t.Fatalf("language = %q", cfg.Ingest.DefaultLanguage)
	}
}

func TestValidateRejectsBadWorkflow(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Workflow.MaxPollInterval = 1
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "max_poll_interval") {
		t.Fatalf("expected max_poll_interval error, got %v", err)
	}
}

func TestValidateRequiresInboxDirWhenEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Ingest.InboxEnabled = true
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "inbox_dir") {
		t.Fatalf("expected inbox_dir error, got %v", err)
	}
}

func TestExtensionAllowed(t *testing.T) {
	cfg := config.Default()
	if !cfg.ExtensionAllowed("book.PDF") {
		t.Fatal("expected .pdf allowed case-insensitively")
	}
	if cfg.ExtensionAllowed("book.epub") {
		t.Fatal("expected .epub rejected")
	}
	if cfg.ExtensionAllowed("no-extension") {
		t.Fatal("expected bare name rejected")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.DocumentsDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q, err=%v", dir, err)
		}
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("create sample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[workflow]") {
		t.Fatal("sample missing workflow section")
	}
}

package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"lectern/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.InboxDir = filepath.Join(base, "inbox")
	return &cfg
}

func TestOpenAppliesMigrations(t *testing.T) {
	handle, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer handle.Close()

	tables := []string{
		"pipelines", "pipeline_tasks", "checkpoints",
		"documents", "document_pages", "chunks",
		"levels", "topics", "topic_mappings",
		"drafts", "candidates", "validated_items",
		"approved_items", "rejected_items", "review_queue",
		"transformation_jobs", "gate_failures", "lifecycle_events",
		"work_items",
	}
	for _, table := range tables {
		var name string
		err := handle.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("expected table %q to exist: %v", table, err)
		}
	}

	var applied int
	if err := handle.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
		t.Fatalf("count schema_migrations: %v", err)
	}
	if applied == 0 {
		t.Fatal("expected at least one recorded migration")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	cfg := testConfig(t)

	first, err := Open(cfg)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	first.Close()

	second, err := Open(cfg)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer second.Close()

	var applied int
	if err := second.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
		t.Fatalf("count schema_migrations: %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected migrations to apply once, got %d rows", applied)
	}
}

func TestSeededLevels(t *testing.T) {
	handle, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer handle.Close()

	var count int
	if err := handle.QueryRow(
		"SELECT COUNT(*) FROM levels WHERE language = 'es'",
	).Scan(&count); err != nil {
		t.Fatalf("count levels: %v", err)
	}
	if count != 6 {
		t.Fatalf("expected 6 seeded Spanish levels, got %d", count)
	}

	var name string
	if err := handle.QueryRow(
		"SELECT name FROM levels WHERE code = 'A1' AND language = 'es'",
	).Scan(&name); err != nil {
		t.Fatalf("lookup A1: %v", err)
	}
	if name != "Principiante" {
		t.Fatalf("unexpected A1 name %q", name)
	}
}

func TestCheckHealth(t *testing.T) {
	handle, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer handle.Close()

	health, err := handle.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth returned error: %v", err)
	}
	if !health.Exists || !health.Readable || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestParseTimeFormats(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	stored := FormatTime(now)

	parsed, err := ParseTime(stored)
	if err != nil {
		t.Fatalf("ParseTime(%q): %v", stored, err)
	}
	if !parsed.Equal(now) {
		t.Fatalf("round trip mismatch: stored %v parsed %v", now, parsed)
	}

	legacy, err := ParseTime("2026-01-15 10:30:00")
	if err != nil {
		t.Fatalf("ParseTime legacy: %v", err)
	}
	if legacy.Hour() != 10 || legacy.Minute() != 30 {
		t.Fatalf("legacy parse mismatch: %v", legacy)
	}

	if _, err := ParseTime("not a time"); err == nil {
		t.Fatal("expected error for malformed timestamp")
	}
}

func TestPlaceholders(t *testing.T) {
	cases := map[int]string{
		0: "",
		1: "?",
		3: "?, ?, ?",
	}
	for n, want := range cases {
		if got := Placeholders(n); got != want {
			t.Errorf("Placeholders(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestRetryBusyGivesUpOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := RetryBusy(context.Background(), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt for non-busy error, got %d", calls)
	}
}

func TestIsSQLiteBusyMatchesMessages(t *testing.T) {
	if !isSQLiteBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Fatal("expected busy detection from message")
	}
	if isSQLiteBusy(errors.New("no such table: missing")) {
		t.Fatal("unexpected busy detection")
	}
	if isSQLiteBusy(nil) {
		t.Fatal("nil error should not be busy")
	}
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lectern/internal/config"
	"lectern/internal/services"
)

func TestPrettyHandlerFormatsComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	logger := slog.New(newPrettyHandler(&buf, levelVar, false))

	logger = NewComponentLogger(logger, "worker")
	logger.Info("tick complete", Int("processed", 3), String("stage", "mapping"))

	line := buf.String()
	if !strings.Contains(line, "INFO worker: tick complete") {
		t.Fatalf("unexpected line %q", line)
	}
	if !strings.Contains(line, "processed=3") || !strings.Contains(line, "stage=mapping") {
		t.Fatalf("missing attrs in %q", line)
	}
}

func TestPrettyHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	logger := slog.New(newPrettyHandler(&buf, levelVar, false))

	logger.Info("note", String("reason", "gate failed hard"))
	if !strings.Contains(buf.String(), `reason="gate failed hard"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestJSONHandlerFieldNames(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	logger := slog.New(newJSONHandler(&buf, levelVar, false))

	logger.Info("promotion batch", Int64(FieldPipelineID, 9))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("parse json line: %v", err)
	}
	if payload["msg"] != "promotion batch" {
		t.Fatalf("msg = %v", payload["msg"])
	}
	if payload["level"] != "info" {
		t.Fatalf("level = %v", payload["level"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatal("missing ts field")
	}
	if payload[FieldPipelineID] != float64(9) {
		t.Fatalf("pipeline_id = %v", payload[FieldPipelineID])
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	logger := slog.New(newPrettyHandler(&buf, levelVar, false))

	ctx := services.WithPipelineID(context.Background(), 12)
	ctx = services.WithStage(ctx, "transforming")

	WithContext(ctx, logger).Info("dispatch")
	line := buf.String()
	if !strings.Contains(line, "pipeline_id=12") || !strings.Contains(line, "stage=transforming") {
		t.Fatalf("context fields missing in %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigMirrorsToLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("config logger online")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "lectern.log"))
	if err != nil {
		t.Fatalf("read mirrored log: %v", err)
	}
	if !strings.Contains(string(content), "config logger online") {
		t.Fatalf("mirrored log missing line: %q", content)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	logger.Error("should not panic", Error(nil))
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should report disabled")
	}
}

func TestCleanupOldLogsPrunesByAge(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "run-old.log")
	newPath := filepath.Join(dir, "run-new.log")
	keepPath := filepath.Join(dir, "lectern.log")
	for _, p := range []string{oldPath, newPath, keepPath} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	stale := time.Now().AddDate(0, 0, -14)
	if err := os.Chtimes(oldPath, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if err := os.Chtimes(keepPath, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	CleanupOldLogs(NewNop(), 7, RetentionTarget{Dir: dir, Pattern: "run-*.log", Exclude: []string{keepPath}})

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatal("expected old run log removed")
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatal("recent run log should remain")
	}
	if _, err := os.Stat(keepPath); err != nil {
		t.Fatal("excluded log should remain")
	}
}

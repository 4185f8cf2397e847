package extraction

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"lectern/internal/logging"
	"lectern/internal/services"
	"lectern/internal/testsupport"
)

func TestExtractPlaintextFormFeeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lesson.txt")
	testsupport.WriteTextFile(t, path, "Primera página.\fSegunda página.\f\fTercera página.")

	svc := NewService(logging.NewNop())
	pages, err := svc.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("pages = %d, want 3", len(pages))
	}
	if pages[0].Number != 1 || pages[2].Number != 3 {
		t.Fatalf("page numbers %d..%d", pages[0].Number, pages[2].Number)
	}
	if pages[1].Text != "Segunda página." {
		t.Fatalf("page 2 text %q", pages[1].Text)
	}
}

func TestExtractPlaintextBlankLineRuns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lesson.md")
	content := "# Unidad 1\n\nHola.\n\n\n\n# Unidad 2\n\nAdiós."
	testsupport.WriteTextFile(t, path, content)

	svc := NewService(logging.NewNop())
	pages, err := svc.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(pages))
	}
	if !strings.Contains(pages[1].Text, "Unidad 2") {
		t.Fatalf("page 2 text %q", pages[1].Text)
	}
}

func TestExtractUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audio.mp3")
	testsupport.WriteTextFile(t, path, "not text")

	svc := NewService(logging.NewNop())
	_, err := svc.Extract(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for unsupported extension")
	}
	if !errors.Is(err, services.ErrExtraction) {
		t.Fatalf("error should be extraction-classified, got %v", err)
	}
	if !services.IsTerminal(err) {
		t.Fatal("extraction errors are terminal")
	}
}

func TestExtractEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	testsupport.WriteTextFile(t, path, "  \n\n  ")

	svc := NewService(logging.NewNop())
	if _, err := svc.Extract(context.Background(), path); !errors.Is(err, services.ErrExtraction) {
		t.Fatalf("empty file should fail extraction, got %v", err)
	}
}

func TestExtractMissingFile(t *testing.T) {
	svc := NewService(logging.NewNop())
	if _, err := svc.Extract(context.Background(), filepath.Join(t.TempDir(), "absent.txt")); !errors.Is(err, services.ErrExtraction) {
		t.Fatalf("missing file should fail extraction, got %v", err)
	}
}

func TestDecodePageTextLiteralStrings(t *testing.T) {
	content := []byte(`BT /F1 12 Tf 72 720 Td (Hola mundo) Tj 0 -14 Td (Segunda l\355nea) Tj ET`)
	text := decodePageText(content)
	if !strings.Contains(text, "Hola mundo") {
		t.Fatalf("decoded %q", text)
	}
	if !strings.Contains(text, "Segunda línea") {
		t.Fatalf("octal escape not decoded: %q", text)
	}
	if !strings.Contains(text, "\n") {
		t.Fatalf("Td should break lines: %q", text)
	}
}

func TestDecodePageTextTJArrayAndEscapes(t *testing.T) {
	content := []byte(`BT [(Ho) -20 (la) -250 (\(mundo\))] TJ ET`)
	text := decodePageText(content)
	if !strings.Contains(text, "Ho la (mundo)") {
		t.Fatalf("decoded %q", text)
	}
}

func TestDecodePageTextHexString(t *testing.T) {
	// 48 6F 6C 61 = "Hola"
	content := []byte(`BT <486F6C61> Tj ET`)
	text := decodePageText(content)
	if !strings.Contains(text, "Hola") {
		t.Fatalf("decoded %q", text)
	}
}

func TestDecodePageTextIgnoresDictionaries(t *testing.T) {
	content := []byte(`<< /Type /Page /Resources << /Font 5 0 R >> >> BT (Texto) Tj ET`)
	text := decodePageText(content)
	if !strings.Contains(text, "Texto") {
		t.Fatalf("decoded %q", text)
	}
	if strings.Contains(text, "Type") || strings.Contains(text, "Font") {
		t.Fatalf("dictionary keys leaked into text: %q", text)
	}
}

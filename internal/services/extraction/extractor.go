package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"lectern/internal/documents"
	"lectern/internal/logging"
	"lectern/internal/services"
)

// Service extracts page text from source files.
type Service struct {
	logger *slog.Logger
}

// NewService constructs the extractor.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{logger: logging.NewComponentLogger(logger, "extraction")}
}

// Extract reads the source file and returns its pages in order. Unsupported
// or unreadable input yields an extraction-classified error, which the
// pipeline treats as terminal.
func (s *Service) Extract(ctx context.Context, sourcePath string) ([]documents.PageInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(sourcePath))
	var (
		pages []documents.PageInput
		err   error
	)
	switch ext {
	case ".pdf":
		pages, err = s.extractPDF(ctx, sourcePath)
	case ".txt", ".md", ".markdown":
		pages, err = s.extractPlaintext(sourcePath)
	default:
		return nil, services.Wrap(services.ErrExtraction, "extraction", "dispatch",
			fmt.Sprintf("unsupported file type %q", ext), nil)
	}
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, services.Wrap(services.ErrExtraction, "extraction", "read",
			fmt.Sprintf("no text content in %s", filepath.Base(sourcePath)), nil)
	}

	s.logger.Info("document extracted",
		logging.String("source", filepath.Base(sourcePath)),
		logging.Int("pages", len(pages)))
	return pages, nil
}

var blankRun = regexp.MustCompile(`\n[ \t]*\n[ \t]*\n+`)

func (s *Service) extractPlaintext(sourcePath string) ([]documents.PageInput, error) {
	raw, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, services.Wrap(services.ErrExtraction, "extraction", "read", "open source file", err)
	}
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")

	var parts []string
	if strings.ContainsRune(text, '\f') {
		parts = strings.Split(text, "\f")
	} else {
		parts = blankRun.Split(text, -1)
	}

	pages := make([]documents.PageInput, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pages = append(pages, documents.PageInput{
			Number: len(pages) + 1,
			Text:   part,
		})
	}
	return pages, nil
}

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"lectern/internal/config"
	"lectern/internal/documents"
	"lectern/internal/fileutil"
	"lectern/internal/language"
	"lectern/internal/logging"
	"lectern/internal/pipeline"
	"lectern/internal/services"
	"lectern/internal/textutil"
)

// Extractor pulls page text out of a source file.
type Extractor interface {
	Extract(ctx context.Context, sourcePath string) ([]documents.PageInput, error)
}

// Chunker segments extracted pages into classified chunks.
type Chunker interface {
	Chunk(pages []documents.PageInput) []documents.ChunkInput
}

// Service registers uploads and runs the extraction fast path.
type Service struct {
	cfg       *config.Config
	docs      *documents.Store
	pipelines *pipeline.Store
	extractor Extractor
	chunker   Chunker
	logger    *slog.Logger
}

func NewService(cfg *config.Config, docs *documents.Store, pipelines *pipeline.Store, extractor Extractor, chunker Chunker, logger *slog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		docs:      docs,
		pipelines: pipelines,
		extractor: extractor,
		chunker:   chunker,
		logger:    logging.NewComponentLogger(logger, "ingest"),
	}
}

// Options override the configured defaults for one ingest.
type Options struct {
	Title    string
	Language string
	Level    string
	// RemoveSource deletes the original file after a verified copy. The
	// inbox monitor sets this so processed drops do not pile up.
	RemoveSource bool
}

// IngestFile copies a source file into the library, registers the document
// in pending status, and ensures its pipeline exists.
func (s *Service) IngestFile(ctx context.Context, sourcePath string, opts Options) (*documents.Document, *pipeline.Pipeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	ext := strings.ToLower(filepath.Ext(sourcePath))
	if !s.extensionAllowed(ext) {
		return nil, nil, services.Wrap(services.ErrValidation, "ingest", "accept",
			fmt.Sprintf("file type %q is not allowed", ext), nil)
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, nil, fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return nil, nil, services.Wrap(services.ErrValidation, "ingest", "accept",
			fmt.Sprintf("%s is a directory", sourcePath), nil)
	}
	if info.Size() == 0 {
		return nil, nil, services.Wrap(services.ErrValidation, "ingest", "accept",
			fmt.Sprintf("%s is empty", sourcePath), nil)
	}

	requested := strings.TrimSpace(opts.Language)
	if requested == "" {
		requested = s.cfg.Ingest.DefaultLanguage
	}
	lang := language.Canonical(requested)
	if lang == "" {
		return nil, nil, services.Wrap(services.ErrValidation, "ingest", "accept",
			fmt.Sprintf("unrecognized language %q (known: %s)", requested, strings.Join(language.All(), ", ")), nil)
	}

	libraryDir := s.cfg.DocumentsDir()
	if err := fileutil.EnsureDir(libraryDir); err != nil {
		return nil, nil, err
	}

	base := textutil.SanitizeFileName(strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath)))
	if base == "" {
		base = "document"
	}
	storedPath := fileutil.UniquePath(libraryDir, base, ext)
	if err := fileutil.CopyFileVerified(sourcePath, storedPath); err != nil {
		return nil, nil, fmt.Errorf("copy into library: %w", err)
	}

	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = base
	}
	level := strings.ToUpper(strings.TrimSpace(opts.Level))
	if level == "" {
		level = s.cfg.Ingest.DefaultLevel
	}

	doc, err := s.docs.CreateDocument(ctx, title, storedPath, lang, level)
	if err != nil {
		if removeErr := os.Remove(storedPath); removeErr != nil {
			s.logger.Warn("remove orphaned library copy",
				logging.String("path", storedPath),
				logging.Error(removeErr))
		}
		return nil, nil, err
	}

	pl, createdPipeline, err := s.pipelines.GetOrCreatePipeline(ctx, doc.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline for document %d: %w", doc.ID, err)
	}

	if opts.RemoveSource {
		if err := os.Remove(sourcePath); err != nil {
			s.logger.Warn("remove ingested source",
				logging.String("path", sourcePath),
				logging.Error(err))
		}
	}

	s.logger.Info("document ingested",
		logging.String(logging.FieldEventType, "document_ingested"),
		logging.Int64(logging.FieldDocumentID, doc.ID),
		logging.String("title", title),
		logging.String("language", lang),
		logging.String("level", level),
		logging.String("path", storedPath),
		logging.Bool("pipeline_created", createdPipeline))
	return doc, pl, nil
}

func (s *Service) extensionAllowed(ext string) bool {
	for _, allowed := range s.cfg.Ingest.AllowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

// ProcessPending runs extraction and chunking for up to limit documents
// still in pending status. A document that fails lands in error status and
// is skipped on later calls; one bad file never stops the batch. Returns
// the number of documents that reached ready.
func (s *Service) ProcessPending(ctx context.Context, limit int) (int, error) {
	docs, err := s.docs.DocumentsByStatus(ctx, documents.StatusPending, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending documents: %w", err)
	}

	processed := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if err := s.ProcessRawDocument(ctx, doc); err != nil {
			s.logger.Warn("document extraction failed",
				logging.Int64(logging.FieldDocumentID, doc.ID),
				logging.String("title", doc.Title),
				logging.Error(err))
			continue
		}
		processed++
	}
	return processed, nil
}

// ProcessRawDocument extracts and chunks one document inside a single
// store transaction and ensures its pipeline exists. Extraction failures
// are recorded on the document before the error is returned.
func (s *Service) ProcessRawDocument(ctx context.Context, doc *documents.Document) error {
	pages, err := s.extractor.Extract(ctx, doc.SourcePath)
	if err != nil {
		if markErr := s.docs.SetDocumentError(ctx, doc.ID, err.Error()); markErr != nil {
			s.logger.Error("record extraction failure",
				logging.Int64(logging.FieldDocumentID, doc.ID),
				logging.Error(markErr))
		}
		return err
	}

	chunks := s.chunker.Chunk(pages)
	if err := s.docs.SaveExtraction(ctx, doc.ID, pages, chunks); err != nil {
		return err
	}

	if _, _, err := s.pipelines.GetOrCreatePipeline(ctx, doc.ID); err != nil {
		return fmt.Errorf("pipeline for document %d: %w", doc.ID, err)
	}
	return nil
}

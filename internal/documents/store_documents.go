package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lectern/internal/db"
	"lectern/internal/logging"
	"lectern/internal/services"
)

// CreateDocument registers an uploaded source document in pending.
func (s *Store) CreateDocument(ctx context.Context, title, sourcePath, language, targetLevel string) (*Document, error) {
	if strings.TrimSpace(title) == "" {
		return nil, errors.New("document title is required")
	}
	if strings.TrimSpace(sourcePath) == "" {
		return nil, errors.New("document source path is required")
	}
	timestamp := db.FormatTime(time.Now())

	res, err := s.exec(
		ctx,
		`INSERT INTO documents (title, source_path, language, target_level, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		title, sourcePath, language, db.NullString(targetLevel), StatusPending, timestamp, timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	s.logger.Info("document registered",
		logging.Int64(logging.FieldDocumentID, id),
		logging.String("title", title),
		logging.String("language", language))

	return s.GetDocument(ctx, id)
}

// GetDocument fetches a document by identifier.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// FindBySourcePath returns the first document registered for a source file.
func (s *Store) FindBySourcePath(ctx context.Context, sourcePath string) (*Document, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+documentColumns+` FROM documents WHERE source_path = ? ORDER BY id LIMIT 1`,
		sourcePath,
	)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find document by path: %w", err)
	}
	return d, nil
}

// DocumentsByStatus returns up to limit documents in a status, oldest first.
// The worker uses this to sweep pending documents into extraction.
func (s *Store) DocumentsByStatus(ctx context.Context, status Status, limit int) ([]*Document, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+documentColumns+` FROM documents WHERE status = ? ORDER BY created_at, id LIMIT ?`,
		status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query documents by status: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// SetDocumentError marks a document failed with the extraction error.
func (s *Store) SetDocumentError(ctx context.Context, id int64, message string) error {
	res, err := s.exec(
		ctx,
		`UPDATE documents SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		StatusError, db.NullString(message), db.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("set document error: %w", err)
	}
	return s.requireRow(res, id, "set_error")
}

// SaveExtraction persists a document's pages and chunks in one transaction
// and flips the document to ready. Any failure rolls the transaction back,
// sweeps surviving pages and chunks with best-effort deletes, and records the
// error status outside the transaction so the failure stays observable.
func (s *Store) SaveExtraction(ctx context.Context, documentID int64, pages []PageInput, chunks []ChunkInput) (err error) {
	timestamp := db.FormatTime(time.Now())

	defer func() {
		if err == nil {
			return
		}
		s.cleanupExtraction(ctx, documentID)
		if statusErr := s.SetDocumentError(ctx, documentID, err.Error()); statusErr != nil {
			s.logger.Error("record extraction error status",
				logging.Int64(logging.FieldDocumentID, documentID),
				logging.Error(statusErr))
		}
	}()

	tx, txErr := s.db.BeginTx(ctx, nil)
	if txErr != nil {
		return fmt.Errorf("begin extraction: %w", txErr)
	}
	defer func() { _ = tx.Rollback() }()

	if _, execErr := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); execErr != nil {
		return fmt.Errorf("clear previous chunks: %w", execErr)
	}
	if _, execErr := tx.ExecContext(ctx, `DELETE FROM document_pages WHERE document_id = ?`, documentID); execErr != nil {
		return fmt.Errorf("clear previous pages: %w", execErr)
	}

	totalWords := 0
	for _, page := range pages {
		words := len(strings.Fields(page.Text))
		totalWords += words
		if _, execErr := tx.ExecContext(
			ctx,
			`INSERT INTO document_pages (document_id, page_number, text, word_count, created_at)
             VALUES (?, ?, ?, ?, ?)`,
			documentID, page.Number, page.Text, words, timestamp,
		); execErr != nil {
			return fmt.Errorf("insert page %d: %w", page.Number, execErr)
		}
	}

	for _, chunk := range chunks {
		wordCount := chunk.WordCount
		if wordCount == 0 {
			wordCount = len(strings.Fields(chunk.Text))
		}
		charCount := chunk.CharCount
		if charCount == 0 {
			charCount = len([]rune(chunk.Text))
		}
		chunkType := chunk.Type
		if chunkType == "" {
			chunkType = ChunkParagraph
		}
		if _, execErr := tx.ExecContext(
			ctx,
			`INSERT INTO chunks (document_id, chunk_index, page_number, chunk_type, text, confidence, word_count, char_count, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			documentID, chunk.Index, chunk.PageNumber, chunkType, chunk.Text,
			chunk.Confidence, wordCount, charCount, timestamp,
		); execErr != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.Index, execErr)
		}
	}

	res, execErr := tx.ExecContext(
		ctx,
		`UPDATE documents
         SET status = ?, error_message = NULL, page_count = ?, word_count = ?, updated_at = ?
         WHERE id = ?`,
		StatusReady, len(pages), totalWords, timestamp, documentID,
	)
	if execErr != nil {
		return fmt.Errorf("mark document ready: %w", execErr)
	}
	affected, execErr := res.RowsAffected()
	if execErr != nil {
		return fmt.Errorf("rows affected: %w", execErr)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "documents", "save_extraction",
			fmt.Sprintf("document %d not found", documentID), nil)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit extraction: %w", commitErr)
	}

	s.logger.Info("extraction saved",
		logging.Int64(logging.FieldDocumentID, documentID),
		logging.Int("pages", len(pages)),
		logging.Int("chunks", len(chunks)),
		logging.Int("words", totalWords))
	return nil
}

// cleanupExtraction deletes whatever pages and chunks survived a failed
// extraction. Errors are logged, not returned.
func (s *Store) cleanupExtraction(ctx context.Context, documentID int64) {
	if _, err := s.exec(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		s.logger.Warn("cleanup chunks after failed extraction",
			logging.Int64(logging.FieldDocumentID, documentID),
			logging.Error(err))
	}
	if _, err := s.exec(ctx, `DELETE FROM document_pages WHERE document_id = ?`, documentID); err != nil {
		s.logger.Warn("cleanup pages after failed extraction",
			logging.Int64(logging.FieldDocumentID, documentID),
			logging.Error(err))
	}
}

// Pages returns a document's pages in page order.
func (s *Store) Pages(ctx context.Context, documentID int64) ([]*Page, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, document_id, page_number, text, word_count, created_at
         FROM document_pages WHERE document_id = ? ORDER BY page_number`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var pages []*Page
	for rows.Next() {
		var (
			p          Page
			createdRaw string
		)
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.PageNumber, &p.Text, &p.WordCount, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		if created, err := db.ParseTime(createdRaw); err == nil {
			p.CreatedAt = created
		}
		pages = append(pages, &p)
	}
	return pages, rows.Err()
}

// CountPages reports how many pages a document has persisted.
func (s *Store) CountPages(ctx context.Context, documentID int64) (int, error) {
	var count int
	if err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM document_pages WHERE document_id = ?`,
		documentID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return count, nil
}

func (s *Store) requireRow(res sql.Result, id int64, operation string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "documents", operation,
			fmt.Sprintf("document %d not found", id), nil)
	}
	return nil
}

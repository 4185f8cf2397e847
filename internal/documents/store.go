package documents

import (
	"context"
	"database/sql"
	"log/slog"

	"lectern/internal/db"
	"lectern/internal/logging"
)

const documentColumns = "id, title, source_path, language, target_level, status, error_message, page_count, word_count, created_at, updated_at"

const chunkColumns = "id, document_id, chunk_index, page_number, chunk_type, text, confidence, word_count, char_count, created_at"

const mappingColumns = "id, chunk_id, document_id, topic_id, status, confidence, rationale, created_at, confirmed_at, transformed_at"

// Store persists documents, pages, chunks, topics, levels, and mappings.
type Store struct {
	db     *db.Handle
	logger *slog.Logger
}

// NewStore wraps the shared database handle.
func NewStore(handle *db.Handle, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		db:     handle,
		logger: logging.NewComponentLogger(logger, "document-store"),
	}
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecRetry(ctx, query, args...)
}

func scanDocument(scanner interface{ Scan(dest ...any) error }) (*Document, error) {
	var (
		id           int64
		title        string
		sourcePath   string
		language     string
		targetLevel  sql.NullString
		statusStr    string
		errorMessage sql.NullString
		pageCount    int
		wordCount    int
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&title,
		&sourcePath,
		&language,
		&targetLevel,
		&statusStr,
		&errorMessage,
		&pageCount,
		&wordCount,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	d := &Document{
		ID:           id,
		Title:        title,
		SourcePath:   sourcePath,
		Language:     language,
		TargetLevel:  targetLevel.String,
		Status:       Status(statusStr),
		ErrorMessage: errorMessage.String,
		PageCount:    pageCount,
		WordCount:    wordCount,
	}
	if created, err := db.ParseTime(createdRaw); err == nil {
		d.CreatedAt = created
	}
	if updated, err := db.ParseTime(updatedRaw); err == nil {
		d.UpdatedAt = updated
	}
	return d, nil
}

func scanChunk(scanner interface{ Scan(dest ...any) error }) (*Chunk, error) {
	var (
		id         int64
		documentID int64
		index      int
		pageNumber int
		chunkType  string
		text       string
		confidence float64
		wordCount  int
		charCount  int
		createdRaw string
	)

	if err := scanner.Scan(
		&id,
		&documentID,
		&index,
		&pageNumber,
		&chunkType,
		&text,
		&confidence,
		&wordCount,
		&charCount,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	c := &Chunk{
		ID:         id,
		DocumentID: documentID,
		Index:      index,
		PageNumber: pageNumber,
		Type:       ChunkType(chunkType),
		Text:       text,
		Confidence: confidence,
		WordCount:  wordCount,
		CharCount:  charCount,
	}
	if created, err := db.ParseTime(createdRaw); err == nil {
		c.CreatedAt = created
	}
	return c, nil
}

func scanMapping(scanner interface{ Scan(dest ...any) error }) (*Mapping, error) {
	var (
		id             int64
		chunkID        int64
		documentID     int64
		topicID        int64
		statusStr      string
		confidence     float64
		rationale      sql.NullString
		createdRaw     string
		confirmedRaw   sql.NullString
		transformedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&chunkID,
		&documentID,
		&topicID,
		&statusStr,
		&confidence,
		&rationale,
		&createdRaw,
		&confirmedRaw,
		&transformedRaw,
	); err != nil {
		return nil, err
	}

	m := &Mapping{
		ID:            id,
		ChunkID:       chunkID,
		DocumentID:    documentID,
		TopicID:       topicID,
		Status:        MappingStatus(statusStr),
		Confidence:    confidence,
		Rationale:     rationale.String,
		ConfirmedAt:   db.TimeFromNull(confirmedRaw),
		TransformedAt: db.TimeFromNull(transformedRaw),
	}
	if created, err := db.ParseTime(createdRaw); err == nil {
		m.CreatedAt = created
	}
	return m, nil
}

func scanTopic(scanner interface{ Scan(dest ...any) error }) (*Topic, error) {
	var (
		id          int64
		name        string
		language    string
		levelID     sql.NullInt64
		description sql.NullString
		createdRaw  string
	)

	if err := scanner.Scan(&id, &name, &language, &levelID, &description, &createdRaw); err != nil {
		return nil, err
	}

	t := &Topic{
		ID:          id,
		Name:        name,
		Language:    language,
		Description: description.String,
	}
	if levelID.Valid {
		v := levelID.Int64
		t.LevelID = &v
	}
	if created, err := db.ParseTime(createdRaw); err == nil {
		t.CreatedAt = created
	}
	return t, nil
}

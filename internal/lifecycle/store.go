package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"lectern/internal/db"
	"lectern/internal/logging"
)

const draftColumns = "id, topic_id, data_type, payload_json, dedup_key, document_id, chunk_id, transformation_job_id, created_at"

const candidateColumns = "id, draft_id, topic_id, data_type, payload_json, dedup_key, created_at"

const validatedColumns = "id, candidate_id, topic_id, data_type, payload_json, dedup_key, gate_results_json, created_at"

const jobColumns = "id, mapping_id, status, model, prompt_tokens, completion_tokens, duration_ms, retry_count, error_message, created_at, completed_at"

// Store persists the content lifecycle chain and its audit trails.
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
		logger: logging.NewComponentLogger(logger, "lifecycle-store"),
	}
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecRetry(ctx, query, args...)
}

// dedupState reports which chain tables already hold a tuple. Each promotion
// boundary applies its own blocking rule against this.
type dedupState struct {
	HasDraft     bool
	HasCandidate bool
	HasValidated bool
	HasRejected  bool
}

func (d dedupState) blocksDraft() (bool, string) {
	switch {
	case d.HasRejected:
		return true, "tuple previously rejected"
	case d.HasValidated:
		return true, "tuple already validated"
	case d.HasCandidate:
		return true, "tuple already a candidate"
	case d.HasDraft:
		return true, "tuple already drafted"
	default:
		return false, ""
	}
}

func (d dedupState) blocksCandidate() (bool, string) {
	switch {
	case d.HasRejected:
		return true, "tuple previously rejected"
	case d.HasValidated:
		return true, "tuple already validated"
	case d.HasCandidate:
		return true, "tuple already a candidate"
	default:
		return false, ""
	}
}

func (d dedupState) blocksValidated() (bool, string) {
	switch {
	case d.HasRejected:
		return true, "tuple previously rejected"
	case d.HasValidated:
		return true, "tuple already validated"
	default:
		return false, ""
	}
}

func (s *Store) lookupDedup(ctx context.Context, topicID int64, dataType DataType, dedupKey string) (dedupState, error) {
	var state dedupState
	row := s.db.QueryRowContext(
		ctx,
		`SELECT
            EXISTS(SELECT 1 FROM drafts WHERE topic_id = ? AND data_type = ? AND dedup_key = ?),
            EXISTS(SELECT 1 FROM candidates WHERE topic_id = ? AND data_type = ? AND dedup_key = ?),
            EXISTS(SELECT 1 FROM validated_items WHERE topic_id = ? AND data_type = ? AND dedup_key = ?),
            EXISTS(SELECT 1 FROM rejected_items WHERE topic_id = ? AND data_type = ? AND dedup_key = ?)`,
		topicID, dataType, dedupKey,
		topicID, dataType, dedupKey,
		topicID, dataType, dedupKey,
		topicID, dataType, dedupKey,
	)
	var hasDraft, hasCandidate, hasValidated, hasRejected int
	if err := row.Scan(&hasDraft, &hasCandidate, &hasValidated, &hasRejected); err != nil {
		return state, fmt.Errorf("lookup dedup state: %w", err)
	}
	state.HasDraft = hasDraft != 0
	state.HasCandidate = hasCandidate != 0
	state.HasValidated = hasValidated != 0
	state.HasRejected = hasRejected != 0
	return state, nil
}

// IsRejected reports whether a tuple has a rejection record for the topic.
func (s *Store) IsRejected(ctx context.Context, topicID int64, dataType DataType, dedupKey string) (bool, error) {
	var exists int
	if err := s.db.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM rejected_items WHERE topic_id = ? AND data_type = ? AND dedup_key = ?)`,
		topicID, dataType, dedupKey,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check rejected tuple: %w", err)
	}
	return exists != 0, nil
}

func scanDraft(scanner interface{ Scan(dest ...any) error }) (*Draft, error) {
	var (
		id          int64
		topicID     int64
		dataType    string
		payloadJSON string
		dedupKey    string
		documentID  sql.NullInt64
		chunkID     sql.NullInt64
		jobID       sql.NullInt64
		createdRaw  string
	)
	if err := scanner.Scan(&id, &topicID, &dataType, &payloadJSON, &dedupKey, &documentID, &chunkID, &jobID, &createdRaw); err != nil {
		return nil, err
	}

	d := &Draft{
		ID:          id,
		TopicID:     topicID,
		DataType:    DataType(dataType),
		PayloadJSON: payloadJSON,
		DedupKey:    dedupKey,
	}
	if documentID.Valid {
		v := documentID.Int64
		d.DocumentID = &v
	}
	if chunkID.Valid {
		v := chunkID.Int64
		d.ChunkID = &v
	}
	if jobID.Valid {
		v := jobID.Int64
		d.TransformationJobID = &v
	}
	if created, err := db.ParseTime(createdRaw); err == nil {
		d.CreatedAt = created
	}
	return d, nil
}

func scanCandidate(scanner interface{ Scan(dest ...any) error }) (*Candidate, error) {
	var (
		c          Candidate
		dataType   string
		createdRaw string
	)
	if err := scanner.Scan(&c.ID, &c.DraftID, &c.TopicID, &dataType, &c.PayloadJSON, &c.DedupKey, &createdRaw); err != nil {
		return nil, err
	}
	c.DataType = DataType(dataType)
	if created, err := db.ParseTime(createdRaw); err == nil {
		c.CreatedAt = created
	}
	return &c, nil
}

func scanValidated(scanner interface{ Scan(dest ...any) error }) (*ValidatedItem, error) {
	var (
		v           ValidatedItem
		dataType    string
		gateResults sql.NullString
		createdRaw  string
	)
	if err := scanner.Scan(&v.ID, &v.CandidateID, &v.TopicID, &dataType, &v.PayloadJSON, &v.DedupKey, &gateResults, &createdRaw); err != nil {
		return nil, err
	}
	v.DataType = DataType(dataType)
	v.GateResultsJSON = gateResults.String
	if created, err := db.ParseTime(createdRaw); err == nil {
		v.CreatedAt = created
	}
	return &v, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*TransformationJob, error) {
	var (
		j            TransformationJob
		status       string
		model        sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&j.ID, &j.MappingID, &status, &model,
		&j.PromptTokens, &j.CompletionTokens, &j.DurationMS,
		&j.RetryCount, &errorMessage, &createdRaw, &completedRaw,
	); err != nil {
		return nil, err
	}
	j.Status = JobStatus(status)
	j.Model = model.String
	j.ErrorMessage = errorMessage.String
	j.CompletedAt = db.TimeFromNull(completedRaw)
	if created, err := db.ParseTime(createdRaw); err == nil {
		j.CreatedAt = created
	}
	return &j, nil
}

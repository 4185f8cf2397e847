package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lectern/internal/db"
	"lectern/internal/logging"
	"lectern/internal/services"
)

// GetOrCreatePipeline returns the pipeline for a document, creating it in
// pending/created when none exists yet. The second return value reports
// whether a new row was inserted. Calling this twice for the same document
// always yields the same pipeline id.
func (s *Store) GetOrCreatePipeline(ctx context.Context, documentID int64) (*Pipeline, bool, error) {
	timestamp := db.FormatTime(time.Now())

	res, err := s.exec(
		ctx,
		`INSERT INTO pipelines (document_id, status, current_stage, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(document_id) DO NOTHING`,
		documentID,
		StatusPending,
		StageCreated,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert pipeline: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	p, err := s.GetPipelineByDocument(ctx, documentID)
	if err != nil {
		return nil, false, err
	}
	if p == nil {
		return nil, false, services.Wrap(services.ErrNotFound, "pipeline", "get_or_create",
			fmt.Sprintf("pipeline for document %d vanished after insert", documentID), nil)
	}
	if inserted > 0 {
		s.logger.Info("pipeline created",
			logging.Int64(logging.FieldPipelineID, p.ID),
			logging.Int64(logging.FieldDocumentID, documentID))
	}
	return p, inserted > 0, nil
}

// GetPipeline fetches a pipeline by identifier.
func (s *Store) GetPipeline(ctx context.Context, id int64) (*Pipeline, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pipelineColumns+` FROM pipelines WHERE id = ?`, id)
	p, err := scanPipeline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pipeline: %w", err)
	}
	return p, nil
}

// GetPipelineByDocument fetches the pipeline owned by a document.
func (s *Store) GetPipelineByDocument(ctx context.Context, documentID int64) (*Pipeline, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pipelineColumns+` FROM pipelines WHERE document_id = ?`, documentID)
	p, err := scanPipeline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pipeline by document: %w", err)
	}
	return p, nil
}

// PipelinesByStatus returns up to limit pipelines in a status, oldest first.
func (s *Store) PipelinesByStatus(ctx context.Context, status Status, limit int) ([]*Pipeline, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE status = ? ORDER BY created_at, id LIMIT ?`,
		status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pipelines by status: %w", err)
	}
	defer rows.Close()
	return collectPipelines(rows)
}

// PipelinesInStages returns up to limit non-failed, non-cancelled pipelines
// whose advisory stage matches any of the given stages. The worker uses this
// to re-scan parked pipelines for late mapping confirmations.
func (s *Store) PipelinesInStages(ctx context.Context, limit int, stages ...Stage) ([]*Pipeline, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(stages)+1)
	for _, stage := range stages {
		args = append(args, stage)
	}
	args = append(args, limit)

	query := `SELECT ` + pipelineColumns + ` FROM pipelines
        WHERE current_stage IN (` + db.Placeholders(len(stages)) + `)
          AND status IN ('processing', 'completed')
        ORDER BY updated_at, id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pipelines by stage: %w", err)
	}
	defer rows.Close()
	return collectPipelines(rows)
}

// ListPipelines returns pipelines filtered by status set, newest first, or all
// pipelines when no status is provided.
func (s *Store) ListPipelines(ctx context.Context, statuses ...Status) ([]*Pipeline, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + pipelineColumns + ` FROM pipelines`
	orderClause := ` ORDER BY created_at DESC, id DESC`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + db.Placeholders(len(statuses)) + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()
	return collectPipelines(rows)
}

// StartPipeline flips a pipeline to processing. It is a no-op unless the
// current status is exactly pending; the return value reports whether the
// transition happened.
func (s *Store) StartPipeline(ctx context.Context, id int64) (bool, error) {
	timestamp := db.FormatTime(time.Now())
	res, err := s.exec(
		ctx,
		`UPDATE pipelines
         SET status = ?, current_stage = ?, started_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusProcessing, StageExtracting, timestamp, timestamp, id, StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("start pipeline: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// UpdateStage sets the advisory stage label.
func (s *Store) UpdateStage(ctx context.Context, id int64, stage Stage) error {
	res, err := s.exec(
		ctx,
		`UPDATE pipelines SET current_stage = ?, updated_at = ? WHERE id = ?`,
		stage, db.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	return s.requireRow(res, id, "update_stage")
}

// UpdateStageStatus sets the advisory stage and the status together. Reopening
// a completed pipeline goes through here (stage transforming, status
// processing) and clears the completion timestamp.
func (s *Store) UpdateStageStatus(ctx context.Context, id int64, stage Stage, status Status) error {
	res, err := s.exec(
		ctx,
		`UPDATE pipelines
         SET current_stage = ?, status = ?, updated_at = ?,
             completed_at = CASE WHEN ? = 'processing' THEN NULL ELSE completed_at END
         WHERE id = ?`,
		stage, status, db.FormatTime(time.Now()), status, id,
	)
	if err != nil {
		return fmt.Errorf("update stage and status: %w", err)
	}
	return s.requireRow(res, id, "update_stage_status")
}

// CompletePipeline finalizes a pipeline as completed or failed.
func (s *Store) CompletePipeline(ctx context.Context, id int64, success bool, errorMessage string) error {
	timestamp := db.FormatTime(time.Now())

	var (
		res sql.Result
		err error
	)
	if success {
		res, err = s.exec(
			ctx,
			`UPDATE pipelines
             SET status = ?, current_stage = ?, error_message = NULL, completed_at = ?, updated_at = ?
             WHERE id = ?`,
			StatusCompleted, StageCompleted, timestamp, timestamp, id,
		)
	} else {
		res, err = s.exec(
			ctx,
			`UPDATE pipelines
             SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
             WHERE id = ?`,
			StatusFailed, db.NullString(errorMessage), timestamp, timestamp, id,
		)
	}
	if err != nil {
		return fmt.Errorf("complete pipeline: %w", err)
	}
	return s.requireRow(res, id, "complete")
}

// CancelPipeline stops a pipeline that has not finished. Completed pipelines
// cannot be cancelled. The return value reports whether a row changed.
func (s *Store) CancelPipeline(ctx context.Context, id int64) (bool, error) {
	timestamp := db.FormatTime(time.Now())
	res, err := s.exec(
		ctx,
		`UPDATE pipelines
         SET status = ?, completed_at = ?, updated_at = ?
         WHERE id = ? AND status IN ('pending', 'processing', 'failed')`,
		StatusCancelled, timestamp, timestamp, id,
	)
	if err != nil {
		return false, fmt.Errorf("cancel pipeline: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Summary aggregates pipeline counts per status.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM pipelines GROUP BY status`)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize pipelines: %w", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var (
			statusStr string
			count     int
		)
		if err := rows.Scan(&statusStr, &count); err != nil {
			return Summary{}, fmt.Errorf("scan summary row: %w", err)
		}
		summary.Total += count
		switch Status(statusStr) {
		case StatusPending:
			summary.Pending = count
		case StatusProcessing:
			summary.Processing = count
		case StatusCompleted:
			summary.Completed = count
		case StatusFailed:
			summary.Failed = count
		case StatusCancelled:
			summary.Cancelled = count
		}
	}
	return summary, rows.Err()
}

func (s *Store) requireRow(res sql.Result, id int64, operation string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "pipeline", operation,
			fmt.Sprintf("pipeline %d not found", id), nil)
	}
	return nil
}

func collectPipelines(rows *sql.Rows) ([]*Pipeline, error) {
	var pipelines []*Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, rows.Err()
}

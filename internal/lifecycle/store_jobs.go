package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lectern/internal/db"
	"lectern/internal/services"
)

// CreateTransformationJob opens an audit row for one transformation attempt.
func (s *Store) CreateTransformationJob(ctx context.Context, mappingID int64, model string) (*TransformationJob, error) {
	res, err := s.exec(
		ctx,
		`INSERT INTO transformation_jobs (mapping_id, status, model, created_at)
         VALUES (?, ?, ?, ?)`,
		mappingID, JobProcessing, db.NullString(model), db.FormatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert transformation job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetTransformationJob(ctx, id)
}

// GetTransformationJob fetches a job by identifier.
func (s *Store) GetTransformationJob(ctx context.Context, id int64) (*TransformationJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM transformation_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transformation job: %w", err)
	}
	return j, nil
}

// CompleteTransformationJob records a successful attempt with its usage.
func (s *Store) CompleteTransformationJob(ctx context.Context, id int64, promptTokens, completionTokens int64, duration time.Duration) error {
	timestamp := db.FormatTime(time.Now())
	res, err := s.exec(
		ctx,
		`UPDATE transformation_jobs
         SET status = ?, prompt_tokens = ?, completion_tokens = ?, duration_ms = ?,
             error_message = NULL, completed_at = ?
         WHERE id = ?`,
		JobCompleted, promptTokens, completionTokens, duration.Milliseconds(), timestamp, id,
	)
	if err != nil {
		return fmt.Errorf("complete transformation job: %w", err)
	}
	return requireJobRow(res, id)
}

// FailTransformationJob records a failed attempt and bumps the retry counter.
func (s *Store) FailTransformationJob(ctx context.Context, id int64, message string) error {
	timestamp := db.FormatTime(time.Now())
	res, err := s.exec(
		ctx,
		`UPDATE transformation_jobs
         SET status = ?, retry_count = retry_count + 1, error_message = ?, completed_at = ?
         WHERE id = ?`,
		JobFailed, db.NullString(message), timestamp, id,
	)
	if err != nil {
		return fmt.Errorf("fail transformation job: %w", err)
	}
	return requireJobRow(res, id)
}

// JobsForMapping returns a mapping's transformation attempts in order.
func (s *Store) JobsForMapping(ctx context.Context, mappingID int64) ([]*TransformationJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM transformation_jobs WHERE mapping_id = ? ORDER BY id`,
		mappingID,
	)
	if err != nil {
		return nil, fmt.Errorf("query jobs for mapping: %w", err)
	}
	defer rows.Close()

	var jobs []*TransformationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func requireJobRow(res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "lifecycle", "update_job",
			fmt.Sprintf("transformation job %d not found", id), nil)
	}
	return nil
}

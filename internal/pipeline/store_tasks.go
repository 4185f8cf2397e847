package pipeline

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

// CreateTask inserts a task node and increments the owning pipeline's total
// task counter in the same transaction. dependsOn may be nil for root tasks.
func (s *Store) CreateTask(ctx context.Context, pipelineID, itemID int64, itemType string, taskType TaskType, dependsOn *int64) (*Task, error) {
	timestamp := db.FormatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create task: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var dependsOnValue any
	if dependsOn != nil {
		dependsOnValue = *dependsOn
	}

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO pipeline_tasks (
            pipeline_id, item_id, item_type, task_type, status,
            depends_on_task_id, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pipelineID, itemID, itemType, taskType, TaskPending,
		dependsOnValue, timestamp, timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	taskID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE pipelines SET total_tasks = total_tasks + 1, updated_at = ? WHERE id = ?`,
		timestamp, pipelineID,
	); err != nil {
		return nil, fmt.Errorf("increment total tasks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create task: %w", err)
	}

	s.logger.Debug("task created",
		logging.Int64(logging.FieldPipelineID, pipelineID),
		logging.Int64(logging.FieldTaskID, taskID),
		logging.String("task_type", string(taskType)),
		logging.Int64("item_id", itemID),
		logging.String("item_type", itemType))

	return s.GetTask(ctx, taskID)
}

// GetTask fetches a task by identifier.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM pipeline_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// FindTask returns the first task of a given type for an item under a
// pipeline, or nil. Dispatch uses this as its idempotence guard before
// creating follow-on tasks.
func (s *Store) FindTask(ctx context.Context, pipelineID int64, taskType TaskType, itemID int64) (*Task, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM pipeline_tasks
         WHERE pipeline_id = ? AND task_type = ? AND item_id = ?
         ORDER BY id LIMIT 1`,
		pipelineID, taskType, itemID,
	)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	return t, nil
}

// NextTask returns the oldest eligible task for a pipeline, or nil when none
// is runnable. A task is eligible when it is pending and its predecessor, if
// any, has completed.
func (s *Store) NextTask(ctx context.Context, pipelineID int64) (*Task, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+prefixColumns("t", taskColumns)+` FROM pipeline_tasks t
         LEFT JOIN pipeline_tasks dep ON dep.id = t.depends_on_task_id
         WHERE t.pipeline_id = ? AND t.status = ?
           AND (t.depends_on_task_id IS NULL OR dep.status = ?)
         ORDER BY t.created_at, t.id LIMIT 1`,
		pipelineID, TaskPending, TaskCompleted,
	)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next task: %w", err)
	}
	return t, nil
}

// Tasks returns all tasks for a pipeline in creation order.
func (s *Store) Tasks(ctx context.Context, pipelineID int64) ([]*Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM pipeline_tasks WHERE pipeline_id = ? ORDER BY created_at, id`,
		pipelineID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// TasksByType returns a pipeline's tasks of one type in creation order.
func (s *Store) TasksByType(ctx context.Context, pipelineID int64, taskType TaskType) ([]*Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM pipeline_tasks
         WHERE pipeline_id = ? AND task_type = ? ORDER BY created_at, id`,
		pipelineID, taskType,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks by type: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CountTasksInStatus reports how many of a pipeline's tasks sit in a status.
func (s *Store) CountTasksInStatus(ctx context.Context, pipelineID int64, status TaskStatus) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM pipeline_tasks WHERE pipeline_id = ? AND status = ?`,
		pipelineID, status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return count, nil
}

// UpdateTaskStatus transitions a task and keeps the owning pipeline's derived
// state in step. A transition to failed increments the retry counter and
// records the error; a transition to completed clears it. A non-empty stage
// also moves the pipeline's advisory stage label.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID int64, status TaskStatus, stage Stage, errorMessage string) error {
	now := time.Now()
	timestamp := db.FormatTime(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin task update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var pipelineID int64
	if err := tx.QueryRowContext(ctx, `SELECT pipeline_id FROM pipeline_tasks WHERE id = ?`, taskID).Scan(&pipelineID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return services.Wrap(services.ErrNotFound, "pipeline", "update_task",
				fmt.Sprintf("task %d not found", taskID), nil)
		}
		return fmt.Errorf("lookup task pipeline: %w", err)
	}

	var res sql.Result
	switch status {
	case TaskProcessing:
		res, err = tx.ExecContext(
			ctx,
			`UPDATE pipeline_tasks
             SET status = ?, started_at = COALESCE(started_at, ?), updated_at = ?
             WHERE id = ?`,
			status, timestamp, timestamp, taskID,
		)
	case TaskCompleted:
		res, err = tx.ExecContext(
			ctx,
			`UPDATE pipeline_tasks
             SET status = ?, error_message = NULL, completed_at = ?, updated_at = ?
             WHERE id = ?`,
			status, timestamp, timestamp, taskID,
		)
	case TaskFailed:
		res, err = tx.ExecContext(
			ctx,
			`UPDATE pipeline_tasks
             SET status = ?, retry_count = retry_count + 1, error_message = ?,
                 completed_at = ?, updated_at = ?
             WHERE id = ?`,
			status, db.NullString(errorMessage), timestamp, timestamp, taskID,
		)
	default:
		res, err = tx.ExecContext(
			ctx,
			`UPDATE pipeline_tasks SET status = ?, updated_at = ? WHERE id = ?`,
			status, timestamp, taskID,
		)
	}
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "pipeline", "update_task",
			fmt.Sprintf("task %d not found", taskID), nil)
	}

	if err := syncTaskCounts(ctx, tx, pipelineID, timestamp); err != nil {
		return err
	}

	if stage != "" {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE pipelines SET current_stage = ?, updated_at = ? WHERE id = ?`,
			stage, timestamp, pipelineID,
		); err != nil {
			return fmt.Errorf("update pipeline stage: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit task update: %w", err)
	}

	if status == TaskFailed {
		s.logger.Warn("task failed",
			logging.Int64(logging.FieldPipelineID, pipelineID),
			logging.Int64(logging.FieldTaskID, taskID),
			logging.String("error", errorMessage))
	}
	return nil
}

// RetryFailedTasks resets a pipeline's failed tasks back to pending, skipping
// any whose retry budget is exhausted, and un-fails the pipeline itself.
// Returns the number of tasks reset.
func (s *Store) RetryFailedTasks(ctx context.Context, pipelineID int64) (int64, error) {
	timestamp := db.FormatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin retry: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`UPDATE pipeline_tasks
         SET status = ?, error_message = NULL, completed_at = NULL, updated_at = ?
         WHERE pipeline_id = ? AND status = ? AND retry_count < ?`,
		TaskPending, timestamp, pipelineID, TaskFailed, MaxTaskRetries,
	)
	if err != nil {
		return 0, fmt.Errorf("reset failed tasks: %w", err)
	}
	reset, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE pipelines
         SET status = ?, error_message = NULL, completed_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusProcessing, timestamp, pipelineID, StatusFailed,
	); err != nil {
		return 0, fmt.Errorf("unfail pipeline: %w", err)
	}

	if err := syncTaskCounts(ctx, tx, pipelineID, timestamp); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit retry: %w", err)
	}

	if reset > 0 {
		s.logger.Info("failed tasks reset",
			logging.Int64(logging.FieldPipelineID, pipelineID),
			logging.Int64("tasks", reset))
	}
	return reset, nil
}

// syncTaskCounts recomputes the derived completed/failed counters so retries
// and resets cannot leave them drifting.
func syncTaskCounts(ctx context.Context, tx *sql.Tx, pipelineID int64, timestamp string) error {
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE pipelines SET
            completed_tasks = (SELECT COUNT(*) FROM pipeline_tasks WHERE pipeline_id = ? AND status = ?),
            failed_tasks = (SELECT COUNT(*) FROM pipeline_tasks WHERE pipeline_id = ? AND status = ?),
            updated_at = ?
         WHERE id = ?`,
		pipelineID, TaskCompleted, pipelineID, TaskFailed, timestamp, pipelineID,
	); err != nil {
		return fmt.Errorf("sync task counts: %w", err)
	}
	return nil
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, part := range parts {
		parts[i] = alias + "." + part
	}
	return strings.Join(parts, ", ")
}

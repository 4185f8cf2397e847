package pipeline

import (
	"context"
	"database/sql"
	"log/slog"

	"lectern/internal/db"
	"lectern/internal/logging"
)

const pipelineColumns = "id, document_id, status, current_stage, total_tasks, completed_tasks, failed_tasks, error_message, started_at, completed_at, created_at, updated_at"

const taskColumns = "id, pipeline_id, item_id, item_type, task_type, status, retry_count, depends_on_task_id, error_message, started_at, completed_at, created_at, updated_at"

// Store persists pipelines, tasks, and checkpoints.
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
		logger: logging.NewComponentLogger(logger, "pipeline-store"),
	}
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecRetry(ctx, query, args...)
}

func scanPipeline(scanner interface{ Scan(dest ...any) error }) (*Pipeline, error) {
	var (
		id           int64
		documentID   int64
		statusStr    string
		stageStr     string
		totalTasks   int
		completed    int
		failed       int
		errorMessage sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&documentID,
		&statusStr,
		&stageStr,
		&totalTasks,
		&completed,
		&failed,
		&errorMessage,
		&startedRaw,
		&completedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	p := &Pipeline{
		ID:             id,
		DocumentID:     documentID,
		Status:         Status(statusStr),
		CurrentStage:   Stage(stageStr),
		TotalTasks:     totalTasks,
		CompletedTasks: completed,
		FailedTasks:    failed,
		ErrorMessage:   errorMessage.String,
		StartedAt:      db.TimeFromNull(startedRaw),
		CompletedAt:    db.TimeFromNull(completedRaw),
	}
	if created, err := db.ParseTime(createdRaw); err == nil {
		p.CreatedAt = created
	}
	if updated, err := db.ParseTime(updatedRaw); err == nil {
		p.UpdatedAt = updated
	}
	return p, nil
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id           int64
		pipelineID   int64
		itemID       int64
		itemType     string
		taskTypeStr  string
		statusStr    string
		retryCount   int
		dependsOn    sql.NullInt64
		errorMessage sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&pipelineID,
		&itemID,
		&itemType,
		&taskTypeStr,
		&statusStr,
		&retryCount,
		&dependsOn,
		&errorMessage,
		&startedRaw,
		&completedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	t := &Task{
		ID:           id,
		PipelineID:   pipelineID,
		ItemID:       itemID,
		ItemType:     itemType,
		Type:         TaskType(taskTypeStr),
		Status:       TaskStatus(statusStr),
		RetryCount:   retryCount,
		ErrorMessage: errorMessage.String,
		StartedAt:    db.TimeFromNull(startedRaw),
		CompletedAt:  db.TimeFromNull(completedRaw),
	}
	if dependsOn.Valid {
		dep := dependsOn.Int64
		t.DependsOnTaskID = &dep
	}
	if created, err := db.ParseTime(createdRaw); err == nil {
		t.CreatedAt = created
	}
	if updated, err := db.ParseTime(updatedRaw); err == nil {
		t.UpdatedAt = updated
	}
	return t, nil
}

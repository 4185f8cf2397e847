package workqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lectern/internal/db"
	"lectern/internal/logging"
)

// Item statuses. Failed items stay in the table for inspection; they are
// not retried automatically.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

const itemColumns = "id, kind, payload, priority, status, error_message, created_at, processed_at"

// Item is one deferred job.
type Item struct {
	ID           int64
	Kind         string
	Payload      string
	Priority     int
	Status       string
	ErrorMessage string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// Handler executes one job kind. A returned error marks the item failed.
type Handler func(ctx context.Context, item *Item) error

// Queue is a priority-ordered job table with registered handlers.
type Queue struct {
	db       *db.Handle
	logger   *slog.Logger
	handlers map[string]Handler
}

// NewQueue wraps the shared database handle.
func NewQueue(handle *db.Handle, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Queue{
		db:       handle,
		logger:   logging.NewComponentLogger(logger, "workqueue"),
		handlers: make(map[string]Handler),
	}
}

// Register installs the handler for a job kind. Later registrations for the
// same kind replace earlier ones.
func (q *Queue) Register(kind string, handler Handler) {
	q.handlers[kind] = handler
}

// Enqueue adds a job. Lower priority numbers drain first.
func (q *Queue) Enqueue(ctx context.Context, kind, payload string, priority int) (*Item, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return nil, errors.New("job kind is required")
	}
	result, err := q.db.ExecRetry(
		ctx,
		`INSERT INTO work_items (kind, payload, priority, status, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		kind, payload, priority, StatusPending, db.FormatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue work item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("enqueue work item id: %w", err)
	}
	q.logger.Info("work item enqueued",
		logging.Int64("work_item_id", id),
		logging.String("kind", kind),
		logging.Int("priority", priority))
	return q.Get(ctx, id)
}

// Get fetches one item, nil when absent.
func (q *Queue) Get(ctx context.Context, id int64) (*Item, error) {
	row := q.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM work_items WHERE id = ?`, id,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work item: %w", err)
	}
	return item, nil
}

// Pending lists waiting items in drain order.
func (q *Queue) Pending(ctx context.Context, limit int) ([]*Item, error) {
	rows, err := q.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM work_items
         WHERE status = ? ORDER BY priority, created_at, id LIMIT ?`,
		StatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending work items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountPending reports the queue backlog.
func (q *Queue) CountPending(ctx context.Context) (int, error) {
	row := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM work_items WHERE status = ?`, StatusPending)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending work items: %w", err)
	}
	return count, nil
}

// DrainOne runs the highest-priority pending job and returns it, or nil when
// the queue is empty. Handler errors are absorbed into the item's failed
// status so one bad job cannot stall the worker loop.
func (q *Queue) DrainOne(ctx context.Context) (*Item, error) {
	items, err := q.Pending(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	item := items[0]

	handler, ok := q.handlers[item.Kind]
	if !ok {
		q.logger.Warn("no handler for work item",
			logging.Int64("work_item_id", item.ID),
			logging.String("kind", item.Kind))
		return item, q.settle(ctx, item.ID, StatusFailed, "no handler registered for kind "+item.Kind)
	}

	if err := handler(ctx, item); err != nil {
		q.logger.Warn("work item failed",
			logging.Int64("work_item_id", item.ID),
			logging.String("kind", item.Kind),
			logging.Error(err))
		return item, q.settle(ctx, item.ID, StatusFailed, err.Error())
	}

	q.logger.Info("work item done",
		logging.Int64("work_item_id", item.ID),
		logging.String("kind", item.Kind))
	return item, q.settle(ctx, item.ID, StatusDone, "")
}

func (q *Queue) settle(ctx context.Context, id int64, status, errorMessage string) error {
	_, err := q.db.ExecRetry(
		ctx,
		`UPDATE work_items SET status = ?, error_message = ?, processed_at = ? WHERE id = ?`,
		status, db.NullString(errorMessage), db.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("settle work item %d: %w", id, err)
	}
	return nil
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		item        Item
		errMsg      sql.NullString
		createdAt   string
		processedAt sql.NullString
	)
	if err := scanner.Scan(
		&item.ID,
		&item.Kind,
		&item.Payload,
		&item.Priority,
		&item.Status,
		&errMsg,
		&createdAt,
		&processedAt,
	); err != nil {
		return nil, err
	}
	item.ErrorMessage = db.StringOrEmpty(errMsg)
	created, err := db.ParseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse work item created_at: %w", err)
	}
	item.CreatedAt = created
	item.ProcessedAt = db.TimeFromNull(processedAt)
	return &item, nil
}

package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lectern/internal/db"
)

// appendEvent writes one row to the append-only lifecycle log. The log is
// never updated or deleted.
func (s *Store) appendEvent(ctx context.Context, eventType string, itemID int64, dataType DataType, fromStage, toStage ItemState, success bool, detail string) error {
	if _, err := s.exec(
		ctx,
		`INSERT INTO lifecycle_events (event_type, item_id, data_type, from_stage, to_stage, success, detail, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		eventType, itemID, db.NullString(string(dataType)),
		db.NullString(string(fromStage)), db.NullString(string(toStage)),
		db.BoolToInt(success), db.NullString(detail), db.FormatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("append lifecycle event: %w", err)
	}
	return nil
}

// EventsForItem returns the log rows recorded for one item id under an event
// type family, oldest first.
func (s *Store) EventsForItem(ctx context.Context, itemID int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, event_type, item_id, data_type, from_stage, to_stage, success, detail, created_at
         FROM lifecycle_events WHERE item_id = ? ORDER BY id`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events for item: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// RecentEvents returns the newest limit log rows, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, event_type, item_id, data_type, from_stage, to_stage, success, detail, created_at
         FROM lifecycle_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// CountEvents reports log rows per event type.
func (s *Store) CountEvents(ctx context.Context, eventType string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM lifecycle_events WHERE event_type = ?`,
		eventType,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

func collectEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		var (
			e          Event
			dataType   sql.NullString
			fromStage  sql.NullString
			toStage    sql.NullString
			success    int
			detail     sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.ItemID, &dataType, &fromStage, &toStage, &success, &detail, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.DataType = DataType(dataType.String)
		e.FromStage = ItemState(fromStage.String)
		e.ToStage = ItemState(toStage.String)
		e.Success = success != 0
		e.Detail = detail.String
		if created, err := db.ParseTime(createdRaw); err == nil {
			e.CreatedAt = created
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

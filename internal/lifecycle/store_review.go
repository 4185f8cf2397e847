package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lectern/internal/db"
)

// EnqueueForReview adds a validated item to the human review queue. A second
// enqueue for the same item is a no-op.
func (s *Store) EnqueueForReview(ctx context.Context, validatedID int64, dataType DataType, priority int) error {
	if _, err := s.exec(
		ctx,
		`INSERT INTO review_queue (validated_id, data_type, priority, queued_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(validated_id) DO NOTHING`,
		validatedID, dataType, priority, db.FormatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("enqueue for review: %w", err)
	}
	return s.appendEvent(ctx, EventEnqueuedForReview, validatedID, dataType, StateValidated, StateValidated, true, "")
}

// PendingReview returns unreviewed queue entries, highest priority first,
// oldest first within a priority.
func (s *Store) PendingReview(ctx context.Context, limit int) ([]*ReviewQueueEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, validated_id, data_type, priority, queued_at, reviewed_at
         FROM review_queue WHERE reviewed_at IS NULL
         ORDER BY priority, queued_at, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query review queue: %w", err)
	}
	defer rows.Close()

	var entries []*ReviewQueueEntry
	for rows.Next() {
		entry, err := scanReviewEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ReviewEntryForValidated returns the queue entry for a validated item.
func (s *Store) ReviewEntryForValidated(ctx context.Context, validatedID int64) (*ReviewQueueEntry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, validated_id, data_type, priority, queued_at, reviewed_at
         FROM review_queue WHERE validated_id = ?`,
		validatedID,
	)
	entry, err := scanReviewEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get review entry: %w", err)
	}
	return entry, nil
}

// CountPendingReview reports how many entries await a reviewer.
func (s *Store) CountPendingReview(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM review_queue WHERE reviewed_at IS NULL`,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count review queue: %w", err)
	}
	return count, nil
}

// settleReviewEntry stamps the review timestamp when approval or rejection
// lands, if an entry exists.
func (s *Store) settleReviewEntry(ctx context.Context, validatedID int64, timestamp string) error {
	if _, err := s.exec(
		ctx,
		`UPDATE review_queue SET reviewed_at = ? WHERE validated_id = ? AND reviewed_at IS NULL`,
		timestamp, validatedID,
	); err != nil {
		return fmt.Errorf("settle review entry: %w", err)
	}
	return nil
}

func scanReviewEntry(scanner interface{ Scan(dest ...any) error }) (*ReviewQueueEntry, error) {
	var (
		entry       ReviewQueueEntry
		dataType    string
		queuedRaw   string
		reviewedRaw sql.NullString
	)
	if err := scanner.Scan(&entry.ID, &entry.ValidatedID, &dataType, &entry.Priority, &queuedRaw, &reviewedRaw); err != nil {
		return nil, err
	}
	entry.DataType = DataType(dataType)
	entry.ReviewedAt = db.TimeFromNull(reviewedRaw)
	if queued, err := db.ParseTime(queuedRaw); err == nil {
		entry.QueuedAt = queued
	}
	return &entry, nil
}

package documents

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

// CreateMapping records a proposed chunk-to-topic link in pending.
func (s *Store) CreateMapping(ctx context.Context, chunkID, documentID, topicID int64, confidence float64, rationale string) (*Mapping, error) {
	res, err := s.exec(
		ctx,
		`INSERT INTO topic_mappings (chunk_id, document_id, topic_id, status, confidence, rationale, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		chunkID, documentID, topicID, MappingPending, confidence,
		db.NullString(rationale), db.FormatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert mapping: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetMapping(ctx, id)
}

// GetMapping fetches a mapping by identifier.
func (s *Store) GetMapping(ctx context.Context, id int64) (*Mapping, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mappingColumns+` FROM topic_mappings WHERE id = ?`, id)
	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mapping: %w", err)
	}
	return m, nil
}

// ConfirmMapping records a human's approval of a proposed mapping.
func (s *Store) ConfirmMapping(ctx context.Context, id int64) error {
	timestamp := db.FormatTime(time.Now())
	res, err := s.exec(
		ctx,
		`UPDATE topic_mappings SET status = ?, confirmed_at = ? WHERE id = ? AND status = ?`,
		MappingConfirmed, timestamp, id, MappingPending,
	)
	if err != nil {
		return fmt.Errorf("confirm mapping: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "documents", "confirm_mapping",
			fmt.Sprintf("mapping %d not found or not pending", id), nil)
	}
	s.logger.Info("mapping confirmed", logging.Int64("mapping_id", id))
	return nil
}

// RejectMapping discards a proposed mapping.
func (s *Store) RejectMapping(ctx context.Context, id int64) error {
	res, err := s.exec(
		ctx,
		`UPDATE topic_mappings SET status = ? WHERE id = ? AND status = ?`,
		MappingRejected, id, MappingPending,
	)
	if err != nil {
		return fmt.Errorf("reject mapping: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "documents", "reject_mapping",
			fmt.Sprintf("mapping %d not found or not pending", id), nil)
	}
	return nil
}

// MarkMappingTransformed records that drafts were produced for a confirmed
// mapping. The completion gate counts confirmed rows without this stamp.
func (s *Store) MarkMappingTransformed(ctx context.Context, id int64) error {
	res, err := s.exec(
		ctx,
		`UPDATE topic_mappings SET transformed_at = ? WHERE id = ?`,
		db.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("mark mapping transformed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "documents", "mark_transformed",
			fmt.Sprintf("mapping %d not found", id), nil)
	}
	return nil
}

// MappingsForDocument returns a document's mappings, optionally filtered by
// status, in creation order.
func (s *Store) MappingsForDocument(ctx context.Context, documentID int64, statuses ...MappingStatus) ([]*Mapping, error) {
	var (
		rows *sql.Rows
		err  error
	)
	baseQuery := `SELECT ` + mappingColumns + ` FROM topic_mappings WHERE document_id = ?`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause, documentID)
	} else {
		args := make([]any, 0, len(statuses)+1)
		args = append(args, documentID)
		for _, status := range statuses {
			args = append(args, status)
		}
		query := baseQuery + ` AND status IN (` + db.Placeholders(len(statuses)) + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("query mappings: %w", err)
	}
	defer rows.Close()
	return collectMappings(rows)
}

// PendingMappings returns up to limit pending mappings across all documents,
// oldest first, for the review surface.
func (s *Store) PendingMappings(ctx context.Context, limit int) ([]*Mapping, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+mappingColumns+` FROM topic_mappings WHERE status = ? ORDER BY created_at, id LIMIT ?`,
		MappingPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending mappings: %w", err)
	}
	defer rows.Close()
	return collectMappings(rows)
}

// CountPendingMappings reports how many mappings await confirmation across
// all documents. The daemon status surfaces this as review backlog.
func (s *Store) CountPendingMappings(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM topic_mappings WHERE status = ?`,
		MappingPending,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending mappings: %w", err)
	}
	return count, nil
}

// ConfirmedUntransformed returns a document's confirmed mappings that have
// not yet produced drafts. The orchestrator turns each into a transform task.
func (s *Store) ConfirmedUntransformed(ctx context.Context, documentID int64) ([]*Mapping, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+mappingColumns+` FROM topic_mappings
         WHERE document_id = ? AND status = ? AND transformed_at IS NULL
         ORDER BY created_at, id`,
		documentID, MappingConfirmed,
	)
	if err != nil {
		return nil, fmt.Errorf("query confirmed untransformed: %w", err)
	}
	defer rows.Close()
	return collectMappings(rows)
}

// CountConfirmedUntransformed reports how many confirmed mappings still lack
// drafts. The pipeline completion gate requires zero.
func (s *Store) CountConfirmedUntransformed(ctx context.Context, documentID int64) (int, error) {
	var count int
	if err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM topic_mappings
         WHERE document_id = ? AND status = ? AND transformed_at IS NULL`,
		documentID, MappingConfirmed,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count confirmed untransformed: %w", err)
	}
	return count, nil
}

func collectMappings(rows *sql.Rows) ([]*Mapping, error) {
	var mappings []*Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

package lifecycle

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

// PromoteDraftToCandidate advances a draft into the gate evaluation pool.
// The dedup guard skips the promotion when the tuple already has a
// candidate, validated item, or rejection; the boolean reports whether a
// candidate was created.
func (s *Store) PromoteDraftToCandidate(ctx context.Context, draftID int64) (*Candidate, bool, error) {
	draft, err := s.GetDraft(ctx, draftID)
	if err != nil {
		return nil, false, err
	}
	if draft == nil {
		return nil, false, services.Wrap(services.ErrNotFound, "lifecycle", "promote_draft",
			fmt.Sprintf("draft %d not found", draftID), nil)
	}

	state, err := s.lookupDedup(ctx, draft.TopicID, draft.DataType, draft.DedupKey)
	if err != nil {
		return nil, false, err
	}
	if blocked, reason := state.blocksCandidate(); blocked {
		s.logger.Info("candidate promotion skipped",
			logging.Int64("draft_id", draftID),
			logging.String("data_type", string(draft.DataType)),
			logging.String("dedup_key", draft.DedupKey),
			logging.String("reason", reason))
		if err := s.appendEvent(ctx, EventCandidateSkipped, draftID, draft.DataType, StateDraft, StateCandidate, false, reason); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	res, err := s.exec(
		ctx,
		`INSERT INTO candidates (draft_id, topic_id, data_type, payload_json, dedup_key, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		draft.ID, draft.TopicID, draft.DataType, draft.PayloadJSON, draft.DedupKey,
		db.FormatTime(time.Now()),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert candidate: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}

	if err := s.appendEvent(ctx, EventPromotedToCandidate, id, draft.DataType, StateDraft, StateCandidate, true, ""); err != nil {
		return nil, false, err
	}

	candidate, err := s.GetCandidate(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return candidate, true, nil
}

// GetCandidate fetches a candidate by identifier.
func (s *Store) GetCandidate(ctx context.Context, id int64) (*Candidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id)
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	return c, nil
}

// UnvalidatedCandidates returns up to limit candidates lacking a validated
// row, oldest created first. This is the promotion engine's selection query;
// candidates that failed gates remain selectable.
func (s *Store) UnvalidatedCandidates(ctx context.Context, limit int) ([]*Candidate, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+prefixedCandidateColumns+` FROM candidates c
         LEFT JOIN validated_items v ON v.candidate_id = c.id
         WHERE v.id IS NULL
         ORDER BY c.created_at, c.id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query unvalidated candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

const prefixedCandidateColumns = "c.id, c.draft_id, c.topic_id, c.data_type, c.payload_json, c.dedup_key, c.created_at"

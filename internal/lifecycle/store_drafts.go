package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lectern/internal/db"
	"lectern/internal/logging"
)

// CreateDraft records transformation output as a draft. The dedup guard skips
// the write when the (topic, data type, dedup key) tuple already exists
// anywhere in the chain: the skip is logged and audited but is not an error.
// The boolean reports whether a draft was actually created.
func (s *Store) CreateDraft(ctx context.Context, topicID int64, payload Payload, documentID, chunkID, jobID *int64) (*Draft, bool, error) {
	if payload == nil {
		return nil, false, errors.New("payload is nil")
	}
	dedupKey := payload.DedupKey()
	if dedupKey == "" {
		return nil, false, fmt.Errorf("%s payload has an empty dedup key", payload.Type())
	}

	state, err := s.lookupDedup(ctx, topicID, payload.Type(), dedupKey)
	if err != nil {
		return nil, false, err
	}
	if blocked, reason := state.blocksDraft(); blocked {
		s.logger.Info("draft skipped",
			logging.Int64("topic_id", topicID),
			logging.String("data_type", string(payload.Type())),
			logging.String("dedup_key", dedupKey),
			logging.String("reason", reason))
		if err := s.appendEvent(ctx, EventDraftSkipped, 0, payload.Type(), "", StateDraft, false, reason); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	payloadJSON, err := EncodePayload(payload)
	if err != nil {
		return nil, false, err
	}

	var docValue, chunkValue, jobValue any
	if documentID != nil {
		docValue = *documentID
	}
	if chunkID != nil {
		chunkValue = *chunkID
	}
	if jobID != nil {
		jobValue = *jobID
	}

	res, err := s.exec(
		ctx,
		`INSERT INTO drafts (topic_id, data_type, payload_json, dedup_key, document_id, chunk_id, transformation_job_id, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		topicID, payload.Type(), payloadJSON, dedupKey,
		docValue, chunkValue, jobValue, db.FormatTime(time.Now()),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert draft: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}

	if err := s.appendEvent(ctx, EventDraftCreated, id, payload.Type(), "", StateDraft, true, ""); err != nil {
		return nil, false, err
	}

	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return draft, true, nil
}

// GetDraft fetches a draft by identifier.
func (s *Store) GetDraft(ctx context.Context, id int64) (*Draft, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = ?`, id)
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return d, nil
}

// DraftsForJob returns the drafts produced under one transformation job.
func (s *Store) DraftsForJob(ctx context.Context, jobID int64) ([]*Draft, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+draftColumns+` FROM drafts WHERE transformation_job_id = ? ORDER BY id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query drafts for job: %w", err)
	}
	defer rows.Close()

	var drafts []*Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// StateForDraft reports how far along the chain a draft has travelled.
func (s *Store) StateForDraft(ctx context.Context, draftID int64) (ItemState, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT c.id, v.id, a.id, r.id
         FROM drafts d
         LEFT JOIN candidates c ON c.draft_id = d.id
         LEFT JOIN validated_items v ON v.candidate_id = c.id
         LEFT JOIN approved_items a ON a.validated_id = v.id
         LEFT JOIN rejected_items r ON r.validated_id = v.id
         WHERE d.id = ?`,
		draftID,
	)
	var candidateID, validatedID, approvedID, rejectedID sql.NullInt64
	if err := row.Scan(&candidateID, &validatedID, &approvedID, &rejectedID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("draft %d not found", draftID)
		}
		return "", fmt.Errorf("resolve draft state: %w", err)
	}

	switch {
	case approvedID.Valid:
		return StateApproved, nil
	case rejectedID.Valid:
		return StateRejected, nil
	case validatedID.Valid:
		return StateValidated, nil
	case candidateID.Valid:
		return StateCandidate, nil
	default:
		return StateDraft, nil
	}
}

package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lectern/internal/db"
	"lectern/internal/logging"
	"lectern/internal/services"
)

// PromoteCandidateToValidated writes the validated row for a candidate that
// passed every gate, recording the gate results for audit. The dedup guard
// still applies: a rejection or an earlier validated row for the tuple skips
// the write. The boolean reports whether the promotion happened.
func (s *Store) PromoteCandidateToValidated(ctx context.Context, candidateID int64, gateResults any) (*ValidatedItem, bool, error) {
	candidate, err := s.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, false, err
	}
	if candidate == nil {
		return nil, false, services.Wrap(services.ErrNotFound, "lifecycle", "promote_candidate",
			fmt.Sprintf("candidate %d not found", candidateID), nil)
	}

	state, err := s.lookupDedup(ctx, candidate.TopicID, candidate.DataType, candidate.DedupKey)
	if err != nil {
		return nil, false, err
	}
	if blocked, reason := state.blocksValidated(); blocked {
		s.logger.Info("validated promotion skipped",
			logging.Int64("candidate_id", candidateID),
			logging.String("dedup_key", candidate.DedupKey),
			logging.String("reason", reason))
		return nil, false, nil
	}

	var gateResultsJSON any
	if gateResults != nil {
		encoded, err := json.Marshal(gateResults)
		if err != nil {
			return nil, false, fmt.Errorf("marshal gate results: %w", err)
		}
		gateResultsJSON = string(encoded)
	}

	res, err := s.exec(
		ctx,
		`INSERT INTO validated_items (candidate_id, topic_id, data_type, payload_json, dedup_key, gate_results_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		candidate.ID, candidate.TopicID, candidate.DataType, candidate.PayloadJSON,
		candidate.DedupKey, gateResultsJSON, db.FormatTime(time.Now()),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert validated item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}

	if err := s.appendEvent(ctx, EventPromotedToValidated, id, candidate.DataType, StateCandidate, StateValidated, true, ""); err != nil {
		return nil, false, err
	}

	item, err := s.GetValidated(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return item, true, nil
}

// GetValidated fetches a validated item by identifier.
func (s *Store) GetValidated(ctx context.Context, id int64) (*ValidatedItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+validatedColumns+` FROM validated_items WHERE id = ?`, id)
	v, err := scanValidated(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get validated item: %w", err)
	}
	return v, nil
}

// ApproveValidated records a human's acceptance of a validated item and
// settles its review queue entry.
func (s *Store) ApproveValidated(ctx context.Context, validatedID int64, approvedBy string) (*ApprovedItem, error) {
	item, err := s.GetValidated(ctx, validatedID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, "lifecycle", "approve",
			fmt.Sprintf("validated item %d not found", validatedID), nil)
	}

	timestamp := db.FormatTime(time.Now())
	res, err := s.exec(
		ctx,
		`INSERT INTO approved_items (validated_id, topic_id, data_type, payload_json, dedup_key, approved_by, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.TopicID, item.DataType, item.PayloadJSON, item.DedupKey,
		db.NullString(approvedBy), timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert approved item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := s.settleReviewEntry(ctx, item.ID, timestamp); err != nil {
		return nil, err
	}
	if err := s.appendEvent(ctx, EventApproved, id, item.DataType, StateValidated, StateApproved, true, ""); err != nil {
		return nil, err
	}

	s.logger.Info("item approved",
		logging.Int64("validated_id", item.ID),
		logging.String("data_type", string(item.DataType)),
		logging.String("dedup_key", item.DedupKey))

	return &ApprovedItem{
		ID:          id,
		ValidatedID: item.ID,
		TopicID:     item.TopicID,
		DataType:    item.DataType,
		PayloadJSON: item.PayloadJSON,
		DedupKey:    item.DedupKey,
		ApprovedBy:  approvedBy,
	}, nil
}

// RecordRejection blocks a validated item's tuple permanently and settles
// its review queue entry.
func (s *Store) RecordRejection(ctx context.Context, validatedID int64, reason, rejectedBy string) error {
	item, err := s.GetValidated(ctx, validatedID)
	if err != nil {
		return err
	}
	if item == nil {
		return services.Wrap(services.ErrNotFound, "lifecycle", "reject",
			fmt.Sprintf("validated item %d not found", validatedID), nil)
	}

	timestamp := db.FormatTime(time.Now())
	if _, err := s.exec(
		ctx,
		`INSERT INTO rejected_items (validated_id, topic_id, data_type, dedup_key, reason, rejected_by, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.TopicID, item.DataType, item.DedupKey,
		db.NullString(reason), db.NullString(rejectedBy), timestamp,
	); err != nil {
		return fmt.Errorf("insert rejected item: %w", err)
	}

	if err := s.settleReviewEntry(ctx, item.ID, timestamp); err != nil {
		return err
	}
	if err := s.appendEvent(ctx, EventRejected, item.ID, item.DataType, StateValidated, StateRejected, true, reason); err != nil {
		return err
	}

	s.logger.Info("item rejected",
		logging.Int64("validated_id", item.ID),
		logging.String("dedup_key", item.DedupKey),
		logging.String("reason", reason))
	return nil
}

// RecordRejectedTuple blocks a tuple that never reached validation, for
// administrative rejections of bad content.
func (s *Store) RecordRejectedTuple(ctx context.Context, topicID int64, dataType DataType, dedupKey, reason, rejectedBy string) error {
	if dedupKey == "" {
		return errors.New("dedup key is required")
	}
	if _, err := s.exec(
		ctx,
		`INSERT INTO rejected_items (validated_id, topic_id, data_type, dedup_key, reason, rejected_by, created_at)
         VALUES (NULL, ?, ?, ?, ?, ?, ?)`,
		topicID, dataType, dedupKey,
		db.NullString(reason), db.NullString(rejectedBy), db.FormatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("insert rejected tuple: %w", err)
	}
	return s.appendEvent(ctx, EventRejected, 0, dataType, "", StateRejected, true, reason)
}

// RecentValidatedTexts returns the primary text of a topic's newest validated
// items. The duplicate gate compares candidates against these.
func (s *Store) RecentValidatedTexts(ctx context.Context, topicID int64, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT data_type, payload_json FROM validated_items
         WHERE topic_id = ? ORDER BY id DESC LIMIT ?`,
		topicID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query validated texts: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var (
			dataType    string
			payloadJSON string
		)
		if err := rows.Scan(&dataType, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scan validated text: %w", err)
		}
		payload, err := DecodePayload(DataType(dataType), payloadJSON)
		if err != nil {
			continue
		}
		texts = append(texts, payload.PrimaryText())
	}
	return texts, rows.Err()
}

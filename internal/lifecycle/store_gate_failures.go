package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lectern/internal/db"
)

// GateFailureInput carries one failing gate's diagnosis into the store.
type GateFailureInput struct {
	GateName string
	Tier     int
	Reason   string
	Score    float64
}

// RecordGateFailures persists one row per failing gate and appends the
// quality_gates_failed event. The candidate itself stays untouched and
// remains selectable by the next promotion batch.
func (s *Store) RecordGateFailures(ctx context.Context, candidateID int64, failures []GateFailureInput) error {
	if len(failures) == 0 {
		return nil
	}
	timestamp := db.FormatTime(time.Now())

	for _, failure := range failures {
		if _, err := s.exec(
			ctx,
			`INSERT INTO gate_failures (candidate_id, gate_name, tier, reason, score, created_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			candidateID, failure.GateName, failure.Tier,
			db.NullString(failure.Reason), failure.Score, timestamp,
		); err != nil {
			return fmt.Errorf("insert gate failure: %w", err)
		}
	}

	candidate, err := s.GetCandidate(ctx, candidateID)
	if err != nil {
		return err
	}
	dataType := DataType("")
	if candidate != nil {
		dataType = candidate.DataType
	}
	detail := failures[0].GateName
	if len(failures) > 1 {
		detail = fmt.Sprintf("%s (+%d more)", failures[0].GateName, len(failures)-1)
	}
	return s.appendEvent(ctx, EventGatesFailed, candidateID, dataType, StateCandidate, StateCandidate, false, detail)
}

// FailuresForCandidate returns a candidate's recorded gate failures, newest
// first.
func (s *Store) FailuresForCandidate(ctx context.Context, candidateID int64) ([]*GateFailure, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, candidate_id, gate_name, tier, reason, score, created_at
         FROM gate_failures WHERE candidate_id = ? ORDER BY id DESC`,
		candidateID,
	)
	if err != nil {
		return nil, fmt.Errorf("query gate failures: %w", err)
	}
	defer rows.Close()

	var failures []*GateFailure
	for rows.Next() {
		var (
			f          GateFailure
			reason     sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&f.ID, &f.CandidateID, &f.GateName, &f.Tier, &reason, &f.Score, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan gate failure: %w", err)
		}
		f.Reason = reason.String
		if created, err := db.ParseTime(createdRaw); err == nil {
			f.CreatedAt = created
		}
		failures = append(failures, &f)
	}
	return failures, rows.Err()
}

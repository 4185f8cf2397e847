package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lectern/internal/db"
)

// SaveCheckpoint records the most recently completed unit of work. The item
// id may be nil when the work has no single-item identity, for example a
// promotion batch. Metadata may be nil.
func (s *Store) SaveCheckpoint(ctx context.Context, itemID *int64, itemType string, metadata map[string]any) error {
	return s.insertCheckpoint(ctx, itemID, itemType, metadata)
}

// SaveHeartbeat records a liveness checkpoint with no associated item so
// external monitors can tell an idle process from a dead one.
func (s *Store) SaveHeartbeat(ctx context.Context) error {
	return s.insertCheckpoint(ctx, nil, "", map[string]any{"heartbeat": true})
}

// SaveErrorCheckpoint records that a tick failed, with the error text in
// metadata. The worker writes one of these before continuing its loop.
func (s *Store) SaveErrorCheckpoint(ctx context.Context, message string) error {
	return s.insertCheckpoint(ctx, nil, "", map[string]any{"error": message})
}

func (s *Store) insertCheckpoint(ctx context.Context, itemID *int64, itemType string, metadata map[string]any) error {
	var metadataJSON any
	if len(metadata) > 0 {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal checkpoint metadata: %w", err)
		}
		metadataJSON = string(encoded)
	}

	var itemIDValue any
	if itemID != nil {
		itemIDValue = *itemID
	}

	if _, err := s.exec(
		ctx,
		`INSERT INTO checkpoints (last_processed_id, last_processed_type, metadata, created_at)
         VALUES (?, ?, ?, ?)`,
		itemIDValue,
		db.NullString(itemType),
		metadataJSON,
		db.FormatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// LatestCheckpoint returns the most recent checkpoint, or nil when the
// process has never run.
func (s *Store) LatestCheckpoint(ctx context.Context) (*Checkpoint, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, last_processed_id, last_processed_type, metadata, created_at
         FROM checkpoints ORDER BY id DESC LIMIT 1`,
	)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest checkpoint: %w", err)
	}
	return cp, nil
}

// PruneCheckpoints trims the checkpoint trail to the newest keep rows.
func (s *Store) PruneCheckpoints(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.exec(
		ctx,
		`DELETE FROM checkpoints WHERE id NOT IN (
            SELECT id FROM checkpoints ORDER BY id DESC LIMIT ?
        )`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	return res.RowsAffected()
}

func scanCheckpoint(scanner interface{ Scan(dest ...any) error }) (*Checkpoint, error) {
	var (
		id          int64
		processedID sql.NullInt64
		itemType    sql.NullString
		metadataRaw sql.NullString
		createdRaw  string
	)
	if err := scanner.Scan(&id, &processedID, &itemType, &metadataRaw, &createdRaw); err != nil {
		return nil, err
	}

	cp := &Checkpoint{
		ID:                id,
		LastProcessedType: itemType.String,
	}
	if processedID.Valid {
		v := processedID.Int64
		cp.LastProcessedID = &v
	}
	if metadataRaw.Valid && metadataRaw.String != "" {
		metadata := make(map[string]any)
		if err := json.Unmarshal([]byte(metadataRaw.String), &metadata); err == nil {
			cp.Metadata = metadata
		}
	}
	if created, err := db.ParseTime(createdRaw); err == nil {
		cp.CreatedAt = created
	}
	return cp, nil
}

package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lectern/internal/db"
	"lectern/internal/services"
)

// EnsureTopic returns the topic with the given name and language, creating
// it when missing. Names are stored as given; uniqueness is per language.
func (s *Store) EnsureTopic(ctx context.Context, name, language string, levelID *int64) (*Topic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("topic name is required")
	}

	var levelValue any
	if levelID != nil {
		levelValue = *levelID
	}
	if _, err := s.exec(
		ctx,
		`INSERT INTO topics (name, language, level_id, created_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(name, language) DO NOTHING`,
		name, language, levelValue, db.FormatTime(time.Now()),
	); err != nil {
		return nil, fmt.Errorf("insert topic: %w", err)
	}

	topic, err := s.TopicByName(ctx, name, language)
	if err != nil {
		return nil, err
	}
	if topic == nil {
		return nil, services.Wrap(services.ErrNotFound, "documents", "ensure_topic",
			fmt.Sprintf("topic %q vanished after insert", name), nil)
	}
	return topic, nil
}

// GetTopic fetches a topic by identifier.
func (s *Store) GetTopic(ctx context.Context, id int64) (*Topic, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, language, level_id, description, created_at FROM topics WHERE id = ?`,
		id,
	)
	t, err := scanTopic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}
	return t, nil
}

// TopicByName fetches a topic by its per-language unique name.
func (s *Store) TopicByName(ctx context.Context, name, language string) (*Topic, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, language, level_id, description, created_at
         FROM topics WHERE name = ? AND language = ?`,
		strings.TrimSpace(name), language,
	)
	t, err := scanTopic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("topic by name: %w", err)
	}
	return t, nil
}

// ListTopics returns all topics for a language in name order.
func (s *Store) ListTopics(ctx context.Context, language string) ([]*Topic, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, name, language, level_id, description, created_at
         FROM topics WHERE language = ? ORDER BY name`,
		language,
	)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var topics []*Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// ResolveLevel returns the level row for a language and code, falling back
// to the language's A1 level when no exact match exists.
func (s *Store) ResolveLevel(ctx context.Context, language, code string) (*Level, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	lookup := func(levelCode string) (*Level, error) {
		row := s.db.QueryRowContext(
			ctx,
			`SELECT id, code, language, name, ordinal FROM levels WHERE language = ? AND code = ?`,
			language, levelCode,
		)
		var level Level
		err := row.Scan(&level.ID, &level.Code, &level.Language, &level.Name, &level.Ordinal)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("lookup level: %w", err)
		}
		return &level, nil
	}

	if code != "" {
		level, err := lookup(code)
		if err != nil {
			return nil, err
		}
		if level != nil {
			return level, nil
		}
	}

	fallback, err := lookup("A1")
	if err != nil {
		return nil, err
	}
	if fallback == nil {
		return nil, services.Wrap(services.ErrNotFound, "documents", "resolve_level",
			fmt.Sprintf("no levels seeded for language %q", language), nil)
	}
	return fallback, nil
}

// LevelByID fetches a level row by identifier, nil when absent.
func (s *Store) LevelByID(ctx context.Context, id int64) (*Level, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, code, language, name, ordinal FROM levels WHERE id = ?`,
		id,
	)
	var level Level
	err := row.Scan(&level.ID, &level.Code, &level.Language, &level.Name, &level.Ordinal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("level by id: %w", err)
	}
	return &level, nil
}

// ListLevels returns a language's levels ordered by difficulty.
func (s *Store) ListLevels(ctx context.Context, language string) ([]*Level, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, code, language, name, ordinal FROM levels WHERE language = ? ORDER BY ordinal`,
		language,
	)
	if err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	defer rows.Close()

	var levels []*Level
	for rows.Next() {
		var level Level
		if err := rows.Scan(&level.ID, &level.Code, &level.Language, &level.Name, &level.Ordinal); err != nil {
			return nil, fmt.Errorf("scan level: %w", err)
		}
		levels = append(levels, &level)
	}
	return levels, rows.Err()
}

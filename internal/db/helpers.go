package db

import (
	"database/sql"
	"strings"
	"time"
)

const (
	// TimeFormat stores timestamps in a stable, sortable form.
	TimeFormat = time.RFC3339Nano

	legacyTimeFormat = "2006-01-02 15:04:05"
)

// NullString converts an optional string into its SQL representation.
func NullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// FormatTime renders a timestamp for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime accepts the storage format plus the legacy space-separated form.
func ParseTime(value string) (time.Time, error) {
	if t, err := time.Parse(TimeFormat, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse(legacyTimeFormat, value)
}

// TimeFromNull parses a nullable timestamp column.
func TimeFromNull(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := ParseTime(ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// Placeholders renders "?, ?, ?" for n parameters.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// BoolToInt converts a bool to its SQLite integer form.
func BoolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// StringOrEmpty unwraps a nullable text column.
func StringOrEmpty(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

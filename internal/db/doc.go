// Package db owns the shared SQLite handle, schema migrations, and the
// scan/format helpers used by the store packages.
package db

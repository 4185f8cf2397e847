package testsupport

import (
	"testing"

	"lectern/internal/config"
	"lectern/internal/db"
)

// MustOpenDB opens the shared database handle for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *db.Handle {
	t.Helper()

	handle, err := db.Open(cfg)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = handle.Close()
	})
	return handle
}

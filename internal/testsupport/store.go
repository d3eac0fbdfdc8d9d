package testsupport

import (
	"testing"

	"tether/internal/config"
	"tether/internal/index"
)

// MustOpenStore opens an index.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *index.Store {
	t.Helper()

	store, err := index.Open(cfg.Paths.DataDir)
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

package testsupport

import (
	"testing"

	"cognivoice/internal/config"
	"cognivoice/internal/results"
)

// MustOpenStore opens a results.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *results.Store {
	t.Helper()

	store, err := results.Open(cfg)
	if err != nil {
		t.Fatalf("results.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

package testsupport

import (
	"testing"

	"teslabox/internal/config"
	"teslabox/internal/queue"
)

// MustOpenStore opens the state database named by cfg. The store is closed
// when the test ends; a close failure fails the test because it usually
// means a query leaked its rows.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open state database %s: %v", cfg.DatabasePath(), err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close state database: %v", err)
		}
	})
	return store
}

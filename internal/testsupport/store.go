package testsupport

import (
	"testing"

	"lumen/internal/config"
	"lumen/internal/store"
)

// MustOpenStore opens the customization database under cfg's state
// directory. The store is closed when the test ends; a close error fails it.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("open customization store at %s: %v", cfg.DatabasePath(), err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("close customization store: %v", err)
		}
	})
	return st
}

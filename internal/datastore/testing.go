package datastore

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/tphakala/aquatrack/internal/conf"
)

// NewTestStore returns a store backed by a private in-memory SQLite database.
// The database name is randomized so parallel tests never share state; the
// shared cache keeps all pooled connections on the same database.
func NewTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	settings := conf.DefaultSettings()
	settings.Output.SQLite.Path = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())

	store := &SQLiteStore{Settings: settings}
	if err := store.Open(); err != nil {
		t.Fatalf("opening test datastore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

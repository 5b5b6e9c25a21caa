package testsupport

import (
	"context"
	"testing"

	"garagewatch/internal/config"
	"garagewatch/internal/metadata"
)

// MustOpenStore opens the metadata store for cfg and closes it on cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *metadata.Store {
	t.Helper()

	store, err := metadata.Open(cfg)
	if err != nil {
		t.Fatalf("metadata.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// SeedRecords inserts one labelled record per id and commits.
func SeedRecords(t testing.TB, store *metadata.Store, label string, ids ...int64) {
	t.Helper()

	ctx := context.Background()
	for _, id := range ids {
		if err := store.Insert(ctx, metadata.Record{ItemID: id, ClassificationLabel: label}); err != nil {
			t.Fatalf("Insert(%d): %v", id, err)
		}
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

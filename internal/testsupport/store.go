package testsupport

import (
	"context"
	"testing"

	"libretto/internal/catalog"
	"libretto/internal/config"
	"libretto/internal/identity"
	"libretto/internal/staging"
)

// MustOpenStaging opens a staging.Store for tests and registers cleanup.
func MustOpenStaging(t testing.TB, cfg *config.Config) *staging.Store {
	t.Helper()

	store, err := staging.Open(cfg)
	if err != nil {
		t.Fatalf("staging.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenIdentity opens an identity.Store for tests and registers cleanup.
func MustOpenIdentity(t testing.TB, cfg *config.Config) *identity.Store {
	t.Helper()

	store, err := identity.Open(cfg)
	if err != nil {
		t.Fatalf("identity.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenCatalog opens a catalog.SQLStore for tests and registers cleanup.
func MustOpenCatalog(t testing.TB, cfg *config.Config) *catalog.SQLStore {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// StageRecord stages a record for tests using the provided store.
func StageRecord(t testing.TB, store *staging.Store, source, sourceID, entityType string, raw map[string]any) *staging.Record {
	t.Helper()

	record, err := store.Stage(context.Background(), source, sourceID, entityType, raw, "test-checksum")
	if err != nil {
		t.Fatalf("store.Stage: %v", err)
	}
	return record
}

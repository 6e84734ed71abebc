package testsupport

import (
	"context"
	"testing"

	"consentsync/internal/config"
	"consentsync/internal/schema"
	"consentsync/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// MustResolveTables registers the store catalog and resolves every entity.
func MustResolveTables(t testing.TB, st *store.Store, namespace string) schema.Tables {
	t.Helper()

	catalog, err := st.Catalog(context.Background())
	if err != nil {
		t.Fatalf("store.Catalog: %v", err)
	}
	tables, err := schema.ResolveCatalog(namespace, catalog)
	if err != nil {
		t.Fatalf("ResolveCatalog: %v", err)
	}
	return tables
}

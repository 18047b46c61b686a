package testing

import (
	"testing"

	"github.com/docsieve/docsieve/cache"
)

// CreateTestCache creates an in-memory response cache.
// Automatically registers cleanup via t.Cleanup().
func CreateTestCache(t *testing.T) *cache.Store {
	t.Helper()

	store, err := cache.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Failed to create test cache: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

package store

import (
	"context"
	"testing"
)

// testCtx returns a background context for tests that don't exercise
// cancellation.
func testCtx() context.Context {
	return context.Background()
}

// newTestStore creates a fresh in-memory store for a single test.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

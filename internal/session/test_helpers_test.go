package session

import "context"

// testCtx returns a background context for tests that don't exercise
// cancellation.
func testCtx() context.Context {
	return context.Background()
}

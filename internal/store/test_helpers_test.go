package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roach88/querygraph/internal/history"
	"github.com/roach88/querygraph/internal/ident"
	"github.com/roach88/querygraph/internal/testutil"
)

// createTestStore creates a new temporary store for testing with stable
// session ids and creation times.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path,
		WithTokens(ident.NewFixedGenerator("session-a", "session-b", "session-c")),
		WithClock(testutil.NewDeterministicClock().Now),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testHistoryOptions returns quiet history options with a deterministic clock.
func testHistoryOptions() history.Options {
	return history.Options{
		Now:    testutil.NewDeterministicClock().Now,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

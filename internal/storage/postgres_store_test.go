package storage

import (
	"context"
	"os"
	"testing"
)

// Set FEEDPUSH_TEST_POSTGRES_DSN to a disposable database to run this test.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("FEEDPUSH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FEEDPUSH_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := OpenPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	for _, table := range []string{"seen_url", "seen_title", "board_daily_usage"} {
		if _, err := s.db.ExecContext(ctx, "TRUNCATE "+table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	exerciseStore(t, s)
}

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"feedpush/internal/config"
)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	snap, err := s.Snapshot(ctx, "2024-05-01", []string{"https://a", "https://b"}, []string{"title a"})
	if err != nil {
		t.Fatalf("empty snapshot: %v", err)
	}
	if snap.WasSeen("https://a") || snap.WasTitleSeen("title a") || snap.ActiveBoards() != 0 {
		t.Fatalf("fresh store should report nothing seen")
	}

	b := NewBatch("2024-05-01", at)
	b.MarkSeen("https://a", "title a")
	b.MarkSeen("https://r/1", "")
	b.RecordBoardUsage("worldnews")
	b.RecordBoardUsage("worldnews")
	b.RecordBoardUsage("science")
	if err := s.Commit(ctx, b); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if ok, err := s.WasSeen(ctx, "https://a"); err != nil || !ok {
		t.Fatalf("WasSeen(a) = %v, %v", ok, err)
	}
	if ok, err := s.WasSeen(ctx, "https://b"); err != nil || ok {
		t.Fatalf("WasSeen(b) = %v, %v", ok, err)
	}
	if ok, err := s.WasTitleSeen(ctx, "title a"); err != nil || !ok {
		t.Fatalf("WasTitleSeen = %v, %v", ok, err)
	}
	if ok, err := s.WasTitleSeen(ctx, ""); err != nil || ok {
		t.Fatalf("empty title must never be seen: %v, %v", ok, err)
	}
	if n, err := s.BoardUsageToday(ctx, "worldnews", "2024-05-01"); err != nil || n != 2 {
		t.Fatalf("usage = %d, %v", n, err)
	}
	if n, err := s.BoardUsageToday(ctx, "worldnews", "2024-05-02"); err != nil || n != 0 {
		t.Fatalf("usage on a new day = %d, %v", n, err)
	}

	snap, err = s.Snapshot(ctx, "2024-05-01",
		[]string{"https://a", "https://b", "https://a"}, []string{"title a", "title b"})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.WasSeen("https://a") || snap.WasSeen("https://b") {
		t.Fatalf("snapshot url flags wrong")
	}
	if !snap.WasTitleSeen("title a") || snap.WasTitleSeen("title b") {
		t.Fatalf("snapshot title flags wrong")
	}
	if snap.ActiveBoards() != 2 || snap.BoardUsageToday("science") != 1 {
		t.Fatalf("snapshot usage = %v", snap.Usage())
	}
	usage, err := s.BoardUsage(ctx, "2024-05-01")
	if err != nil || usage["worldnews"] != 2 || len(usage) != 2 {
		t.Fatalf("BoardUsage = %v, %v", usage, err)
	}

	// a later push refreshes the timestamp so pruning keeps it
	later := NewBatch("2024-05-03", at.Add(48*time.Hour))
	later.MarkSeen("https://a", "title a")
	later.RecordBoardUsage("europe")
	if err := s.Commit(ctx, later); err != nil {
		t.Fatalf("commit later: %v", err)
	}
	removed, err := s.Prune(ctx, at.Add(24*time.Hour), "2024-05-02")
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed == 0 {
		t.Fatalf("prune removed nothing")
	}
	if ok, _ := s.WasSeen(ctx, "https://a"); !ok {
		t.Fatalf("refreshed url was pruned")
	}
	if ok, _ := s.WasSeen(ctx, "https://r/1"); ok {
		t.Fatalf("old url survived prune")
	}
	if n, _ := s.BoardUsageToday(ctx, "worldnews", "2024-05-01"); n != 0 {
		t.Fatalf("old usage survived prune: %d", n)
	}
	if n, _ := s.BoardUsageToday(ctx, "europe", "2024-05-03"); n != 1 {
		t.Fatalf("current usage pruned: %d", n)
	}

	if err := s.Commit(ctx, NewBatch("2024-05-03", at)); err != nil {
		t.Fatalf("empty commit: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := config.Config{Store: config.StoreConfig{Backend: "sqlite"}}
	_, err := Open(context.Background(), cfg)
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("err = %v, want ErrUnknownBackend", err)
	}
}

func TestOpenMemory(t *testing.T) {
	s, err := Open(context.Background(), config.Config{Store: config.StoreConfig{Backend: "Memory"}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("got %T", s)
	}
}

func TestBatchEmpty(t *testing.T) {
	b := NewBatch("2024-01-01", time.Now())
	if !b.Empty() {
		t.Fatal("new batch should be empty")
	}
	b.RecordBoardUsage("science")
	if b.Empty() {
		t.Fatal("batch with usage is not empty")
	}
}

// Package storage persists the cross-run dedup state: urls and normalized titles
// already pushed, and per-day board usage counters.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedpush/internal/config"
	"feedpush/internal/redisclient"
)

// ErrUnknownBackend is returned by Open for an unsupported store.backend.
var ErrUnknownBackend = errors.New("storage: unknown backend")

// Store is the persistent dedup store. Commit applies a whole batch or nothing.
type Store interface {
	WasSeen(ctx context.Context, url string) (bool, error)
	WasTitleSeen(ctx context.Context, normalizedTitle string) (bool, error)
	BoardUsageToday(ctx context.Context, board, dayKey string) (int, error)
	// BoardUsage returns every board counter of a day.
	BoardUsage(ctx context.Context, dayKey string) (map[string]int, error)
	// Snapshot answers the seen flags of the given urls/titles and the usage of
	// dayKey in one consistent read.
	Snapshot(ctx context.Context, dayKey string, urls, titles []string) (*Snapshot, error)
	Commit(ctx context.Context, b *Batch) error
	// Prune drops seen entries last marked before the cutoff and usage counters of
	// days before beforeDay. It returns the number of removed entries.
	Prune(ctx context.Context, before time.Time, beforeDay string) (int64, error)
	Close() error
}

// SeenEntry is one markSeen call of a batch.
type SeenEntry struct {
	URL   string
	Title string // normalized, may be empty
}

// Batch collects the writes of one run.
type Batch struct {
	DayKey string
	At     time.Time
	Seen   []SeenEntry
	Boards []string
}

func NewBatch(dayKey string, at time.Time) *Batch {
	return &Batch{DayKey: dayKey, At: at}
}

// MarkSeen records url and normalized title as pushed at the batch time.
func (b *Batch) MarkSeen(url, normalizedTitle string) {
	b.Seen = append(b.Seen, SeenEntry{URL: url, Title: normalizedTitle})
}

// RecordBoardUsage adds one to the board's counter for the batch day.
func (b *Batch) RecordBoardUsage(board string) {
	b.Boards = append(b.Boards, board)
}

func (b *Batch) Empty() bool { return len(b.Seen) == 0 && len(b.Boards) == 0 }

// Snapshot is an immutable view of the store taken at the start of a run. It
// satisfies selection.State.
type Snapshot struct {
	DayKey string
	urls   map[string]bool
	titles map[string]bool
	usage  map[string]int
}

func NewSnapshot(dayKey string) *Snapshot {
	return &Snapshot{
		DayKey: dayKey,
		urls:   map[string]bool{},
		titles: map[string]bool{},
		usage:  map[string]int{},
	}
}

func (s *Snapshot) WasSeen(url string) bool        { return s.urls[url] }
func (s *Snapshot) WasTitleSeen(title string) bool { return title != "" && s.titles[title] }
func (s *Snapshot) BoardUsageToday(b string) int   { return s.usage[b] }

func (s *Snapshot) ActiveBoards() int {
	n := 0
	for _, c := range s.usage {
		if c > 0 {
			n++
		}
	}
	return n
}

// Usage returns a copy of the day's board counters.
func (s *Snapshot) Usage() map[string]int {
	out := make(map[string]int, len(s.usage))
	for k, v := range s.usage {
		out[k] = v
	}
	return out
}

// Open builds the store selected by cfg.Store.Backend.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Backend)) {
	case "", "redis":
		return NewRedisStore(redisclient.New(cfg.Redis), cfg.Store.KeyPrefix), nil
	case "postgres":
		s, err := OpenPostgresStore(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Store.Backend)
	}
}

func uniq(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

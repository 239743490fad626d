package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the dedup state in process memory. It backs dry runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	urls   map[string]time.Time
	titles map[string]time.Time
	usage  map[string]map[string]int // day -> board -> count
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		urls:   map[string]time.Time{},
		titles: map[string]time.Time{},
		usage:  map[string]map[string]int{},
	}
}

func (m *MemoryStore) WasSeen(_ context.Context, url string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.urls[url]
	return ok, nil
}

func (m *MemoryStore) WasTitleSeen(_ context.Context, title string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.titles[title]
	return ok, nil
}

func (m *MemoryStore) BoardUsageToday(_ context.Context, board, dayKey string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usage[dayKey][board], nil
}

func (m *MemoryStore) BoardUsage(_ context.Context, dayKey string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[string]int{}
	for b, n := range m.usage[dayKey] {
		out[b] = n
	}
	return out, nil
}

func (m *MemoryStore) Snapshot(_ context.Context, dayKey string, urls, titles []string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := NewSnapshot(dayKey)
	for _, u := range urls {
		if _, ok := m.urls[u]; ok {
			snap.urls[u] = true
		}
	}
	for _, t := range titles {
		if _, ok := m.titles[t]; ok {
			snap.titles[t] = true
		}
	}
	for b, n := range m.usage[dayKey] {
		snap.usage[b] = n
	}
	return snap, nil
}

func (m *MemoryStore) Commit(_ context.Context, b *Batch) error {
	if b == nil || b.Empty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range b.Seen {
		m.urls[e.URL] = b.At
		if e.Title != "" {
			m.titles[e.Title] = b.At
		}
	}
	if len(b.Boards) > 0 {
		day := m.usage[b.DayKey]
		if day == nil {
			day = map[string]int{}
			m.usage[b.DayKey] = day
		}
		for _, board := range b.Boards {
			day[board]++
		}
	}
	return nil
}

func (m *MemoryStore) Prune(_ context.Context, before time.Time, beforeDay string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for u, at := range m.urls {
		if at.Before(before) {
			delete(m.urls, u)
			n++
		}
	}
	for t, at := range m.titles {
		if at.Before(before) {
			delete(m.titles, t)
			n++
		}
	}
	for day := range m.usage {
		if day < beforeDay {
			delete(m.usage, day)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Close() error { return nil }

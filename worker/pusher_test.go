package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"feedpush/internal/config"
	"feedpush/internal/keyword"
	"feedpush/internal/model"
	"feedpush/internal/pool"
	"feedpush/internal/render"
	"feedpush/internal/selection"
	"feedpush/internal/sources"
	"feedpush/internal/storage"
)

var runAt = time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC) // 14:00 at UTC+8

type stubSource struct {
	name  string
	items []model.RawItem
	err   error
}

func (s stubSource) Name() string { return s.name }
func (s stubSource) Fetch(context.Context) ([]model.RawItem, error) {
	return s.items, s.err
}

type captureSender struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (c *captureSender) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, text)
	return nil
}

type flakyStore struct {
	*storage.MemoryStore
	snapErr   error
	commitErr error
}

func (f *flakyStore) Snapshot(ctx context.Context, day string, urls, titles []string) (*storage.Snapshot, error) {
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	return f.MemoryStore.Snapshot(ctx, day, urls, titles)
}

func (f *flakyStore) Commit(ctx context.Context, b *storage.Batch) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	return f.MemoryStore.Commit(ctx, b)
}

func news(url, title string, age time.Duration) model.RawItem {
	return model.RawItem{URL: url, Title: title, PublishedAt: runAt.Add(-age), Kind: model.NewsSite, Source: "DW"}
}

func post(url, board string, score, comments int) model.RawItem {
	return model.RawItem{
		URL: url, Title: "post on " + board + " " + url, PublishedAt: runAt.Add(-time.Hour), Kind: model.Board,
		Source: "Reddit r/" + board, BoardName: board, Score: score, Comments: comments,
	}
}

func defaultSources() []sources.Source {
	return []sources.Source{
		stubSource{name: "DW", items: []model.RawItem{
			news("https://dw.test/visa", "Luxembourg visa rules change", 3*time.Hour),
			news("https://dw.test/ecb", "ECB raises rates as inflation bites", 2*time.Hour),
			news("https://dw.test/nasa", "NASA launch delayed", time.Hour),
			news("https://dw.test/bakery", "Local bakery wins prize", 10*time.Minute),
		}},
		stubSource{name: "Reddit", items: []model.RawItem{
			post("https://www.reddit.com/r/Luxembourg/1", "Luxembourg", 8, 2),
			post("https://www.reddit.com/r/worldnews/1", "worldnews", 90, 10),
			post("https://www.reddit.com/r/science/1", "science", 40, 10),
		}},
	}
}

func newTestPusher(t *testing.T, store storage.Store, sender Sender, srcs []sources.Source) *Pusher {
	t.Helper()
	r, err := render.New(render.Options{Recipient: "Laura", DayOffsetHours: 8, MaxLen: 3900})
	if err != nil {
		t.Fatal(err)
	}
	p := &Pusher{
		Sources:       srcs,
		SourceTimeout: time.Second,
		Store:         store,
		Builder: &pool.Builder{
			Matcher:       keyword.NewMatcher(config.DefaultTopics),
			PriorityTopic: "Lux_immigration",
			Missing:       pool.MissingAsNow,
		},
		Engine: selection.New(selection.Config{
			BoardCount:         2,
			NewsCount:          3,
			NewsLookback:       6 * time.Hour,
			BoardLookback:      6 * time.Hour,
			PriorityBoard:      "Luxembourg",
			DiversityMinBoards: 3,
		}),
		Renderer:       r,
		Sender:         sender,
		DayOffsetHours: 8,
		Now:            func() time.Time { return runAt },
	}
	return p
}

func TestRunOnceDeliversAndPersists(t *testing.T) {
	store := storage.NewMemoryStore()
	sender := &captureSender{}
	p := newTestPusher(t, store, sender, defaultSources())

	rep, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !rep.Delivered || !rep.Persisted || rep.DayKey != "2024-05-01" || rep.RunID == "" {
		t.Fatalf("unexpected report: %+v", rep)
	}
	var got []string
	for _, c := range rep.Selection.Items() {
		got = append(got, c.Item.URL)
	}
	want := []string{
		"https://www.reddit.com/r/Luxembourg/1",
		"https://www.reddit.com/r/worldnews/1",
		"https://dw.test/visa",
		"https://dw.test/ecb",
		"https://dw.test/nasa",
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("selection = %v\nwant %v", got, want)
	}

	if len(sender.msgs) != 1 {
		t.Fatalf("sent %d messages", len(sender.msgs))
	}
	msg := sender.msgs[0]
	for _, part := range []string{
		"news feed for Laura at 14:00",
		"1) [Reddit r/Luxembourg] post on Luxembourg",
		"   Heat: 8 upvotes + 2 comments = 10",
		"3) [DW] Luxembourg visa rules change",
	} {
		if !strings.Contains(msg, part) {
			t.Fatalf("message missing %q:\n%s", part, msg)
		}
	}

	ctx := context.Background()
	for _, u := range want {
		if ok, _ := store.WasSeen(ctx, u); !ok {
			t.Fatalf("%s not marked seen", u)
		}
	}
	if ok, _ := store.WasSeen(ctx, "https://dw.test/bakery"); ok {
		t.Fatal("unselected item persisted")
	}
	if ok, _ := store.WasTitleSeen(ctx, "luxembourg visa rules change"); !ok {
		t.Fatal("normalized title not persisted")
	}
	usage, _ := store.BoardUsage(ctx, "2024-05-01")
	if usage["Luxembourg"] != 1 || usage["worldnews"] != 1 || len(usage) != 2 {
		t.Fatalf("usage = %v", usage)
	}
}

func TestRunOnceSecondRunPrefersUnseen(t *testing.T) {
	store := storage.NewMemoryStore()
	p := newTestPusher(t, store, &captureSender{}, defaultSources())
	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	rep, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	items := rep.Selection.Items()
	if len(items) != 5 {
		t.Fatalf("quota not kept: %d items", len(items))
	}
	// science is the only board neither seen nor used today
	if items[1].Item.BoardName != "science" {
		t.Fatalf("second board = %s", items[1].Item.BoardName)
	}
	if rep.Selection.Picks[1].Stage != "primary" {
		t.Fatalf("science pick stage = %s", rep.Selection.Picks[1].Stage)
	}
}

func TestRunOnceSourceFailureDegrades(t *testing.T) {
	srcs := append(defaultSources(), stubSource{name: "France24", err: errors.New("timeout")})
	sender := &captureSender{}
	rep, err := newTestPusher(t, storage.NewMemoryStore(), sender, srcs).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("a failing source must not fail the run: %v", err)
	}
	if len(rep.FailedSources) != 1 || rep.FailedSources[0] != "France24" {
		t.Fatalf("failed sources = %v", rep.FailedSources)
	}
	if !rep.Delivered || len(rep.Selection.Picks) != 5 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestRunOnceEmptySendsHeader(t *testing.T) {
	srcs := []sources.Source{stubSource{name: "DW", err: errors.New("down")}}
	sender := &captureSender{}
	rep, err := newTestPusher(t, storage.NewMemoryStore(), sender, srcs).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rep.Selection.Picks) != 0 {
		t.Fatalf("picks = %d", len(rep.Selection.Picks))
	}
	if len(sender.msgs) != 1 || !strings.HasPrefix(sender.msgs[0], "news feed for Laura at 14:00") {
		t.Fatalf("header-only message not sent: %q", sender.msgs)
	}
}

func TestRunOnceDeliveryFailureSkipsPersistence(t *testing.T) {
	store := storage.NewMemoryStore()
	sender := &captureSender{err: errors.New("bad gateway")}
	rep, err := newTestPusher(t, store, sender, defaultSources()).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("delivery failure must not fail the run: %v", err)
	}
	if rep.DeliveryErr == nil || rep.Delivered || rep.Persisted {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if ok, _ := store.WasSeen(context.Background(), "https://dw.test/visa"); ok {
		t.Fatal("nothing should be persisted after a failed delivery")
	}
}

func TestRunOncePersistFailureKeepsDelivery(t *testing.T) {
	store := &flakyStore{MemoryStore: storage.NewMemoryStore(), commitErr: errors.New("READONLY")}
	sender := &captureSender{}
	rep, err := newTestPusher(t, store, sender, defaultSources()).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("persist failure must not fail the run: %v", err)
	}
	if !rep.Delivered || rep.Persisted || rep.PersistErr == nil {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if usage, _ := store.BoardUsage(context.Background(), "2024-05-01"); len(usage) != 0 {
		t.Fatalf("partial batch written: %v", usage)
	}
}

func TestRunOnceSnapshotFailureSelectsWithoutHistory(t *testing.T) {
	store := &flakyStore{MemoryStore: storage.NewMemoryStore(), snapErr: errors.New("conn refused")}
	rep, err := newTestPusher(t, store, &captureSender{}, defaultSources()).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.SnapshotErr == nil || len(rep.Selection.Picks) != 5 || !rep.Delivered {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestRunOnceDryRun(t *testing.T) {
	store := storage.NewMemoryStore()
	var reported *Report
	p := newTestPusher(t, store, nil, defaultSources())
	p.AfterRun = func(_ context.Context, r *Report) { reported = r }
	rep, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Delivered || rep.Persisted || rep.Message == "" {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if reported != rep {
		t.Fatal("AfterRun not called with the report")
	}
	if ok, _ := store.WasSeen(context.Background(), "https://dw.test/visa"); ok {
		t.Fatal("dry run persisted state")
	}
}

func TestPusherStartStopsOnCancel(t *testing.T) {
	sender := &captureSender{}
	p := newTestPusher(t, storage.NewMemoryStore(), sender, defaultSources())
	p.Interval = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewManager(p).Start(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		sender.mu.Lock()
		n := len(sender.msgs)
		sender.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("initial run did not happen")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("manager: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not stop")
	}
}

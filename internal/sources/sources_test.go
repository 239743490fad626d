package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"feedpush/internal/config"
	"feedpush/internal/model"
)

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Test</title>
<item><title> EU summit on Ukraine </title><link>https://news.test/a</link>
<description>&lt;p&gt;Leaders &lt;b&gt;met&lt;/b&gt; in   Brussels &amp;amp; agreed.&lt;/p&gt;</description>
<pubDate>Wed, 01 May 2024 08:00:00 GMT</pubDate></item>
<item><title>No date</title><link>https://news.test/b</link></item>
<item><title>No link</title></item>
<item><title>Third</title><link>https://news.test/c</link></item>
</channel></rss>`

func TestRSSFetch(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssBody)
	}))
	defer srv.Close()

	src := NewRSS("DW", srv.URL, "feedpush-test", srv.Client(), 2)
	items, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if ua != "feedpush-test" {
		t.Fatalf("user agent = %q", ua)
	}
	// the cap of 2 stops before the entry without a link
	if len(items) != 2 {
		t.Fatalf("got %d items: %+v", len(items), items)
	}
	a := items[0]
	if a.Title != "EU summit on Ukraine" || a.URL != "https://news.test/a" || a.Source != "DW" || a.Kind != model.NewsSite {
		t.Fatalf("unexpected item: %+v", a)
	}
	if !a.PublishedAt.Equal(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("published = %v", a.PublishedAt)
	}
	if a.Summary != "Leaders met in Brussels & agreed." {
		t.Fatalf("summary = %q", a.Summary)
	}
	if items[1].HasPublished() {
		t.Fatalf("item without date should have zero PublishedAt")
	}
}

func TestRSSFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	if _, err := NewRSS("DW", srv.URL, "", srv.Client(), 50).Fetch(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestGuardianFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/search" || q.Get("api-key") != "secret" || q.Get("show-fields") != "trailText" ||
			q.Get("page-size") != "50" || q.Get("order-by") != "newest" {
			http.Error(w, "bad request "+r.URL.String(), http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"response":{"status":"ok","results":[
			{"webTitle":"Visa rules change in Luxembourg","webUrl":"https://g.test/1","webPublicationDate":"2024-05-01T09:30:00Z","fields":{"trailText":"<strong>New</strong> rules"}},
			{"webTitle":"Broken","webUrl":"","webPublicationDate":"2024-05-01T09:30:00Z"},
			{"webTitle":"Undated","webUrl":"https://g.test/2","webPublicationDate":"soon"}]}}`)
	}))
	defer srv.Close()

	items, err := NewGuardian(srv.URL, "secret", "ua", 0, srv.Client()).Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}
	if items[0].Summary != "New rules" || items[0].Source != "Guardian" || items[0].PublishedAt.Hour() != 9 {
		t.Fatalf("unexpected item: %+v", items[0])
	}
	if items[1].HasPublished() {
		t.Fatalf("unparseable date should be zero")
	}
}

func TestGuardianErrorHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()
	_, err := NewGuardian(srv.URL, "secret", "ua", 10, srv.Client()).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "secret") {
		t.Fatalf("api key leaked into error: %v", err)
	}
}

func TestRedditFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "ua" || r.URL.Query().Get("limit") != "50" {
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/r/worldnews/hot.json":
			fmt.Fprint(w, `{"data":{"children":[
				{"data":{"title":"Big story","permalink":"/r/worldnews/comments/1/big/","score":120,"num_comments":30,"created_utc":1714550400.0}},
				{"data":{"title":"no permalink","permalink":""}}]}}`)
		default:
			http.Error(w, "private", http.StatusForbidden)
		}
	}))
	defer srv.Close()

	src := NewReddit(srv.URL, []string{"worldnews", "private"}, 0, 0, "ua", srv.Client())
	items, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("one failing board must not fail the source: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items", len(items))
	}
	it := items[0]
	if it.URL != "https://www.reddit.com/r/worldnews/comments/1/big/" || it.BoardName != "worldnews" ||
		it.Kind != model.Board || it.Popularity() != 150 || it.Source != "Reddit r/worldnews" {
		t.Fatalf("unexpected item: %+v", it)
	}
	if it.PublishedAt.Unix() != 1714550400 {
		t.Fatalf("published = %v", it.PublishedAt)
	}

	if _, err := NewReddit(srv.URL, []string{"private"}, 50, 0, "ua", srv.Client()).Fetch(context.Background()); err == nil {
		t.Fatal("expected error when every board fails")
	}
}

func TestHackerNewsFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/topstories.json":
			fmt.Fprint(w, `[3, 1, 2, 4]`)
		case "/item/3.json":
			fmt.Fprint(w, `{"id":3,"type":"story","title":"Show HN: thing","url":"https://x.test","time":1714550400,"score":50,"descendants":7}`)
		case "/item/1.json":
			fmt.Fprint(w, `{"id":1,"type":"story","title":"Ask HN: question","time":1714550000,"score":10,"kids":[5,6]}`)
		case "/item/2.json":
			fmt.Fprint(w, `{"id":2,"type":"job","title":"Hiring"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	items, err := NewHackerNews(srv.URL, 4, "ua", srv.Client()).Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items: %+v", len(items), items)
	}
	if items[0].URL != "https://x.test" || items[0].Popularity() != 57 || items[0].BoardName != HackerNewsBoard {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[1].URL != "https://news.ycombinator.com/item?id=1" || items[1].Comments != 2 {
		t.Fatalf("unexpected second item: %+v", items[1])
	}
}

type stubSource struct {
	name  string
	items []model.RawItem
	err   error
	delay time.Duration
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) Fetch(ctx context.Context) ([]model.RawItem, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.items, s.err
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	srcs := []Source{
		stubSource{name: "ok", items: []model.RawItem{{URL: "u"}}},
		stubSource{name: "broken", err: errors.New("boom")},
		stubSource{name: "slow", delay: time.Second},
	}
	res := FetchAll(context.Background(), srcs, 50*time.Millisecond)
	if len(res) != 3 || res[0].Source != "ok" || res[1].Source != "broken" || res[2].Source != "slow" {
		t.Fatalf("unexpected results: %+v", res)
	}
	if res[0].Err != nil || len(res[0].Items) != 1 {
		t.Fatalf("ok source: %+v", res[0])
	}
	if res[1].Err == nil {
		t.Fatal("broken source should report its error")
	}
	if !errors.Is(res[2].Err, context.DeadlineExceeded) {
		t.Fatalf("slow source err = %v", res[2].Err)
	}
}

func TestCleanSummary(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"", 10, ""},
		{"<p>Hello&nbsp;<i>world</i></p>", 0, "Hello world"},
		{"<script>alert(1)</script>text", 0, "text"},
		{"αβγδε", 3, "αβγ"},
	}
	for _, c := range cases {
		if got := CleanSummary(c.in, c.max); got != c.want {
			t.Errorf("CleanSummary(%q, %d) = %q, want %q", c.in, c.max, got, c.want)
		}
	}
}

func TestFromConfig(t *testing.T) {
	var cfg config.Config
	cfg.FillDefaults()
	srcs := FromConfig(cfg.Sources, nil)
	if len(srcs) != 4 {
		t.Fatalf("default sources = %d, want 3 rss + reddit", len(srcs))
	}
	cfg.Sources.Guardian.APIKey = "k"
	cfg.Sources.HN.Enabled = true
	srcs = FromConfig(cfg.Sources, nil)
	names := make([]string, 0, len(srcs))
	for _, s := range srcs {
		names = append(names, s.Name())
	}
	if got := strings.Join(names, ","); got != "DW,France24,LeMonde_EN_Science,Guardian,Reddit,Hacker News" {
		t.Fatalf("sources = %s", got)
	}
}

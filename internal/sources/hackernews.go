package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"feedpush/internal/model"
)

// HackerNewsBoard is the board name used for Hacker News items.
const HackerNewsBoard = "hackernews"

// HackerNews reads top stories from the Hacker News API as board items.
// Docs: https://github.com/HackerNews/API
type HackerNews struct {
	baseAPI   string
	limit     int
	userAgent string
	client    *http.Client
}

// NewHackerNews creates a client. baseAPI should be something like
// "https://hacker-news.firebaseio.com/v0". If empty, it defaults to the v0 endpoint.
func NewHackerNews(baseAPI string, limit int, userAgent string, client *http.Client) *HackerNews {
	if strings.TrimSpace(baseAPI) == "" {
		baseAPI = "https://hacker-news.firebaseio.com/v0"
	}
	return &HackerNews{
		baseAPI:   strings.TrimRight(baseAPI, "/"),
		limit:     limit,
		userAgent: userAgent,
		client:    orDefaultClient(client),
	}
}

func (c *HackerNews) Name() string { return "Hacker News" }

// hnItem mirrors the subset of HN item fields we care about.
type hnItem struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Time        int64  `json:"time"`
	Kids        []int  `json:"kids"`
	Descendants int    `json:"descendants"`
	Score       int    `json:"score"`
	Dead        bool   `json:"dead"`
	Deleted     bool   `json:"deleted"`
}

func (c *HackerNews) Fetch(ctx context.Context) ([]model.RawItem, error) {
	var ids []int
	if err := getJSON(ctx, c.client, c.baseAPI+"/topstories.json", c.userAgent, &ids); err != nil {
		return nil, fmt.Errorf("hackernews: %w", err)
	}
	if c.limit > 0 && len(ids) > c.limit {
		ids = ids[:c.limit]
	}
	slog.Debug("hackernews: fetching items", "count", len(ids))
	return c.itemsByIDs(ctx, ids), nil
}

// itemsByIDs resolves ids concurrently, preserving order and skipping failures.
func (c *HackerNews) itemsByIDs(ctx context.Context, ids []int) []model.RawItem {
	if len(ids) == 0 {
		return nil
	}
	const maxWorkers = 8
	type result struct {
		idx  int
		item hnItem
		err  error
	}
	out := make([]*hnItem, len(ids))
	sem := make(chan struct{}, maxWorkers)
	done := make(chan result, len(ids))
	for i, id := range ids {
		i, id := i, id
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			var it hnItem
			err := getJSON(ctx, c.client, c.baseAPI+"/item/"+strconv.Itoa(id)+".json", c.userAgent, &it)
			done <- result{idx: i, item: it, err: err}
		}()
	}
	for range ids {
		r := <-done
		if r.err != nil {
			slog.Debug("hackernews: item failed", "err", r.err)
			continue
		}
		it := r.item
		out[r.idx] = &it
	}
	items := make([]model.RawItem, 0, len(ids))
	for _, h := range out {
		if h == nil || h.ID == 0 || h.Dead || h.Deleted || h.Type != "story" {
			continue
		}
		items = append(items, convertHN(*h))
	}
	return items
}

func convertHN(h hnItem) model.RawItem {
	link := strings.TrimSpace(h.URL)
	if link == "" {
		link = "https://news.ycombinator.com/item?id=" + strconv.Itoa(h.ID)
	}
	var published time.Time
	if h.Time > 0 {
		published = time.Unix(h.Time, 0).UTC()
	}
	return model.RawItem{
		URL:         link,
		Title:       strings.TrimSpace(h.Title),
		PublishedAt: published,
		Kind:        model.Board,
		Source:      "Hacker News",
		BoardName:   HackerNewsBoard,
		Score:       h.Score,
		Comments:    max(h.Descendants, len(h.Kids)),
	}
}

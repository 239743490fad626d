package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"feedpush/internal/model"

	"github.com/mmcdole/gofeed"
)

// RSS reads one RSS/RDF/Atom feed.
type RSS struct {
	name     string
	url      string
	maxItems int
	parser   *gofeed.Parser
}

func NewRSS(name, feedURL, userAgent string, client *http.Client, maxItems int) *RSS {
	p := gofeed.NewParser()
	p.UserAgent = userAgent
	p.Client = orDefaultClient(client)
	return &RSS{name: name, url: feedURL, maxItems: maxItems, parser: p}
}

func (r *RSS) Name() string { return r.name }

func (r *RSS) Fetch(ctx context.Context) ([]model.RawItem, error) {
	feed, err := r.parser.ParseURLWithContext(r.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("rss %s: %w", r.name, err)
	}
	items := make([]model.RawItem, 0, len(feed.Items))
	for i, e := range feed.Items {
		if r.maxItems > 0 && i >= r.maxItems {
			break
		}
		link := strings.TrimSpace(e.Link)
		if link == "" {
			continue
		}
		items = append(items, model.RawItem{
			URL:         link,
			Title:       strings.TrimSpace(e.Title),
			PublishedAt: entryTime(e),
			Kind:        model.NewsSite,
			Source:      r.name,
			Summary:     entrySummary(e),
		})
	}
	return items, nil
}

func entryTime(e *gofeed.Item) time.Time {
	switch {
	case e.PublishedParsed != nil:
		return e.PublishedParsed.UTC()
	case e.UpdatedParsed != nil:
		return e.UpdatedParsed.UTC()
	default:
		return time.Time{}
	}
}

func entrySummary(e *gofeed.Item) string {
	if s := CleanSummary(e.Description, SummaryMaxRunes); s != "" {
		return s
	}
	return CleanSummary(e.Content, SummaryMaxRunes)
}

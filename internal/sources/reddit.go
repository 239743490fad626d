package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"feedpush/internal/model"

	"golang.org/x/time/rate"
)

// Reddit reads the hot listing of each configured subreddit. Requests are
// spaced by a token bucket so a run never bursts the public endpoint.
type Reddit struct {
	baseURL   string
	boards    []string
	limit     int
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

func NewReddit(baseURL string, boards []string, limit int, perSecond float64, userAgent string, client *http.Client) *Reddit {
	if limit <= 0 {
		limit = 50
	}
	lim := rate.Inf
	if perSecond > 0 {
		lim = rate.Limit(perSecond)
	}
	return &Reddit{
		baseURL:   strings.TrimRight(baseURL, "/"),
		boards:    boards,
		limit:     limit,
		userAgent: userAgent,
		client:    orDefaultClient(client),
		limiter:   rate.NewLimiter(lim, 1),
	}
}

func (r *Reddit) Name() string { return "Reddit" }

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title       string  `json:"title"`
				Permalink   string  `json:"permalink"`
				Score       int     `json:"score"`
				NumComments int     `json:"num_comments"`
				CreatedUTC  float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Fetch tolerates individual board failures; it errors only when every board failed.
func (r *Reddit) Fetch(ctx context.Context) ([]model.RawItem, error) {
	var (
		items []model.RawItem
		errs  []error
	)
	for _, board := range r.boards {
		if err := r.limiter.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}
		got, err := r.fetchBoard(ctx, board)
		if err != nil {
			slog.Warn("reddit board fetch failed", "board", board, "err", err)
			errs = append(errs, err)
			continue
		}
		items = append(items, got...)
	}
	if len(items) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("reddit: %w", errors.Join(errs...))
	}
	return items, nil
}

func (r *Reddit) fetchBoard(ctx context.Context, board string) ([]model.RawItem, error) {
	endpoint := fmt.Sprintf("%s/r/%s/hot.json?limit=%s", r.baseURL, url.PathEscape(board), strconv.Itoa(r.limit))
	var listing redditListing
	if err := getJSON(ctx, r.client, endpoint, r.userAgent, &listing); err != nil {
		return nil, fmt.Errorf("r/%s: %w", board, err)
	}
	items := make([]model.RawItem, 0, len(listing.Data.Children))
	for _, c := range listing.Data.Children {
		d := c.Data
		if d.Permalink == "" {
			continue
		}
		var published time.Time
		if d.CreatedUTC > 0 {
			published = time.Unix(int64(d.CreatedUTC), 0).UTC()
		}
		items = append(items, model.RawItem{
			URL:         "https://www.reddit.com" + d.Permalink,
			Title:       strings.TrimSpace(d.Title),
			PublishedAt: published,
			Kind:        model.Board,
			Source:      "Reddit r/" + board,
			BoardName:   board,
			Score:       d.Score,
			Comments:    d.NumComments,
		})
	}
	return items, nil
}

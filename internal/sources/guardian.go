package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"feedpush/internal/model"
)

// Guardian queries the Guardian content API search endpoint for the newest articles.
type Guardian struct {
	baseURL   string
	apiKey    string
	pageSize  int
	userAgent string
	client    *http.Client
}

func NewGuardian(baseURL, apiKey, userAgent string, pageSize int, client *http.Client) *Guardian {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Guardian{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		pageSize:  pageSize,
		userAgent: userAgent,
		client:    orDefaultClient(client),
	}
}

func (g *Guardian) Name() string { return "Guardian" }

type guardianResponse struct {
	Response struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Results []struct {
			WebTitle           string `json:"webTitle"`
			WebURL             string `json:"webUrl"`
			WebPublicationDate string `json:"webPublicationDate"`
			Fields             struct {
				TrailText string `json:"trailText"`
			} `json:"fields"`
		} `json:"results"`
	} `json:"response"`
}

func (g *Guardian) Fetch(ctx context.Context) ([]model.RawItem, error) {
	q := url.Values{}
	q.Set("api-key", g.apiKey)
	q.Set("show-fields", "trailText")
	q.Set("page-size", strconv.Itoa(g.pageSize))
	q.Set("order-by", "newest")

	var body guardianResponse
	if err := getJSON(ctx, g.client, g.baseURL+"/search?"+q.Encode(), g.userAgent, &body); err != nil {
		return nil, fmt.Errorf("guardian: %w", err)
	}
	if s := body.Response.Status; s != "" && s != "ok" {
		return nil, fmt.Errorf("guardian: status %s: %s", s, body.Response.Message)
	}
	items := make([]model.RawItem, 0, len(body.Response.Results))
	for _, r := range body.Response.Results {
		link := strings.TrimSpace(r.WebURL)
		if link == "" {
			continue
		}
		var published time.Time
		if t, err := time.Parse(time.RFC3339, r.WebPublicationDate); err == nil {
			published = t.UTC()
		}
		items = append(items, model.RawItem{
			URL:         link,
			Title:       strings.TrimSpace(r.WebTitle),
			PublishedAt: published,
			Kind:        model.NewsSite,
			Source:      g.Name(),
			Summary:     CleanSummary(r.Fields.TrailText, SummaryMaxRunes),
		})
	}
	return items, nil
}

package sources

import (
	"log/slog"
	"net/http"
	"strings"

	"feedpush/internal/config"
)

// FromConfig builds the enabled sources. The Guardian source needs an API key
// and is skipped without one.
func FromConfig(cfg config.DataSources, client *http.Client) []Source {
	client = orDefaultClient(client)
	var out []Source
	for _, f := range cfg.RSS {
		if strings.TrimSpace(f.URL) == "" {
			continue
		}
		out = append(out, NewRSS(f.Name, f.URL, cfg.UserAgent, client, cfg.MaxItemsPerFeed))
	}
	if strings.TrimSpace(cfg.Guardian.APIKey) != "" {
		out = append(out, NewGuardian(cfg.Guardian.BaseURL, cfg.Guardian.APIKey, cfg.UserAgent, cfg.Guardian.PageSize, client))
	} else {
		slog.Debug("guardian source disabled: no api key")
	}
	if len(cfg.Reddit.Boards) > 0 {
		boards := make([]string, 0, len(cfg.Reddit.Boards))
		for _, b := range cfg.Reddit.Boards {
			boards = append(boards, b.Name)
		}
		out = append(out, NewReddit(cfg.Reddit.BaseURL, boards, cfg.Reddit.Limit, cfg.Reddit.RatePerSecond, cfg.UserAgent, client))
	}
	if cfg.HN.Enabled {
		out = append(out, NewHackerNews(cfg.HN.BaseAPI, cfg.HN.Limit, cfg.UserAgent, client))
	}
	return out
}

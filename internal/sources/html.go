package sources

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// SummaryMaxRunes caps item summaries.
const SummaryMaxRunes = 400

var stripPolicy = bluemonday.StrictPolicy()

// CleanSummary removes markup, decodes entities, collapses whitespace and caps
// the result at maxRunes (0 means no cap).
func CleanSummary(s string, maxRunes int) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	s = html.UnescapeString(stripPolicy.Sanitize(s))
	s = strings.Join(strings.Fields(s), " ")
	if maxRunes > 0 {
		if r := []rune(s); len(r) > maxRunes {
			s = string(r[:maxRunes])
		}
	}
	return s
}

// redact hides credentials passed as query parameters before a url is logged.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("api-key") {
		q.Set("api-key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

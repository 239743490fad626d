// Package keyword matches titles against a topic -> keywords table.
package keyword

import "strings"

// Topic is one tag of the topic table with its keywords.
type Topic struct {
	Tag      string   `mapstructure:"tag" yaml:"tag"`
	Keywords []string `mapstructure:"keywords" yaml:"keywords"`
}

// Normalize lower-cases s and collapses runs of whitespace into one space.
// The result is the title form used for dedup comparison.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Match returns the tags whose keywords appear as a case-insensitive substring
// of title, in table order, and how many distinct tags matched.
func Match(title string, table []Topic) ([]string, int) {
	return NewMatcher(table).Match(title)
}

// Matcher holds a pre-lowered copy of a topic table.
type Matcher struct {
	topics []Topic
}

// NewMatcher copies table, lower-casing and trimming keywords. Empty keywords
// are dropped so they cannot match every title. A tag listed twice (ignoring
// case) is merged into its first entry, so a tag is reported at most once.
func NewMatcher(table []Topic) *Matcher {
	m := &Matcher{topics: make([]Topic, 0, len(table))}
	index := make(map[string]int, len(table))
	for _, t := range table {
		var kws []string
		for _, k := range t.Keywords {
			k = Normalize(k)
			if k == "" {
				continue
			}
			kws = append(kws, k)
		}
		key := strings.ToLower(t.Tag)
		if i, ok := index[key]; ok {
			m.topics[i].Keywords = append(m.topics[i].Keywords, kws...)
			continue
		}
		index[key] = len(m.topics)
		m.topics = append(m.topics, Topic{Tag: t.Tag, Keywords: kws})
	}
	return m
}

// Match is Match bound to the matcher's table.
func (m *Matcher) Match(title string) ([]string, int) {
	text := Normalize(title)
	var tags []string
	for _, t := range m.topics {
		for _, k := range t.Keywords {
			if strings.Contains(text, k) {
				tags = append(tags, t.Tag)
				break
			}
		}
	}
	return tags, len(tags)
}

// Has reports whether tag is among tags. Tags compare case-insensitively.
func Has(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

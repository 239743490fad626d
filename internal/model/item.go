package model

import "time"

// SourceKind tells which pool a raw item belongs to.
type SourceKind int

const (
	NewsSite SourceKind = iota
	Board
)

func (k SourceKind) String() string {
	switch k {
	case Board:
		return "board"
	default:
		return "news"
	}
}

// RawItem is what a data source hands to the core. Source-specific fields never
// leak past this shape.
type RawItem struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	PublishedAt time.Time  `json:"published_at"` // zero when the source did not supply one
	Kind        SourceKind `json:"kind"`
	Source      string     `json:"source"` // display label, e.g. "DW" or "Reddit"
	Summary     string     `json:"summary,omitempty"`

	// Board-only fields.
	BoardName string `json:"board_name,omitempty"`
	Score     int    `json:"score,omitempty"`
	Comments  int    `json:"comments,omitempty"`
}

// HasPublished reports whether the source supplied a timestamp.
func (r RawItem) HasPublished() bool { return !r.PublishedAt.IsZero() }

// Popularity is score + comment count, the board ranking key.
func (r RawItem) Popularity() int { return r.Score + r.Comments }

// Candidate wraps a RawItem with the values derived for one run.
type Candidate struct {
	Item            RawItem
	Topics          []string // matched topic tags, in topic table order
	HitCount        int
	Priority        bool
	AgeHours        float64
	NormalizedTitle string
	// Effective is the timestamp used for "newest first" tie-breaks. It equals
	// Item.PublishedAt unless the missing-timestamp policy substituted one.
	Effective time.Time
}

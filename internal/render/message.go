// Package render turns a selection into the plain-text chat message.
package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"feedpush/internal/model"
	"feedpush/internal/selection"
)

// Line is one numbered entry of the message.
type Line struct {
	Index      int
	Label      string
	Title      string
	URL        string
	Summary    string
	Board      bool
	Score      int
	Comments   int
	Popularity int
}

// Message is the template data.
type Message struct {
	Recipient string
	Time      string // HH:MM in the configured offset
	Items     []Line
}

//go:embed message.tmpl
var messageTpl string

var compiled = template.Must(template.New("message").Parse(messageTpl))

type Options struct {
	Recipient      string
	DayOffsetHours int
	MaxLen         int    // in runes, 0 means no cap
	TemplateFile   string // optional override of the embedded template
}

type Renderer struct {
	opts Options
	tpl  *template.Template
}

func New(opts Options) (*Renderer, error) {
	tpl := compiled
	if opts.TemplateFile != "" {
		b, err := os.ReadFile(opts.TemplateFile)
		if err != nil {
			return nil, fmt.Errorf("read template: %w", err)
		}
		if tpl, err = template.New("message").Parse(string(b)); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", opts.TemplateFile, err)
		}
	}
	return &Renderer{opts: opts, tpl: tpl}, nil
}

// Build maps candidates to template data. Items are numbered from 1 in order.
func (r *Renderer) Build(items []model.Candidate, now time.Time) Message {
	m := Message{
		Recipient: r.opts.Recipient,
		Time:      now.In(selection.Zone(r.opts.DayOffsetHours)).Format("15:04"),
	}
	for i, c := range items {
		it := c.Item
		label := it.Source
		if label == "" {
			label = "News"
		}
		m.Items = append(m.Items, Line{
			Index:      i + 1,
			Label:      label,
			Title:      it.Title,
			URL:        it.URL,
			Summary:    it.Summary,
			Board:      it.Kind == model.Board,
			Score:      it.Score,
			Comments:   it.Comments,
			Popularity: it.Popularity(),
		})
	}
	return m
}

// Render produces the final text. An empty selection yields the header and a
// short notice, never an empty message.
func (r *Renderer) Render(items []model.Candidate, now time.Time) (string, error) {
	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, r.Build(items, now)); err != nil {
		return "", fmt.Errorf("render message: %w", err)
	}
	return Truncate(strings.TrimRight(buf.String(), "\n")+"\n", r.opts.MaxLen), nil
}

// Truncate cuts s to at most limit runes without splitting a character.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

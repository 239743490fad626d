// Package pool turns raw items from every source into the two candidate pools
// consumed by the selection engine.
package pool

import (
	"fmt"
	"math"
	"strings"
	"time"

	"feedpush/internal/keyword"
	"feedpush/internal/model"
)

// MissingPublished decides how an item without a source timestamp is aged.
type MissingPublished string

const (
	// MissingAsNow treats the item as published at build time: ageHours = 0.
	MissingAsNow MissingPublished = "now"
	// MissingAsEpoch treats the item as infinitely old, so only stages that
	// ignore the age bound can pick it.
	MissingAsEpoch MissingPublished = "epoch"
)

// ParseMissingPublished validates a policy name; empty means MissingAsNow.
func ParseMissingPublished(s string) (MissingPublished, error) {
	switch MissingPublished(strings.ToLower(strings.TrimSpace(s))) {
	case "", MissingAsNow:
		return MissingAsNow, nil
	case MissingAsEpoch:
		return MissingAsEpoch, nil
	default:
		return "", fmt.Errorf("unknown missing_published policy %q", s)
	}
}

// Builder annotates raw items. It holds no per-run state.
type Builder struct {
	Matcher       *keyword.Matcher
	PriorityTopic string
	Missing       MissingPublished
}

// Build scores every item and partitions by kind. Nothing is filtered here:
// recency and dedup belong to the selection stages so a pool can be re-filtered.
func (b *Builder) Build(items []model.RawItem, now time.Time) (news, boards []model.Candidate) {
	for _, it := range items {
		c := b.candidate(it, now)
		if it.Kind == model.Board {
			boards = append(boards, c)
		} else {
			news = append(news, c)
		}
	}
	return news, boards
}

func (b *Builder) candidate(it model.RawItem, now time.Time) model.Candidate {
	c := model.Candidate{
		Item:            it,
		NormalizedTitle: keyword.Normalize(it.Title),
		Effective:       it.PublishedAt,
	}
	if b.Matcher != nil {
		c.Topics, c.HitCount = b.Matcher.Match(it.Title)
	}
	c.Priority = b.PriorityTopic != "" && keyword.Has(c.Topics, b.PriorityTopic)

	switch {
	case it.HasPublished():
		c.AgeHours = now.Sub(it.PublishedAt).Hours()
	case b.Missing == MissingAsEpoch:
		c.AgeHours = math.Inf(1)
		c.Effective = time.Unix(0, 0).UTC()
	default:
		c.AgeHours = 0
		c.Effective = now
	}
	return c
}

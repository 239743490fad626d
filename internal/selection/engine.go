// Package selection assembles the final push from the candidate pools: a fixed
// number of board items followed by the news items, under dedup, diversity and
// staged constraint relaxation.
package selection

import (
	"sort"
	"strings"
	"time"

	"feedpush/internal/model"
)

// Slot names recorded on every pick.
const (
	SlotPriorityBoard = "priority-board"
	SlotBoard         = "board"
	SlotPriorityTopic = "priority-topic"
	SlotNews          = "news"
)

// Config is the composition policy. It is read-only once the engine is built.
type Config struct {
	BoardCount    int
	NewsCount     int
	NewsLookback  time.Duration
	BoardLookback time.Duration
	// PriorityBoard fills the first board slot. Empty means every board slot
	// draws from all boards.
	PriorityBoard string
	// DiversityMinBoards: while fewer distinct boards were used today, non-priority
	// slots prefer boards unused today.
	DiversityMinBoards int
	// MinTopicHits drops news candidates with fewer topic hits at every stage.
	MinTopicHits int
	// Stages overrides the relaxation order; nil means Stages.
	Stages []Stage
}

// Pick is one selected candidate with the slot and stage that produced it.
type Pick struct {
	Candidate model.Candidate
	Slot      string
	Stage     string
}

// Result is the ordered selection: board picks first, then news picks.
type Result struct {
	Picks []Pick
}

// Items returns the candidates in push order.
func (r Result) Items() []model.Candidate {
	out := make([]model.Candidate, 0, len(r.Picks))
	for _, p := range r.Picks {
		out = append(out, p.Candidate)
	}
	return out
}

// Count returns how many picks are of kind k.
func (r Result) Count(k model.SourceKind) int {
	n := 0
	for _, p := range r.Picks {
		if p.Candidate.Item.Kind == k {
			n++
		}
	}
	return n
}

// Engine is a pure function of (pools, state, config). It never fails; an
// exhausted pool just yields a shorter result.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	if len(cfg.Stages) == 0 {
		cfg.Stages = Stages
	}
	return &Engine{cfg: cfg}
}

// Select runs board selection then news selection. Both share the within-run
// url/title exclusion, so a story pushed as a board post is not repeated as news.
func (e *Engine) Select(news, boards []model.Candidate, st State) Result {
	if st == nil {
		st = EmptyState
	}
	ch := newChosen()
	var res Result
	res.Picks = append(res.Picks, e.selectBoards(boards, st, ch)...)
	res.Picks = append(res.Picks, e.selectNews(news, st, ch)...)
	return res
}

func (e *Engine) selectBoards(pool []model.Candidate, st State, ch *chosen) []Pick {
	if e.cfg.BoardCount <= 0 {
		return nil
	}
	var picks []Pick
	others := e.cfg.BoardCount
	if e.cfg.PriorityBoard != "" {
		others--
		if c, stage, ok := e.pickBoard(pool, st, ch, e.isPriorityBoard, false); ok {
			ch.add(c)
			picks = append(picks, Pick{Candidate: c, Slot: SlotPriorityBoard, Stage: stage})
		}
	}
	notPriority := func(c model.Candidate) bool { return !e.isPriorityBoard(c) }
	for i := 0; i < others; i++ {
		c, stage, ok := e.pickBoard(pool, st, ch, notPriority, true)
		if !ok {
			break
		}
		ch.add(c)
		picks = append(picks, Pick{Candidate: c, Slot: SlotBoard, Stage: stage})
	}
	return picks
}

// pickBoard walks the stages and returns the most popular admitted candidate of
// the first stage that has one.
func (e *Engine) pickBoard(pool []model.Candidate, st State, ch *chosen, keep func(model.Candidate) bool, diverse bool) (model.Candidate, string, bool) {
	for _, stage := range e.cfg.Stages {
		var eligible []model.Candidate
		for _, c := range pool {
			if !keep(c) || ch.has(c) || !stage.Admit(c, e.cfg.BoardLookback, st) {
				continue
			}
			eligible = append(eligible, c)
		}
		if diverse && st.ActiveBoards() < e.cfg.DiversityMinBoards {
			if fresh := e.unusedBoards(eligible, st, ch); len(fresh) > 0 {
				eligible = fresh
			}
		}
		if len(eligible) == 0 {
			continue
		}
		sortBoards(eligible)
		return eligible[0], stage.Name, true
	}
	return model.Candidate{}, "", false
}

// unusedBoards keeps candidates whose board has no usage today and was not
// already picked in this run.
func (e *Engine) unusedBoards(in []model.Candidate, st State, ch *chosen) []model.Candidate {
	var out []model.Candidate
	for _, c := range in {
		if st.BoardUsageToday(c.Item.BoardName) > 0 || ch.hasBoard(c.Item.BoardName) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (e *Engine) isPriorityBoard(c model.Candidate) bool {
	return strings.EqualFold(c.Item.BoardName, e.cfg.PriorityBoard)
}

func (e *Engine) selectNews(pool []model.Candidate, st State, ch *chosen) []Pick {
	need := e.cfg.NewsCount
	if need <= 0 {
		return nil
	}
	var (
		eligible []model.Candidate
		stage    Stage
	)
	for _, stage = range e.cfg.Stages {
		eligible = nil
		for _, c := range pool {
			if c.HitCount < e.cfg.MinTopicHits || ch.has(c) || !stage.Admit(c, e.cfg.NewsLookback, st) {
				continue
			}
			eligible = append(eligible, c)
		}
		if distinct(eligible) >= need {
			break
		}
	}
	sortNews(eligible)

	var picks []Pick
	for _, c := range eligible {
		if c.Priority {
			ch.add(c)
			picks = append(picks, Pick{Candidate: c, Slot: SlotPriorityTopic, Stage: stage.Name})
			break
		}
	}
	for _, c := range eligible {
		if len(picks) >= need {
			break
		}
		if ch.has(c) {
			continue
		}
		ch.add(c)
		picks = append(picks, Pick{Candidate: c, Slot: SlotNews, Stage: stage.Name})
	}
	return picks
}

// distinct counts candidates left after dropping repeated urls and titles.
func distinct(cs []model.Candidate) int {
	seen := newChosen()
	n := 0
	for _, c := range cs {
		if seen.has(c) {
			continue
		}
		seen.add(c)
		n++
	}
	return n
}

// sortNews orders by topic hits, then newest, then url for a stable result.
func sortNews(cs []model.Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.HitCount != b.HitCount {
			return a.HitCount > b.HitCount
		}
		if !a.Effective.Equal(b.Effective) {
			return a.Effective.After(b.Effective)
		}
		return a.Item.URL < b.Item.URL
	})
}

// sortBoards orders by popularity, then newest, then url.
func sortBoards(cs []model.Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if pa, pb := a.Item.Popularity(), b.Item.Popularity(); pa != pb {
			return pa > pb
		}
		if !a.Effective.Equal(b.Effective) {
			return a.Effective.After(b.Effective)
		}
		return a.Item.URL < b.Item.URL
	})
}

type chosen struct {
	urls   map[string]struct{}
	titles map[string]struct{}
	boards map[string]struct{}
}

func newChosen() *chosen {
	return &chosen{
		urls:   map[string]struct{}{},
		titles: map[string]struct{}{},
		boards: map[string]struct{}{},
	}
}

func (c *chosen) has(cand model.Candidate) bool {
	if _, ok := c.urls[cand.Item.URL]; ok {
		return true
	}
	if cand.NormalizedTitle == "" {
		return false
	}
	_, ok := c.titles[cand.NormalizedTitle]
	return ok
}

func (c *chosen) hasBoard(board string) bool {
	_, ok := c.boards[strings.ToLower(board)]
	return ok
}

func (c *chosen) add(cand model.Candidate) {
	c.urls[cand.Item.URL] = struct{}{}
	if cand.NormalizedTitle != "" {
		c.titles[cand.NormalizedTitle] = struct{}{}
	}
	if cand.Item.BoardName != "" {
		c.boards[strings.ToLower(cand.Item.BoardName)] = struct{}{}
	}
}

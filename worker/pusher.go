package worker

import (
	"context"
	"log/slog"
	"time"

	"feedpush/internal/ai"
	"feedpush/internal/metrics"
	"feedpush/internal/model"
	"feedpush/internal/pool"
	"feedpush/internal/render"
	"feedpush/internal/selection"
	"feedpush/internal/sources"
	"feedpush/internal/storage"

	"github.com/google/uuid"
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Pusher runs one push: fetch, build pools, select, render, deliver, persist.
// Runs are serialised by the caller; Start never overlaps two runs.
type Pusher struct {
	Sources        []sources.Source
	SourceTimeout  time.Duration
	Store          storage.Store
	Builder        *pool.Builder
	Engine         *selection.Engine
	Renderer       *render.Renderer
	Sender         Sender        // nil means dry run
	Summarizer     ai.Summarizer // optional
	Language       string
	DayOffsetHours int
	Metrics        metrics.Recorder
	// AfterRun is called once per run with the report, e.g. to push metrics.
	AfterRun func(ctx context.Context, r *Report)
	Interval time.Duration
	Now      func() time.Time
}

// Report describes what one run did. A degraded run still returns a report.
type Report struct {
	RunID         string
	DayKey        string
	Fetched       int
	FailedSources []string
	NewsPool      int
	BoardPool     int
	Selection     selection.Result
	Message       string
	Delivered     bool
	Persisted     bool
	SnapshotErr   error
	DeliveryErr   error
	PersistErr    error
}

func (p *Pusher) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pusher) recorder() metrics.Recorder {
	if p.Metrics != nil {
		return p.Metrics
	}
	return metrics.Nop{}
}

// RunOnce performs a single run. Source, snapshot, delivery and persistence
// failures are logged and degrade the run; only a render failure is returned.
// A failed delivery persists nothing.
func (p *Pusher) RunOnce(ctx context.Context) (*Report, error) {
	start := p.now()
	rec := p.recorder()
	rep := &Report{
		RunID:  uuid.NewString(),
		DayKey: selection.DayKey(start, p.DayOffsetHours),
	}
	log := slog.With("run_id", rep.RunID)
	log.Info("run started", "day", rep.DayKey, "sources", len(p.Sources))

	ok := false
	defer func() {
		rec.RecordRun(p.now().Sub(start), ok)
		if p.AfterRun != nil {
			p.AfterRun(ctx, rep)
		}
	}()

	timeout := p.SourceTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	var raw []model.RawItem
	for _, r := range sources.FetchAll(ctx, p.Sources, timeout) {
		rec.RecordSource(r.Source, len(r.Items), r.Err, r.Duration)
		if r.Err != nil {
			log.Warn("source unavailable", "source", r.Source, "err", r.Err)
			rep.FailedSources = append(rep.FailedSources, r.Source)
			continue
		}
		log.Debug("source fetched", "source", r.Source, "items", len(r.Items), "took", r.Duration)
		raw = append(raw, r.Items...)
	}
	rep.Fetched = len(raw)

	news, boards := p.Builder.Build(raw, start)
	rep.NewsPool, rep.BoardPool = len(news), len(boards)

	state := p.snapshot(ctx, rep, news, boards)
	if rep.SnapshotErr != nil {
		rec.RecordSnapshotFailure()
		log.Error("store read failed, selecting without history", "err", rep.SnapshotErr)
	}

	rep.Selection = p.Engine.Select(news, boards, state)
	for _, pick := range rep.Selection.Picks {
		rec.RecordSelected(pick.Candidate.Item.Kind.String(), pick.Stage)
	}
	items := rep.Selection.Items()
	log.Info("selection done",
		"news_pool", rep.NewsPool, "board_pool", rep.BoardPool,
		"boards", rep.Selection.Count(model.Board), "news", rep.Selection.Count(model.NewsSite))

	if p.Summarizer != nil {
		if n := ai.FillSummaries(ctx, p.Summarizer, items, p.Language, sources.SummaryMaxRunes); n > 0 {
			log.Debug("summaries generated", "count", n)
		}
	}

	msg, err := p.Renderer.Render(items, start)
	if err != nil {
		return rep, err
	}
	rep.Message = msg

	if p.Sender == nil {
		rec.RecordDelivery(metrics.DeliverySkipped)
		log.Info("dry run, delivery and persistence skipped")
		ok = true
		return rep, nil
	}
	if err := p.Sender.Send(ctx, msg); err != nil {
		rep.DeliveryErr = err
		rec.RecordDelivery(metrics.DeliveryFailed)
		log.Error("delivery failed, nothing persisted", "err", err, "items", len(items))
		return rep, nil
	}
	rep.Delivered = true
	rec.RecordDelivery(metrics.DeliveryOK)
	ok = true

	if p.Store == nil {
		log.Warn("no store configured, nothing persisted")
		return rep, nil
	}
	batch := storage.NewBatch(rep.DayKey, start)
	for _, c := range items {
		batch.MarkSeen(c.Item.URL, c.NormalizedTitle)
		if c.Item.Kind == model.Board && c.Item.BoardName != "" {
			batch.RecordBoardUsage(c.Item.BoardName)
		}
	}
	if err := p.Store.Commit(ctx, batch); err != nil {
		rep.PersistErr = err
		rec.RecordPersistFailure()
		log.Error("persist failed, batch discarded", "err", err, "items", len(items))
	} else {
		rep.Persisted = true
	}
	log.Info("run finished", "delivered", rep.Delivered, "persisted", rep.Persisted,
		"failed_sources", len(rep.FailedSources), "took", p.now().Sub(start))
	return rep, nil
}

// snapshot loads the seen flags of every pool candidate and today's usage. On
// failure it returns an empty state and records the error on the report.
func (p *Pusher) snapshot(ctx context.Context, rep *Report, pools ...[]model.Candidate) selection.State {
	if p.Store == nil {
		return selection.EmptyState
	}
	var urls, titles []string
	for _, cs := range pools {
		for _, c := range cs {
			urls = append(urls, c.Item.URL)
			titles = append(titles, c.NormalizedTitle)
		}
	}
	snap, err := p.Store.Snapshot(ctx, rep.DayKey, urls, titles)
	if err != nil {
		rep.SnapshotErr = err
		return selection.EmptyState
	}
	return snap
}

// Start runs immediately and then on every tick until ctx is cancelled.
func (p *Pusher) Start(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	p.runLogged(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			p.runLogged(ctx)
		}
	}
}

func (p *Pusher) runLogged(ctx context.Context) {
	if _, err := p.RunOnce(ctx); err != nil {
		slog.Error("pusher: run failed", "err", err)
	}
}

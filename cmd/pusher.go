package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"feedpush/internal/ai"
	"feedpush/internal/config"
	"feedpush/internal/keyword"
	"feedpush/internal/metrics"
	"feedpush/internal/pool"
	"feedpush/internal/render"
	"feedpush/internal/selection"
	"feedpush/internal/sources"
	"feedpush/internal/storage"
	"feedpush/internal/telegram"
	"feedpush/worker"

	"github.com/prometheus/client_golang/prometheus"
)

// buildPusher wires every collaborator of a run from configuration. The caller
// owns the returned store and must close it.
func buildPusher(ctx context.Context, cfg config.Config, dryRun bool, reg *prometheus.Registry) (*worker.Pusher, storage.Store, error) {
	if err := cfg.Validate(!dryRun); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	missing, err := pool.ParseMissingPublished(cfg.Selection.MissingPublished)
	if err != nil {
		return nil, nil, err
	}
	renderer, err := render.New(render.Options{
		Recipient:      cfg.Render.Recipient,
		DayOffsetHours: cfg.Selection.DayOffset(),
		MaxLen:         cfg.Render.MaxMessageLen,
		TemplateFile:   cfg.Render.TemplateFile,
	})
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	sel := cfg.Selection
	p := &worker.Pusher{
		Sources:       sources.FromConfig(cfg.Sources, &http.Client{Timeout: config.Duration(cfg.Sources.Timeout, 20*time.Second)}),
		SourceTimeout: config.Duration(cfg.Sources.Timeout, 20*time.Second),
		Store:         store,
		Builder: &pool.Builder{
			Matcher:       keyword.NewMatcher(sel.Topics),
			PriorityTopic: sel.PriorityTopic,
			Missing:       missing,
		},
		Engine: selection.New(selection.Config{
			BoardCount:         sel.BoardCount(),
			NewsCount:          sel.NewsCount(),
			NewsLookback:       hours(sel.LookbackHoursNews),
			BoardLookback:      hours(sel.LookbackHoursBoard),
			PriorityBoard:      cfg.PriorityBoard(),
			DiversityMinBoards: sel.DiversityThreshold(),
			MinTopicHits:       sel.MinTopicHits,
		}),
		Renderer:       renderer,
		Language:       cfg.OpenAI.Language,
		DayOffsetHours: sel.DayOffset(),
		Interval:       config.Duration(cfg.Schedule.Interval, time.Hour),
	}
	if !dryRun {
		p.Sender = telegram.New(cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			config.Duration(cfg.Telegram.Timeout, 20*time.Second), cfg.Telegram.MaxRetries)
	}
	if cfg.OpenAI.APIKey != "" {
		s, err := ai.NewOpenAI(ai.Config{APIKey: cfg.OpenAI.APIKey, Model: cfg.OpenAI.Model, BaseURL: cfg.OpenAI.BaseURL})
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		p.Summarizer = s
	}
	if reg != nil {
		p.Metrics = metrics.NewCollector(reg)
		if url := cfg.Metrics.PushgatewayURL; url != "" {
			p.AfterRun = func(ctx context.Context, _ *worker.Report) {
				pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				if err := metrics.Push(pctx, url, cfg.Metrics.Job, reg); err != nil {
					slog.Warn("metrics push failed", "err", err)
				}
			}
		}
	}
	return p, store, nil
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// Package sources fetches raw items from news sites and link-aggregator boards.
// Every source is independent: one failing never affects the others.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"feedpush/internal/model"
)

// Source yields raw items. An error means the source is unavailable for this run.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]model.RawItem, error)
}

// Result is the outcome of one source in a FetchAll pass.
type Result struct {
	Source   string
	Items    []model.RawItem
	Err      error
	Duration time.Duration
}

// FetchAll queries every source concurrently, each under its own timeout.
// Results keep the order of srcs.
func FetchAll(ctx context.Context, srcs []Source, timeout time.Duration) []Result {
	out := make([]Result, len(srcs))
	var wg sync.WaitGroup
	for i, s := range srcs {
		wg.Add(1)
		go func(i int, s Source) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			start := time.Now()
			items, err := s.Fetch(sctx)
			out[i] = Result{Source: s.Name(), Items: items, Err: err, Duration: time.Since(start)}
		}(i, s)
	}
	wg.Wait()
	return out
}

// getJSON issues a GET with the user agent and decodes a 2xx JSON body into v.
func getJSON(ctx context.Context, client *http.Client, endpoint, userAgent string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("GET %s: %w", redact(endpoint), uerr.Err)
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("GET %s: status %d", redact(endpoint), resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func orDefaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 20 * time.Second}
}

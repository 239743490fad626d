// Package telegram delivers plain-text messages through the Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Client is a minimal Bot API client for sendMessage.
type Client struct {
	baseURL    string
	token      string
	chatID     string
	http       *http.Client
	maxRetries int
	backoff    time.Duration
}

// New creates a client. baseURL should be like "https://api.telegram.org" (no trailing slash).
func New(baseURL, token, chatID string, timeout time.Duration, maxRetries int) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		chatID:     chatID,
		http:       &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		backoff:    time.Second,
	}
}

// WithBackoff overrides the base delay between attempts.
func (c *Client) WithBackoff(d time.Duration) *Client {
	c2 := *c
	c2.backoff = d
	return &c2
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// APIError is a non-2xx answer from the Bot API.
type APIError struct {
	Status      int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: status=%d %s", e.Status, e.Description)
}

func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Send posts text to the configured chat with link previews disabled. Transport
// errors, 429 and 5xx are retried up to maxRetries times.
func (c *Client) Send(ctx context.Context, text string) error {
	if c == nil {
		return errors.New("nil telegram client")
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("telegram: empty message")
	}
	var err error
	for attempt := 0; ; attempt++ {
		err = c.sendOnce(ctx, text)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return err
		}
		if attempt >= c.maxRetries {
			return err
		}
		wait := c.backoff << attempt
		if apiErr != nil && apiErr.RetryAfter > 0 {
			wait = apiErr.RetryAfter
		}
		slog.Warn("telegram: send failed, retrying", "attempt", attempt+1, "wait", wait, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) sendOnce(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: c.chatID, Text: text, DisableWebPagePreview: true})
	if err != nil {
		return err
	}
	endpoint := c.baseURL + "/bot" + c.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		// the request url carries the token
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("telegram: %s: %w", uerr.Op, uerr.Err)
		}
		return errors.New("telegram: request failed")
	}
	defer resp.Body.Close()

	var out apiResponse
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(b, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.OK {
		desc := out.Description
		if desc == "" {
			desc = strings.TrimSpace(string(b))
		}
		return &APIError{
			Status:      resp.StatusCode,
			Description: desc,
			RetryAfter:  time.Duration(out.Parameters.RetryAfter) * time.Second,
		}
	}
	return nil
}

// SendFile delivers the content of a pre-rendered message file.
func SendFile(ctx context.Context, c *Client, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read message file: %w", err)
	}
	return c.Send(ctx, string(b))
}

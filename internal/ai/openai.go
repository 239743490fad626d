package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"feedpush/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Summarizer writes a short description for an item that arrived without one.
type Summarizer interface {
	SummarizeItem(ctx context.Context, title, content, language string) (string, error)
}

// OpenAIClient implements Summarizer using OpenAI Chat Completions API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string // optional
}

func NewOpenAI(cfg Config) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("openai: model must be specified")
	}
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cc), model: cfg.Model}, nil
}

func (o *OpenAIClient) SummarizeItem(ctx context.Context, title, content, language string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	content = strings.TrimSpace(content)
	if content == "" {
		content = title
	}
	if r := []rune(content); len(r) > 1000 {
		content = string(r[:1000])
	}

	sys := fmt.Sprintf(`You write one-sentence news blurbs in %s.
Return at most 40 words, plain text, no links, no quotes, no preamble.
Only restate what the headline and text say.`, langOrDefault(language))
	user := fmt.Sprintf("Title: %s\nContent: %s", title, content)
	out, err := o.create(ctx, sys, user)
	if err != nil {
		return "", fmt.Errorf("openai: summarize item: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (o *OpenAIClient) create(ctx context.Context, system, user string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// FillSummaries summarizes, in place, the candidates that have no summary. A
// failure leaves that item's summary empty and never aborts the caller.
func FillSummaries(ctx context.Context, s Summarizer, cs []model.Candidate, language string, maxRunes int) int {
	if s == nil {
		return 0
	}
	filled := 0
	for i := range cs {
		it := &cs[i].Item
		if strings.TrimSpace(it.Summary) != "" {
			continue
		}
		out, err := s.SummarizeItem(ctx, it.Title, "", language)
		if err != nil {
			slog.Warn("summary failed", "url", it.URL, "err", err)
			continue
		}
		if maxRunes > 0 {
			if r := []rune(out); len(r) > maxRunes {
				out = string(r[:maxRunes])
			}
		}
		it.Summary = out
		if out != "" {
			filled++
		}
	}
	return filled
}

func langOrDefault(lang string) string {
	l := strings.TrimSpace(lang)
	if l == "" {
		return "English"
	}
	return l
}

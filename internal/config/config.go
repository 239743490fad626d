package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"feedpush/internal/keyword"

	"gopkg.in/yaml.v3"
)

// AppConfig holds application-level settings.
type AppConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // text or json
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StoreConfig selects the dedup store backend.
type StoreConfig struct {
	Backend     string `mapstructure:"backend"` // redis, postgres or memory
	KeyPrefix   string `mapstructure:"key_prefix"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// TelegramConfig controls message delivery.
type TelegramConfig struct {
	BotToken   string `mapstructure:"bot_token"`
	ChatID     string `mapstructure:"chat_id"`
	BaseURL    string `mapstructure:"base_url"`
	Timeout    string `mapstructure:"timeout"` // duration string, e.g. "20s"
	MaxRetries int    `mapstructure:"max_retries"`
}

// FeedConfig is one RSS/Atom news source.
type FeedConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// BoardConfig is one link-aggregator community. At most one board may be the priority board.
type BoardConfig struct {
	Name     string `mapstructure:"name"`
	Priority bool   `mapstructure:"priority"`
}

// GuardianConfig controls the optional content API source. No API key, no source.
type GuardianConfig struct {
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	PageSize int    `mapstructure:"page_size"`
}

// RedditConfig controls the hot-listing board source.
type RedditConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Limit         int           `mapstructure:"limit"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Boards        []BoardConfig `mapstructure:"boards"`
}

// HNConfig controls the optional Hacker News board.
type HNConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseAPI string `mapstructure:"base_api"`
	Limit   int    `mapstructure:"limit"`
}

// DataSources groups every fetch collaborator.
type DataSources struct {
	UserAgent       string         `mapstructure:"user_agent"`
	Timeout         string         `mapstructure:"timeout"` // per source, duration string
	MaxItemsPerFeed int            `mapstructure:"max_items_per_feed"`
	RSS             []FeedConfig   `mapstructure:"rss"`
	Guardian        GuardianConfig `mapstructure:"guardian"`
	Reddit          RedditConfig   `mapstructure:"reddit"`
	HN              HNConfig       `mapstructure:"hackernews"`
}

// SelectionConfig is the composition policy of one push. Pointer fields are
// those where an explicit zero is a valid setting; nil means the key was absent.
type SelectionConfig struct {
	TotalPushCount     int             `mapstructure:"total_push_count"`
	FixedBoardCount    *int            `mapstructure:"fixed_board_count"`
	OtherNewsCount     *int            `mapstructure:"other_news_count"`
	LookbackHoursNews  float64         `mapstructure:"lookback_hours_news"`
	LookbackHoursBoard float64         `mapstructure:"lookback_hours_board"`
	PriorityTopic      string          `mapstructure:"priority_topic"`
	DayOffsetHours     *int            `mapstructure:"day_offset_hours"`
	DiversityMinBoards *int            `mapstructure:"diversity_min_boards"`
	MinTopicHits       int             `mapstructure:"min_topic_hits"`
	MissingPublished   string          `mapstructure:"missing_published"` // now or epoch
	Topics             []keyword.Topic `mapstructure:"topics"`
	TopicsFile         string          `mapstructure:"topics_file"`
}

// RenderConfig controls the outgoing message.
type RenderConfig struct {
	Recipient     string `mapstructure:"recipient"`
	MaxMessageLen int    `mapstructure:"max_message_len"`
	TemplateFile  string `mapstructure:"template_file"`
}

// OpenAIConfig enables summaries for selected items that arrive without one.
type OpenAIConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	Language string `mapstructure:"language"`
}

// MetricsConfig controls Prometheus exposure.
type MetricsConfig struct {
	Listen         string `mapstructure:"listen"` // serve mode only, e.g. ":9090"
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// ScheduleConfig controls serve mode.
type ScheduleConfig struct {
	Interval string `mapstructure:"interval"`
}

// Config is the top-level configuration structure.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Store     StoreConfig     `mapstructure:"store"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Sources   DataSources     `mapstructure:"sources"`
	Selection SelectionConfig `mapstructure:"selection"`
	Render    RenderConfig    `mapstructure:"render"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
}

// DefaultFeeds are the news sites polled when none are configured.
var DefaultFeeds = []FeedConfig{
	{Name: "DW", URL: "https://rss.dw.com/rdf/rss-en-all"},
	{Name: "France24", URL: "https://www.france24.com/en/rss"},
	{Name: "LeMonde_EN_Science", URL: "https://www.lemonde.fr/en/science/rss_full.xml"},
}

// DefaultBoards are the communities polled when none are configured.
var DefaultBoards = []BoardConfig{
	{Name: "worldnews"},
	{Name: "science"},
	{Name: "europe"},
	{Name: "Luxembourg", Priority: true},
	{Name: "EuropeanUnion"},
	{Name: "dataisbeautiful"},
}

// DefaultTopics is the topic table used when none is configured.
var DefaultTopics = []keyword.Topic{
	{Tag: "EU_big", Keywords: []string{"eu", "european commission", "ukraine", "russia"}},
	{Tag: "Lux_immigration", Keywords: []string{"luxembourg", "residence", "visa", "blue card", "schengen", "immigration"}},
	{Tag: "Quant_fin", Keywords: []string{"quant", "trading", "crypto", "volatility", "ecb", "rates", "inflation", "market"}},
	{Tag: "Research_engineering", Keywords: []string{"research", "paper", "university", "aerospace", "wind", "grid", "nuclear", "semiconductor", "ai"}},
	{Tag: "Space", Keywords: []string{"nasa", "esa", "launch", "satellite", "space", "astronomy"}},
	{Tag: "Taiwan_life", Keywords: []string{"taiwan", "lgbtq", "gender", "childcare", "fertility", "marriage", "cost of living", "saving"}},
}

// FillDefaults applies default values if not provided.
func (c *Config) FillDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogFormat == "" {
		c.App.LogFormat = "text"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "redis"
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "feedpush"
	}
	if c.Telegram.BaseURL == "" {
		c.Telegram.BaseURL = "https://api.telegram.org"
	}
	if c.Telegram.Timeout == "" {
		c.Telegram.Timeout = "20s"
	}
	if c.Telegram.MaxRetries == 0 {
		c.Telegram.MaxRetries = 3
	}

	s := &c.Sources
	if s.UserAgent == "" {
		s.UserAgent = "Mozilla/5.0 (feedpush; +https://example.com)"
	}
	if s.Timeout == "" {
		s.Timeout = "20s"
	}
	if s.MaxItemsPerFeed == 0 {
		s.MaxItemsPerFeed = 50
	}
	if len(s.RSS) == 0 {
		s.RSS = append([]FeedConfig(nil), DefaultFeeds...)
	}
	if s.Guardian.BaseURL == "" {
		s.Guardian.BaseURL = "https://content.guardianapis.com"
	}
	if s.Guardian.PageSize == 0 {
		s.Guardian.PageSize = 50
	}
	if s.Reddit.BaseURL == "" {
		s.Reddit.BaseURL = "https://www.reddit.com"
	}
	if s.Reddit.Limit == 0 {
		s.Reddit.Limit = 50
	}
	if s.Reddit.RatePerSecond == 0 {
		s.Reddit.RatePerSecond = 1
	}
	if len(s.Reddit.Boards) == 0 {
		s.Reddit.Boards = append([]BoardConfig(nil), DefaultBoards...)
	}
	if s.HN.BaseAPI == "" {
		s.HN.BaseAPI = "https://hacker-news.firebaseio.com/v0"
	}
	if s.HN.Limit == 0 {
		s.HN.Limit = 30
	}

	sel := &c.Selection
	if sel.TotalPushCount == 0 {
		sel.TotalPushCount = 5
		if sel.FixedBoardCount != nil && sel.OtherNewsCount != nil {
			sel.TotalPushCount = *sel.FixedBoardCount + *sel.OtherNewsCount
		}
	}
	if sel.FixedBoardCount == nil {
		sel.FixedBoardCount = intPtr(min(2, sel.TotalPushCount))
	}
	if sel.OtherNewsCount == nil {
		sel.OtherNewsCount = intPtr(sel.TotalPushCount - *sel.FixedBoardCount)
	}
	if sel.LookbackHoursNews == 0 {
		sel.LookbackHoursNews = 6
	}
	if sel.LookbackHoursBoard == 0 {
		sel.LookbackHoursBoard = 6
	}
	if sel.PriorityTopic == "" {
		sel.PriorityTopic = "Lux_immigration"
	}
	if sel.DayOffsetHours == nil {
		sel.DayOffsetHours = intPtr(8)
	}
	if sel.DiversityMinBoards == nil {
		sel.DiversityMinBoards = intPtr(3)
	}
	if sel.MissingPublished == "" {
		sel.MissingPublished = "now"
	}
	if len(sel.Topics) == 0 && sel.TopicsFile == "" {
		sel.Topics = append([]keyword.Topic(nil), DefaultTopics...)
	}

	if c.Render.Recipient == "" {
		c.Render.Recipient = "Laura"
	}
	if c.Render.MaxMessageLen == 0 {
		c.Render.MaxMessageLen = 3900
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.OpenAI.Language == "" {
		c.OpenAI.Language = "English"
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "feedpush"
	}
	if c.Schedule.Interval == "" {
		c.Schedule.Interval = "1h"
	}
}

func intPtr(v int) *int { return &v }

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// BoardCount is the number of board slots per push.
func (s SelectionConfig) BoardCount() int { return intOr(s.FixedBoardCount, 0) }

// NewsCount is the number of news slots per push.
func (s SelectionConfig) NewsCount() int { return intOr(s.OtherNewsCount, 0) }

// DayOffset is the UTC offset in hours of the usage day boundary.
func (s SelectionConfig) DayOffset() int { return intOr(s.DayOffsetHours, 0) }

// DiversityThreshold is the distinct-boards-per-day count below which unused boards are preferred.
func (s SelectionConfig) DiversityThreshold() int { return intOr(s.DiversityMinBoards, 0) }

// topicsFile is the layout of selection.topics_file.
type topicsFile struct {
	Topics []keyword.Topic `yaml:"topics"`
}

// LoadTopics replaces the topic table with the content of selection.topics_file, if set.
func (c *Config) LoadTopics() error {
	path := strings.TrimSpace(c.Selection.TopicsFile)
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open topics file: %w", err)
	}
	defer f.Close()

	var tf topicsFile
	if err := yaml.NewDecoder(f).Decode(&tf); err != nil {
		return fmt.Errorf("parse topics file %s: %w", path, err)
	}
	if len(tf.Topics) == 0 {
		return fmt.Errorf("topics file %s has no topics", path)
	}
	c.Selection.Topics = tf.Topics
	return nil
}

// PriorityBoard returns the name of the board flagged as priority, or "".
func (c Config) PriorityBoard() string {
	for _, b := range c.Sources.Reddit.Boards {
		if b.Priority {
			return b.Name
		}
	}
	return ""
}

// Validate reports configuration errors. Delivery credentials are only
// required when the caller is going to deliver.
func (c Config) Validate(requireDelivery bool) error {
	var errs []error
	if requireDelivery {
		if strings.TrimSpace(c.Telegram.BotToken) == "" {
			errs = append(errs, errors.New("telegram.bot_token (TG_BOT_TOKEN) is required"))
		}
		if strings.TrimSpace(c.Telegram.ChatID) == "" {
			errs = append(errs, errors.New("telegram.chat_id (TG_CHAT_ID) is required"))
		}
	}
	sel := c.Selection
	if sel.BoardCount() < 0 || sel.NewsCount() < 0 || sel.DiversityThreshold() < 0 {
		errs = append(errs, errors.New("selection counts must not be negative"))
	}
	if sel.BoardCount()+sel.NewsCount() != sel.TotalPushCount {
		errs = append(errs, fmt.Errorf("selection.total_push_count (%d) must equal fixed_board_count (%d) + other_news_count (%d)",
			sel.TotalPushCount, sel.BoardCount(), sel.NewsCount()))
	}
	if sel.LookbackHoursNews < 0 || sel.LookbackHoursBoard < 0 {
		errs = append(errs, errors.New("lookback hours must not be negative"))
	}
	if off := sel.DayOffset(); off < -12 || off > 14 {
		errs = append(errs, fmt.Errorf("selection.day_offset_hours %d out of range", off))
	}
	seenTags := map[string]bool{}
	for _, t := range sel.Topics {
		tag := strings.ToLower(strings.TrimSpace(t.Tag))
		if tag == "" {
			errs = append(errs, errors.New("selection.topics: empty tag"))
			continue
		}
		if seenTags[tag] {
			errs = append(errs, fmt.Errorf("selection.topics: duplicate tag %q", t.Tag))
		}
		seenTags[tag] = true
	}
	switch strings.ToLower(sel.MissingPublished) {
	case "now", "epoch":
	default:
		errs = append(errs, fmt.Errorf("selection.missing_published must be now or epoch, got %q", sel.MissingPublished))
	}
	priority := 0
	for _, b := range c.Sources.Reddit.Boards {
		if strings.TrimSpace(b.Name) == "" {
			errs = append(errs, errors.New("sources.reddit.boards: empty board name"))
		}
		if b.Priority {
			priority++
		}
	}
	if priority > 1 {
		errs = append(errs, errors.New("sources.reddit.boards: at most one priority board"))
	}
	switch strings.ToLower(c.Store.Backend) {
	case "redis", "memory":
	case "postgres":
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be redis, postgres or memory, got %q", c.Store.Backend))
	}
	for _, d := range []struct{ name, v string }{
		{"telegram.timeout", c.Telegram.Timeout},
		{"sources.timeout", c.Sources.Timeout},
		{"schedule.interval", c.Schedule.Interval},
	} {
		if _, err := time.ParseDuration(d.v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
		}
	}
	return errors.Join(errs...)
}

// Duration parses a duration string already checked by Validate, falling back to def.
func Duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps seen urls and titles in sorted sets scored by the unix time
// they were last pushed, and board usage in one hash per day.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "feedpush"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) seenURLKey() string {
	return s.prefix + ":seen:url"
}

func (s *RedisStore) seenTitleKey() string {
	return s.prefix + ":seen:title"
}

func (s *RedisStore) usageKey(dayKey string) string {
	return fmt.Sprintf("%s:board_usage:%s", s.prefix, dayKey)
}

func (s *RedisStore) isMember(ctx context.Context, key, member string) (bool, error) {
	err := s.rdb.ZScore(ctx, key, member).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) WasSeen(ctx context.Context, url string) (bool, error) {
	return s.isMember(ctx, s.seenURLKey(), url)
}

func (s *RedisStore) WasTitleSeen(ctx context.Context, title string) (bool, error) {
	if title == "" {
		return false, nil
	}
	return s.isMember(ctx, s.seenTitleKey(), title)
}

func (s *RedisStore) BoardUsageToday(ctx context.Context, board, dayKey string) (int, error) {
	n, err := s.rdb.HGet(ctx, s.usageKey(dayKey), board).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (s *RedisStore) BoardUsage(ctx context.Context, dayKey string) (map[string]int, error) {
	raw, err := s.rdb.HGetAll(ctx, s.usageKey(dayKey)).Result()
	if err != nil {
		return nil, err
	}
	return parseUsage(raw)
}

// Snapshot reads every flag inside one MULTI/EXEC so no concurrent commit can
// interleave with the run's view.
func (s *RedisStore) Snapshot(ctx context.Context, dayKey string, urls, titles []string) (*Snapshot, error) {
	urls, titles = uniq(urls), uniq(titles)
	var (
		urlCmds   = make([]*redis.FloatCmd, 0, len(urls))
		titleCmds = make([]*redis.FloatCmd, 0, len(titles))
		usageCmd  *redis.MapStringStringCmd
	)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, u := range urls {
			urlCmds = append(urlCmds, p.ZScore(ctx, s.seenURLKey(), u))
		}
		for _, t := range titles {
			titleCmds = append(titleCmds, p.ZScore(ctx, s.seenTitleKey(), t))
		}
		usageCmd = p.HGetAll(ctx, s.usageKey(dayKey))
		return nil
	})
	// a missing member surfaces as redis.Nil on the pipeline; real failures are checked per command
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis snapshot: %w", err)
	}

	snap := NewSnapshot(dayKey)
	for i, c := range urlCmds {
		ok, err := present(c)
		if err != nil {
			return nil, fmt.Errorf("redis snapshot url: %w", err)
		}
		snap.urls[urls[i]] = ok
	}
	for i, c := range titleCmds {
		ok, err := present(c)
		if err != nil {
			return nil, fmt.Errorf("redis snapshot title: %w", err)
		}
		snap.titles[titles[i]] = ok
	}
	usage, err := parseUsage(usageCmd.Val())
	if err != nil {
		return nil, err
	}
	snap.usage = usage
	return snap, nil
}

func present(c *redis.FloatCmd) (bool, error) {
	switch err := c.Err(); {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}

func parseUsage(raw map[string]string) (map[string]int, error) {
	out := make(map[string]int, len(raw))
	for board, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("board usage %s: %w", board, err)
		}
		out[board] = n
	}
	return out, nil
}

// Commit writes the batch in one MULTI/EXEC transaction.
func (s *RedisStore) Commit(ctx context.Context, b *Batch) error {
	if b == nil || b.Empty() {
		return nil
	}
	score := float64(b.At.Unix())
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, e := range b.Seen {
			p.ZAdd(ctx, s.seenURLKey(), redis.Z{Score: score, Member: e.URL})
			if e.Title != "" {
				p.ZAdd(ctx, s.seenTitleKey(), redis.Z{Score: score, Member: e.Title})
			}
		}
		for _, board := range b.Boards {
			p.HIncrBy(ctx, s.usageKey(b.DayKey), board, 1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis commit: %w", err)
	}
	return nil
}

func (s *RedisStore) Prune(ctx context.Context, before time.Time, beforeDay string) (int64, error) {
	maxScore := "(" + strconv.FormatInt(before.Unix(), 10)
	var removed int64
	for _, key := range []string{s.seenURLKey(), s.seenTitleKey()} {
		n, err := s.rdb.ZRemRangeByScore(ctx, key, "-inf", maxScore).Result()
		if err != nil {
			return removed, fmt.Errorf("prune %s: %w", key, err)
		}
		removed += n
	}

	prefix := s.usageKey("")
	var stale []string
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if day := strings.TrimPrefix(key, prefix); day < beforeDay {
			stale = append(stale, key)
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan usage keys: %w", err)
	}
	if len(stale) > 0 {
		n, err := s.rdb.Del(ctx, stale...).Result()
		if err != nil {
			return removed, fmt.Errorf("prune usage: %w", err)
		}
		removed += n
	}
	return removed, nil
}

// Stats returns the sizes of the seen url and title sets.
func (s *RedisStore) Stats(ctx context.Context) (urls, titles int64, err error) {
	cmds, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.ZCard(ctx, s.seenURLKey())
		p.ZCard(ctx, s.seenTitleKey())
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return cmds[0].(*redis.IntCmd).Val(), cmds[1].(*redis.IntCmd).Val(), nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

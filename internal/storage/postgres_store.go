package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS seen_url (
	url     TEXT PRIMARY KEY,
	seen_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_seen_url_seen_at ON seen_url(seen_at);

CREATE TABLE IF NOT EXISTS seen_title (
	title   TEXT PRIMARY KEY,
	seen_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_seen_title_seen_at ON seen_title(seen_at);

CREATE TABLE IF NOT EXISTS board_daily_usage (
	day   TEXT NOT NULL,
	board TEXT NOT NULL,
	cnt   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (day, board)
);
`

// PostgresStore keeps the dedup state in three tables.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgresStore connects, pings and creates the schema if needed.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("postgres store ready")
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) exists(ctx context.Context, query, arg string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) WasSeen(ctx context.Context, url string) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM seen_url WHERE url = $1`, url)
}

func (s *PostgresStore) WasTitleSeen(ctx context.Context, title string) (bool, error) {
	if title == "" {
		return false, nil
	}
	return s.exists(ctx, `SELECT 1 FROM seen_title WHERE title = $1`, title)
}

func (s *PostgresStore) BoardUsageToday(ctx context.Context, board, dayKey string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT cnt FROM board_daily_usage WHERE day = $1 AND board = $2`, dayKey, board).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func boardUsage(ctx context.Context, q queryer, dayKey string) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT board, cnt FROM board_daily_usage WHERE day = $1`, dayKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			board string
			n     int
		)
		if err := rows.Scan(&board, &n); err != nil {
			return nil, err
		}
		out[board] = n
	}
	return out, rows.Err()
}

func (s *PostgresStore) BoardUsage(ctx context.Context, dayKey string) (map[string]int, error) {
	return boardUsage(ctx, s.db, dayKey)
}

func presentValues(ctx context.Context, q queryer, query string, values []string) (map[string]bool, error) {
	out := map[string]bool{}
	if len(values) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx, query, pq.Array(values))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

// Snapshot runs its three reads in one read-only repeatable-read transaction.
func (s *PostgresStore) Snapshot(ctx context.Context, dayKey string, urls, titles []string) (*Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	snap := NewSnapshot(dayKey)
	if snap.urls, err = presentValues(ctx, tx, `SELECT url FROM seen_url WHERE url = ANY($1)`, uniq(urls)); err != nil {
		return nil, fmt.Errorf("snapshot urls: %w", err)
	}
	if snap.titles, err = presentValues(ctx, tx, `SELECT title FROM seen_title WHERE title = ANY($1)`, uniq(titles)); err != nil {
		return nil, fmt.Errorf("snapshot titles: %w", err)
	}
	if snap.usage, err = boardUsage(ctx, tx, dayKey); err != nil {
		return nil, fmt.Errorf("snapshot usage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("end snapshot: %w", err)
	}
	return snap, nil
}

// Commit upserts the batch in one transaction; any failure rolls back every row.
func (s *PostgresStore) Commit(ctx context.Context, b *Batch) error {
	if b == nil || b.Empty() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	at := b.At.UTC()
	for _, e := range b.Seen {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO seen_url (url, seen_at) VALUES ($1, $2)
			 ON CONFLICT (url) DO UPDATE SET seen_at = EXCLUDED.seen_at`, e.URL, at); err != nil {
			return fmt.Errorf("mark url: %w", err)
		}
		if e.Title == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO seen_title (title, seen_at) VALUES ($1, $2)
			 ON CONFLICT (title) DO UPDATE SET seen_at = EXCLUDED.seen_at`, e.Title, at); err != nil {
			return fmt.Errorf("mark title: %w", err)
		}
	}
	for _, board := range b.Boards {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO board_daily_usage (day, board, cnt) VALUES ($1, $2, 1)
			 ON CONFLICT (day, board) DO UPDATE SET cnt = board_daily_usage.cnt + 1`, b.DayKey, board); err != nil {
			return fmt.Errorf("record board usage: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) Prune(ctx context.Context, before time.Time, beforeDay string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var removed int64
	for _, stmt := range []struct {
		query string
		arg   any
	}{
		{`DELETE FROM seen_url WHERE seen_at < $1`, before.UTC()},
		{`DELETE FROM seen_title WHERE seen_at < $1`, before.UTC()},
		{`DELETE FROM board_daily_usage WHERE day < $1`, beforeDay},
	} {
		res, err := tx.ExecContext(ctx, stmt.query, stmt.arg)
		if err != nil {
			return 0, fmt.Errorf("prune: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("prune commit: %w", err)
	}
	return removed, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

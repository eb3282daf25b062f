// Package settings persists filters, queue settings and run state in SQLite.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/joshsymonds/chronotriage/internal/filter"
	"github.com/joshsymonds/chronotriage/internal/queue"
)

// Well-known scalar keys.
const (
	KeyLastDequeue = "last_dequeue_time"
	KeyVacation    = "vacation"
	KeyDaysToShow  = "days_to_show"
)

// ErrNotFound is returned by Get for unset keys.
var ErrNotFound = errors.New("setting not found")

// Store is a SQLite-backed settings store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS filters (
	position INTEGER PRIMARY KEY,
	rule     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS queues (
	label TEXT PRIMARY KEY,
	queue TEXT NOT NULL,
	goal  TEXT NOT NULL,
	idx   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	processed   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	dequeued    INTEGER NOT NULL DEFAULT 0,
	per_label   TEXT NOT NULL DEFAULT '{}'
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Filters returns the stored rules in order.
func (s *Store) Filters(ctx context.Context) ([]filter.Rule, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT rule FROM filters ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("query filters: %w", err)
	}
	defer rows.Close()

	var rules []filter.Rule
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan filter: %w", err)
		}
		var r filter.Rule
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode filter: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ReplaceFilters swaps the whole rule list. Every rule must be valid.
func (s *Store) ReplaceFilters(ctx context.Context, rules []filter.Rule) error {
	encoded := make([]string, 0, len(rules))
	for i, r := range rules {
		norm, _ := r.Normalize()
		if err := norm.Validate(); err != nil {
			return fmt.Errorf("filter %d: %w", i, err)
		}
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode filter %d: %w", i, err)
		}
		encoded = append(encoded, string(b))
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM filters"); err != nil {
			return fmt.Errorf("clear filters: %w", err)
		}
		for i, raw := range encoded {
			if _, err := tx.ExecContext(ctx, "INSERT INTO filters (position, rule) VALUES (?, ?)", i, raw); err != nil {
				return fmt.Errorf("insert filter %d: %w", i, err)
			}
		}
		return nil
	})
}

// Queues returns the stored queue settings.
func (s *Store) Queues(ctx context.Context) (queue.Settings, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT label, queue, goal, idx FROM queues")
	if err != nil {
		return nil, fmt.Errorf("query queues: %w", err)
	}
	defer rows.Close()

	out := queue.Settings{}
	for rows.Next() {
		var (
			label, bucket, goal string
			idx                 int
		)
		if err := rows.Scan(&label, &bucket, &goal, &idx); err != nil {
			return nil, fmt.Errorf("scan queue: %w", err)
		}
		out[label] = queue.Data{Queue: queue.Bucket(bucket), Goal: queue.Goal(goal), Index: idx}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out.Normalize(), nil
}

// ReplaceQueues swaps the whole queue settings map.
func (s *Store) ReplaceQueues(ctx context.Context, settings queue.Settings) error {
	settings = settings.Normalize()
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM queues"); err != nil {
			return fmt.Errorf("clear queues: %w", err)
		}
		for label, d := range settings {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO queues (label, queue, goal, idx) VALUES (?, ?, ?, ?)",
				label, string(d.Queue), string(d.Goal), d.Index,
			); err != nil {
				return fmt.Errorf("insert queue %q: %w", label, err)
			}
		}
		return nil
	})
}

// Get returns the value for key or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

// Set stores a single key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.WriteUpdates(ctx, map[string]string{key: value})
}

// WriteUpdates upserts every key in one transaction.
func (s *Store) WriteUpdates(ctx context.Context, updates map[string]string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for k, v := range updates {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO settings (key, value) VALUES (?, ?)
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
				k, v,
			); err != nil {
				return fmt.Errorf("set %q: %w", k, err)
			}
		}
		return nil
	})
}

// LastDequeue returns the previous successful sweep time, nil when there was none.
func (s *Store) LastDequeue(ctx context.Context) (*time.Time, error) {
	raw, err := s.Get(ctx, KeyLastDequeue)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseMillis(raw)
}

// SetLastDequeue records a successful sweep.
func (s *Store) SetLastDequeue(ctx context.Context, t time.Time) error {
	return s.Set(ctx, KeyLastDequeue, FormatMillis(t))
}

// ParseMillis decodes an epoch-millisecond string. Empty means unset.
func ParseMillis(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	t := time.UnixMilli(ms)
	return &t, nil
}

// FormatMillis encodes t as epoch milliseconds.
func FormatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

package settings

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// Run is one row of run statistics.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Processed  int
	Failed     int
	Dequeued   int
	PerLabel   map[string]int
}

// RecordRun appends run statistics.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	per, err := json.Marshal(r.PerLabel)
	if err != nil {
		return fmt.Errorf("encode per-label counts: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, processed, failed, dequeued, per_label)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339),
		r.Processed, r.Failed, r.Dequeued, string(per),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, processed, failed, dequeued, per_label
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
			per               string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Processed, &r.Failed, &r.Dequeued, &per); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		if err := json.Unmarshal([]byte(per), &r.PerLabel); err != nil {
			return nil, fmt.Errorf("decode per-label counts: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

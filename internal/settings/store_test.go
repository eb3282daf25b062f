package settings

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joshsymonds/chronotriage/internal/filter"
	"github.com/joshsymonds/chronotriage/internal/queue"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "triage.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFiltersReplaceWholesale(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	first := []filter.Rule{
		{Label: "work", From: filter.Fragments{"corp.com"}},
		{Label: "ci", Subject: "build", MatchAllMessages: true},
	}
	if err := s.ReplaceFilters(ctx, first); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := s.ReplaceFilters(ctx, first[1:]); err != nil {
		t.Fatalf("replace again: %v", err)
	}
	got, err := s.Filters(ctx)
	if err != nil {
		t.Fatalf("filters: %v", err)
	}
	if len(got) != 1 || got[0].Label != "ci" || !got[0].MatchAllMessages {
		t.Fatalf("filters got %+v", got)
	}
}

func TestReplaceFiltersRejectsInvalid(t *testing.T) {
	s := openStore(t)
	err := s.ReplaceFilters(context.Background(), []filter.Rule{{Label: "x"}})
	if !errors.Is(err, filter.ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
}

func TestQueuesRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	in := queue.Settings{
		"News":    {Queue: "Friday", Goal: queue.BestEffort, Index: 2},
		"blocked": {Queue: queue.Monthly, Goal: queue.InboxZero},
	}
	if err := s.ReplaceQueues(ctx, in); err != nil {
		t.Fatalf("replace queues: %v", err)
	}
	got, err := s.Queues(ctx)
	if err != nil {
		t.Fatalf("queues: %v", err)
	}
	if got["news"] != (queue.Data{Queue: "Friday", Goal: queue.BestEffort, Index: 2}) {
		t.Fatalf("news got %+v", got["news"])
	}
	if got["blocked"].Queue != queue.Daily {
		t.Fatalf("blocked got %+v", got["blocked"])
	}
}

func TestKeyValueAndLastDequeue(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if _, err := s.Get(ctx, KeyVacation); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	last, err := s.LastDequeue(ctx)
	if err != nil || last != nil {
		t.Fatalf("cold start got %v, %v", last, err)
	}
	when := time.UnixMilli(1700000000123)
	if err := s.SetLastDequeue(ctx, when); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.WriteUpdates(ctx, map[string]string{KeyVacation: "urgent", KeyDaysToShow: "7"}); err != nil {
		t.Fatalf("write updates: %v", err)
	}
	last, err = s.LastDequeue(ctx)
	if err != nil || last == nil || !last.Equal(when) {
		t.Fatalf("last dequeue got %v, %v", last, err)
	}
	if v, _ := s.Get(ctx, KeyVacation); v != "urgent" {
		t.Fatalf("vacation got %q", v)
	}
}

func TestRunsNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b"} {
		r := Run{
			ID:         id,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Processed:  i + 1,
			PerLabel:   map[string]int{"work": i},
		}
		if err := s.RecordRun(ctx, r); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	runs, err := s.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "b" || runs[0].PerLabel["work"] != 1 {
		t.Fatalf("runs got %+v", runs)
	}
}

func TestDocumentYAML(t *testing.T) {
	doc := `
filters:
  - label: work
    from: boss@corp.com, hr@corp.com
    header: ["X-Env:prod"]
queues:
  work:
    queue: Tuesday
    goal: Best Effort
    index: 3
`
	got, err := DecodeDocument(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Filters) != 1 || len(got.Filters[0].From) != 2 {
		t.Fatalf("filters got %+v", got.Filters)
	}
	if got.Queues["work"].Index != 3 || got.Queues["work"].Goal != queue.BestEffort {
		t.Fatalf("queues got %+v", got.Queues)
	}
	var buf bytes.Buffer
	if err := EncodeDocument(&buf, got); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(buf.String(), "queue: Tuesday") {
		t.Fatalf("encoded document missing queue: %s", buf.String())
	}
}

package triage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joshsymonds/chronotriage/internal/gmail"
	"github.com/joshsymonds/chronotriage/internal/taskqueue"
)

// Stats summarises one ProcessMail run.
type Stats struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Processed  int
	Failed     int
	// PerLabel counts threads newly given each label.
	PerLabel map[string]int
}

// Labels returns the PerLabel keys in order.
func (s Stats) Labels() []string {
	out := make([]string, 0, len(s.PerLabel))
	for l := range s.PerLabel {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (p *Processor) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

// ProcessMail triages every thread carrying the unprocessed label. Failures on
// individual threads are logged and counted; only listing errors are returned.
func (p *Processor) ProcessMail(ctx context.Context) (Stats, error) {
	stats := Stats{RunID: uuid.NewString(), StartedAt: p.now(), PerLabel: map[string]int{}}
	if err := p.Registry.Fetch(ctx); err != nil {
		return stats, err
	}
	unprocessed := p.Registry.Names().Unprocessed()
	unprocessedID, err := p.Registry.ResolveOrCreate(ctx, unprocessed)
	if err != nil {
		return stats, fmt.Errorf("resolve %s: %w", unprocessed, err)
	}

	ids, err := p.listThreads(ctx, gmail.Query{LabelIDs: []gmail.LabelID{unprocessedID}})
	if err != nil {
		return stats, fmt.Errorf("list %s: %w", unprocessed, err)
	}
	if len(ids) == 0 {
		p.log().Info("no unprocessed threads")
		stats.FinishedAt = p.now()
		return stats, nil
	}
	p.log().Info("processing unprocessed threads", "count", len(ids), "run", stats.RunID)

	var mu sync.Mutex
	pool := taskqueue.New(ctx, p.Workers)
	pool.OnError(func(err error) {
		p.log().Error("thread failed", "error", err)
	})
	pool.OnDone(func(done, queued int64) {
		p.log().Debug("progress", "done", done, "queued", queued)
	})
	for _, id := range ids {
		id := id
		pool.Queue(func(ctx context.Context) error {
			th, err := p.Client.GetThread(ctx, id)
			if err != nil {
				return fmt.Errorf("get thread %s: %w", id, err)
			}
			out, err := p.ProcessThread(ctx, th)
			if err != nil {
				return err
			}
			if out.Fresh {
				mu.Lock()
				stats.PerLabel[out.Label]++
				mu.Unlock()
			}
			return nil
		})
	}
	pool.Flush()

	done, failed := pool.Counts()
	stats.Processed = int(done - failed)
	stats.Failed = int(failed)
	stats.FinishedAt = p.now()
	p.log().Info("processed threads", "processed", stats.Processed, "failed", stats.Failed,
		"elapsed", stats.FinishedAt.Sub(stats.StartedAt))
	return stats, nil
}

func (p *Processor) listThreads(ctx context.Context, q gmail.Query) ([]gmail.ThreadID, error) {
	return ListAll(ctx, p.Client, q, p.PageSize)
}

// ListAll pages through every thread matching q.
func ListAll(ctx context.Context, c gmail.Client, q gmail.Query, pageSize int) ([]gmail.ThreadID, error) {
	var all []gmail.ThreadID
	token := ""
	for {
		page, err := c.ListThreads(ctx, q, token, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page.IDs...)
		if page.NextPageToken == "" {
			return all, nil
		}
		token = page.NextPageToken
	}
}

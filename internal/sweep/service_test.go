package sweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/joshsymonds/chronotriage/internal/gmail"
	"github.com/joshsymonds/chronotriage/internal/gmail/gmailtest"
	"github.com/joshsymonds/chronotriage/internal/labels"
	"github.com/joshsymonds/chronotriage/internal/queue"
)

type fakeState struct {
	last     *time.Time
	written  []time.Time
	queues   queue.Settings
	queueErr error
}

func (f *fakeState) LastDequeue(ctx context.Context) (*time.Time, error) {
	_ = ctx
	return f.last, nil
}

func (f *fakeState) SetLastDequeue(ctx context.Context, t time.Time) error {
	_ = ctx
	f.written = append(f.written, t)
	return nil
}

func (f *fakeState) Queues(ctx context.Context) (queue.Settings, error) {
	_ = ctx
	return f.queues, f.queueErr
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Wednesday.
var sweepNow = time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC)

type harness struct {
	mb    *gmailtest.Mailbox
	state *fakeState
	svc   *Service
	ids   map[string]gmail.LabelID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mb := gmailtest.NewMailbox()
	ids := map[string]gmail.LabelID{}
	for _, name := range []string{
		"mt/queued/work", "mt/queued/news", "mt/queued/reading", "mt/queued/pager", "mt/unprocessed",
	} {
		ids[name] = mb.AddLabel(name)
	}
	state := &fakeState{
		queues: queue.Settings{
			"work":    {Queue: queue.Daily},
			"news":    {Queue: queue.Monthly},
			"reading": {Queue: queue.WeekdayBucket(time.Wednesday)},
			"pager":   {Queue: queue.Immediate},
		},
	}
	reg := labels.NewRegistry(mb, labels.NewNames("mt"), slogDiscard())
	svc := NewService(mb, reg, state, slogDiscard())
	svc.Location = time.UTC
	svc.Clock = func() time.Time { return sweepNow }
	return &harness{mb: mb, state: state, svc: svc, ids: ids}
}

func (h *harness) park(id gmail.ThreadID, label string) {
	h.mb.AddThread(gmail.Thread{ID: id, Messages: []gmail.Message{
		{ID: gmail.MessageID(id + "-1"), LabelIDs: []gmail.LabelID{h.ids["mt/queued/"+label], "STARRED"}},
	}})
}

func (h *harness) released(t *testing.T, id gmail.ThreadID, label string) bool {
	t.Helper()
	th := h.mb.Thread(id)
	target, ok := h.mb.LabelByName("mt/needs-triage/" + label)
	return ok && th.HasLabel(target) && th.HasLabel(gmail.LabelInbox) && !th.HasLabel(h.ids["mt/queued/"+label])
}

func TestRunColdStartReleasesTodayAndDaily(t *testing.T) {
	h := newHarness(t)
	h.park("t-work", "work")
	h.park("t-news", "news")
	h.park("t-read", "reading")
	h.park("t-pager", "pager")

	rep, err := h.svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rep.Buckets) != 2 || rep.Buckets[0] != queue.WeekdayBucket(time.Wednesday) || rep.Buckets[1] != queue.Daily {
		t.Fatalf("buckets got %v", rep.Buckets)
	}
	for id, label := range map[gmail.ThreadID]string{"t-work": "work", "t-read": "reading", "t-pager": "pager"} {
		if !h.released(t, id, label) {
			t.Fatalf("%s not released: %v", id, h.mb.Thread(id).LabelIDs())
		}
	}
	if h.released(t, "t-news", "news") {
		t.Fatalf("monthly queue released on cold start")
	}
	if !h.mb.Thread("t-work").HasLabel("STARRED") {
		t.Fatalf("system label removed")
	}
	if rep.Total() != 3 || rep.Moved["work"] != 1 {
		t.Fatalf("moved got %v", rep.Moved)
	}
	if len(h.state.written) != 1 || !h.state.written[0].Equal(sweepNow) {
		t.Fatalf("timestamp got %v want %v", h.state.written, sweepNow)
	}
}

func TestRunNothingDue(t *testing.T) {
	h := newHarness(t)
	h.park("t-work", "work")
	last := sweepNow.Add(-time.Hour)
	h.state.last = &last

	rep, err := h.svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rep.Buckets) != 0 || len(h.mb.ThreadLists) != 0 {
		t.Fatalf("expected no work, got buckets %v lists %d", rep.Buckets, len(h.mb.ThreadLists))
	}
	if len(h.state.written) != 0 {
		t.Fatalf("timestamp written with nothing due")
	}
}

func TestRunFailureWithholdsTimestamp(t *testing.T) {
	h := newHarness(t)
	h.park("t-work", "work")
	boom := errors.New("network unreachable")
	h.mb.ModifyErr = map[gmail.ThreadID]error{"t-work": boom}

	if _, err := h.svc.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("got %v want %v", err, boom)
	}
	if len(h.state.written) != 0 {
		t.Fatalf("timestamp written after failure: %v", h.state.written)
	}

	h.mb.ModifyErr = nil
	rep, err := h.svc.Run(context.Background())
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if rep.Moved["work"] != 1 || len(h.state.written) != 1 {
		t.Fatalf("rerun got moved %v written %d", rep.Moved, len(h.state.written))
	}
}

func TestRunQueueReadError(t *testing.T) {
	h := newHarness(t)
	h.state.queueErr = errors.New("db locked")
	if _, err := h.svc.Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(h.state.written) != 0 {
		t.Fatalf("timestamp written after failure")
	}
}

func TestRunReleasesEveryDueBucketOnce(t *testing.T) {
	h := newHarness(t)
	h.park("t-work", "work")
	h.park("t-read", "reading")

	if _, err := h.svc.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for id, label := range map[gmail.ThreadID]string{"t-work": "work", "t-read": "reading"} {
		if !h.released(t, id, label) {
			t.Fatalf("%s not released: %v", id, h.mb.Thread(id).LabelIDs())
		}
	}

	// A second run the same day finds nothing due; every due thread already left its queue.
	last := h.state.written[len(h.state.written)-1]
	h.state.last = &last
	h.park("t-late", "work")
	rep, err := h.svc.Run(context.Background())
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if len(rep.Buckets) != 0 || h.released(t, "t-late", "work") {
		t.Fatalf("rerun got buckets %v", rep.Buckets)
	}
}

func TestRunDryRun(t *testing.T) {
	h := newHarness(t)
	h.park("t-work", "work")
	h.svc.DryRun = true

	rep, err := h.svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Moved["work"] != 1 {
		t.Fatalf("moved got %v", rep.Moved)
	}
	if len(h.mb.Modifies) != 0 || len(h.state.written) != 0 {
		t.Fatalf("dry run mutated state: modifies=%d written=%d", len(h.mb.Modifies), len(h.state.written))
	}
}

func TestRunMonthRollover(t *testing.T) {
	h := newHarness(t)
	h.park("t-news", "news")
	last := time.Date(2024, time.February, 27, 9, 0, 0, 0, time.UTC)
	h.state.last = &last

	rep, err := h.svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Buckets[len(rep.Buckets)-1] != queue.Monthly {
		t.Fatalf("buckets got %v want Monthly last", rep.Buckets)
	}
	if !h.released(t, "t-news", "news") {
		t.Fatalf("monthly queue not released")
	}
}

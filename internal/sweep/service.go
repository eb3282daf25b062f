// Package sweep releases queued threads whose bucket has come due.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/joshsymonds/chronotriage/internal/gmail"
	"github.com/joshsymonds/chronotriage/internal/labels"
	"github.com/joshsymonds/chronotriage/internal/queue"
	"github.com/joshsymonds/chronotriage/internal/triage"
)

// State is the persisted scheduler state the sweep reads and advances.
type State interface {
	LastDequeue(ctx context.Context) (*time.Time, error)
	SetLastDequeue(ctx context.Context, t time.Time) error
	Queues(ctx context.Context) (queue.Settings, error)
}

type Service struct {
	Client   gmail.Client
	Registry *labels.Registry
	State    State
	Log      *slog.Logger
	Tracer   trace.Tracer
	Location *time.Location
	PageSize int
	// DryRun reports what would move without modifying threads or the timestamp.
	DryRun bool
	Clock  func() time.Time
}

// Report lists the buckets that came due and how many threads left each queue.
type Report struct {
	Buckets []queue.Bucket
	Moved   map[string]int
}

// Total returns the number of threads released.
func (r Report) Total() int {
	n := 0
	for _, c := range r.Moved {
		n += c
	}
	return n
}

func NewService(client gmail.Client, registry *labels.Registry, state State, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{
		Client:   client,
		Registry: registry,
		State:    state,
		Log:      logger,
		Location: time.Local,
		Clock:    time.Now,
	}
}

func (s *Service) tracer() trace.Tracer {
	if s.Tracer == nil {
		return noop.NewTracerProvider().Tracer("sweep")
	}
	return s.Tracer
}

// Run releases every queue in the buckets due since the last run. Any failure
// aborts the sweep and leaves the last-run timestamp alone, so the next run
// recomputes the same buckets.
func (s *Service) Run(ctx context.Context) (Report, error) {
	now := s.Clock()
	rep := Report{Moved: map[string]int{}}

	last, err := s.State.LastDequeue(ctx)
	if err != nil {
		return rep, fmt.Errorf("read last dequeue: %w", err)
	}
	rep.Buckets = queue.DueBuckets(last, now, s.Location)
	if len(rep.Buckets) == 0 {
		s.Log.Info("no queues due", "last", last)
		return rep, nil
	}

	queues, err := s.State.Queues(ctx)
	if err != nil {
		return rep, fmt.Errorf("read queues: %w", err)
	}
	if err := s.Registry.Fetch(ctx); err != nil {
		return rep, err
	}

	candidates := s.candidates(queues)
	for _, bucket := range rep.Buckets {
		for _, label := range queue.LabelsInBucket(candidates, queues, bucket) {
			n, err := s.release(ctx, label)
			if err != nil {
				return rep, fmt.Errorf("release %s (%s): %w", label, bucket, err)
			}
			if n > 0 {
				rep.Moved[label] = n
			}
		}
		s.Log.Info("bucket released", "bucket", bucket, "moved", rep.Total())
	}

	if s.DryRun {
		s.Log.Info("dry-run", "buckets", rep.Buckets, "moved", rep.Total())
		return rep, nil
	}
	if err := s.State.SetLastDequeue(ctx, now); err != nil {
		return rep, fmt.Errorf("write last dequeue: %w", err)
	}
	s.Log.Info("swept", "buckets", rep.Buckets, "moved", rep.Total())
	return rep, nil
}

// candidates is every label with queue settings or an existing queued label.
func (s *Service) candidates(queues queue.Settings) []string {
	names := s.Registry.Names()
	seen := map[string]struct{}{}
	for l := range queues {
		seen[l] = struct{}{}
	}
	for _, full := range s.Registry.QueuedLabelNames() {
		seen[names.TrimQueued(full)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// release moves every thread parked on queued/<label> to needs-triage/<label> in the inbox.
func (s *Service) release(ctx context.Context, label string) (n int, err error) {
	ctx, span := s.tracer().Start(ctx, "sweep.release", trace.WithAttributes(attribute.String("queue.label", label)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("queue.moved", n))
		span.End()
	}()

	names := s.Registry.Names()
	queuedID, err := s.Registry.GetID(names.Queued(label))
	if errors.Is(err, labels.ErrUnknownLabel) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	ids, err := triage.ListAll(ctx, s.Client, gmail.Query{LabelIDs: []gmail.LabelID{queuedID}}, s.PageSize)
	if err != nil {
		return 0, fmt.Errorf("list queued: %w", err)
	}
	if len(ids) == 0 || s.DryRun {
		return len(ids), nil
	}
	targetID, err := s.Registry.ResolveOrCreate(ctx, names.NeedsTriage(label))
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		th, err := s.Client.GetThread(ctx, id)
		if err != nil {
			return n, fmt.Errorf("get thread %s: %w", id, err)
		}
		isApp := func(l gmail.LabelID) bool {
			name, err := s.Registry.GetName(ctx, l)
			return err == nil && names.IsApp(name)
		}
		ops := triage.Delta(th.LabelIDs(), isApp, []gmail.LabelID{targetID}, triage.InboxAdd)
		if !ops.Empty() {
			if err := s.Client.ModifyThread(ctx, id, ops); err != nil {
				return n, fmt.Errorf("modify thread %s: %w", id, err)
			}
		}
		n++
	}
	s.Log.Info("dequeued", "label", label, "count", n)
	return n, nil
}

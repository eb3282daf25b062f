// Package triage classifies unprocessed threads and moves them into their triage state.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/joshsymonds/chronotriage/internal/filter"
	"github.com/joshsymonds/chronotriage/internal/gmail"
	"github.com/joshsymonds/chronotriage/internal/labels"
	"github.com/joshsymonds/chronotriage/internal/priority"
	"github.com/joshsymonds/chronotriage/internal/queue"
)

// Action is the terminal state a thread was moved into.
type Action string

const (
	ActionMuted       Action = "muted"
	ActionPriority    Action = "priority"
	ActionArchived    Action = "archived"
	ActionNeedsTriage Action = "needs-triage"
	ActionQueued      Action = "queued"
)

// Outcome describes what ProcessThread did to one thread.
type Outcome struct {
	Thread gmail.ThreadID
	Action Action
	// Label is the priority name for ActionPriority and the rule label otherwise.
	Label string
	Ops   gmail.ModifyOps
	// Fresh is false when the thread already carried the label it was given.
	Fresh bool
}

type Processor struct {
	Client   gmail.Client
	Registry *labels.Registry
	Rules    []filter.Rule
	Queues   queue.Settings
	Sink     Sink
	Ranks    []string
	ScanTags bool
	// AutoresponderLabel, when set, replaces rule classification for single
	// message threads marked Auto-Submitted.
	AutoresponderLabel string
	Logger             *slog.Logger
	Tracer             trace.Tracer
	Workers            int
	PageSize           int
	Clock              func() time.Time
}

func (p *Processor) log() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return p.Logger
}

func (p *Processor) tracer() trace.Tracer {
	if p.Tracer == nil {
		return noop.NewTracerProvider().Tracer("triage")
	}
	return p.Tracer
}

func (p *Processor) ranks() []string {
	if len(p.Ranks) == 0 {
		return priority.DefaultRanks
	}
	return p.Ranks
}

type plan struct {
	action Action
	label  string
	target string // full name of the app label the thread should carry
	inbox  InboxOp
}

// ProcessThread runs the triage steps for one thread and applies the resulting label delta.
// A failure leaves the thread's labels untouched.
func (p *Processor) ProcessThread(ctx context.Context, th gmail.Thread) (out Outcome, err error) {
	ctx, span := p.tracer().Start(ctx, "triage.process_thread",
		trace.WithAttributes(attribute.String("thread.id", string(th.ID))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.String("triage.label", out.Label),
				attribute.String("triage.action", string(out.Action)),
			)
		}
		span.End()
	}()

	names := p.Registry.Names()
	current := th.LabelIDs()
	currentNames := p.namesOf(ctx, current)

	pl, err := p.decide(th, currentNames)
	if err != nil {
		return Outcome{}, err
	}
	targetID, err := p.Registry.ResolveOrCreate(ctx, pl.target)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve %s: %w", pl.target, err)
	}
	isApp := func(id gmail.LabelID) bool {
		name, ok := currentNames[id]
		return ok && names.IsApp(name)
	}
	ops := Delta(current, isApp, []gmail.LabelID{targetID}, pl.inbox)
	out = Outcome{Thread: th.ID, Action: pl.action, Label: pl.label, Ops: ops, Fresh: !th.HasLabel(targetID)}
	if !ops.Empty() {
		if err := p.Client.ModifyThread(ctx, th.ID, ops); err != nil {
			return Outcome{}, fmt.Errorf("modify thread %s: %w", th.ID, err)
		}
	}
	if pl.action == ActionPriority && p.Sink != nil {
		if err := p.Sink.Push(ctx, th.ID, pl.label); err != nil {
			return out, fmt.Errorf("push thread %s: %w", th.ID, err)
		}
	}
	p.log().Debug("processed thread", "thread", th.ID, "action", pl.action, "label", pl.label,
		"add", len(ops.AddLabels), "remove", len(ops.RemoveLabels))
	return out, nil
}

func (p *Processor) decide(th gmail.Thread, current map[gmail.LabelID]string) (plan, error) {
	names := p.Registry.Names()
	var prioritized []string
	for _, name := range current {
		switch {
		case name == names.Muted():
			return plan{action: ActionMuted, label: "muted", target: names.Muted(), inbox: InboxRemove}, nil
		case names.IsPriority(name):
			prioritized = append(prioritized, names.TrimPriority(name))
		}
	}

	sort.Strings(prioritized)
	if name, ok := p.explicitPriority(th, prioritized); ok {
		return plan{action: ActionPriority, label: name, target: names.Priority(name), inbox: InboxLeave}, nil
	}

	label := p.classify(th)
	if label == filter.Archive {
		return plan{action: ActionArchived, label: label, target: names.ArchivedByFilter(), inbox: InboxRemove}, nil
	}
	if label == "" {
		return plan{}, errors.New("classification produced an empty label")
	}
	if th.HasLabel(gmail.LabelInbox) || p.Queues.BucketFor(label).Queue == queue.Immediate {
		return plan{action: ActionNeedsTriage, label: label, target: names.NeedsTriage(label), inbox: InboxAdd}, nil
	}
	return plan{action: ActionQueued, label: label, target: names.Queued(label), inbox: InboxRemove}, nil
}

// explicitPriority prefers a priority label already on the thread, then inline tags
// in the newest message that has one.
func (p *Processor) explicitPriority(th gmail.Thread, existing []string) (string, bool) {
	if name, ok := priority.Highest(existing, p.ranks()); ok {
		return name, true
	}
	if !p.ScanTags {
		return "", false
	}
	return priority.FromThread(th, p.ranks())
}

func (p *Processor) classify(th gmail.Thread) string {
	if p.AutoresponderLabel != "" && len(th.Messages) == 1 {
		v := strings.ToLower(strings.TrimSpace(th.Messages[0].Header("Auto-Submitted")))
		if v != "" && v != "no" {
			return strings.ToLower(p.AutoresponderLabel)
		}
	}
	return filter.Classify(filter.Materialize(th), p.Rules)
}

// namesOf maps the thread's label ids to names. Ids the registry cannot resolve
// are logged and left out, so they are never removed.
func (p *Processor) namesOf(ctx context.Context, ids []gmail.LabelID) map[gmail.LabelID]string {
	out := make(map[gmail.LabelID]string, len(ids))
	for _, id := range ids {
		name, err := p.Registry.GetName(ctx, id)
		if err != nil {
			p.log().Warn("label not found", "id", id, "error", err)
			continue
		}
		out[id] = name
	}
	return out
}

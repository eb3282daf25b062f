package triage

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/joshsymonds/chronotriage/internal/filter"
	"github.com/joshsymonds/chronotriage/internal/gmail"
	"github.com/joshsymonds/chronotriage/internal/gmail/gmailtest"
	"github.com/joshsymonds/chronotriage/internal/labels"
	"github.com/joshsymonds/chronotriage/internal/queue"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

type fixture struct {
	mb   *gmailtest.Mailbox
	proc *Processor
	ids  map[string]gmail.LabelID
}

func newFixture(t *testing.T, rules ...filter.Rule) *fixture {
	t.Helper()
	mb := gmailtest.NewMailbox()
	ids := map[string]gmail.LabelID{}
	for _, name := range []string{
		"mt/unprocessed", "mt/muted", "mt/priority/urgent",
		"mt/needs-triage/work", "mt/queued/work", "mt/queued/news", "personal",
	} {
		ids[name] = mb.AddLabel(name)
	}
	reg := labels.NewRegistry(mb, labels.NewNames("mt"), slogDiscard())
	if err := reg.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	compiled, _ := filter.Compile(rules)
	return &fixture{
		mb:  mb,
		ids: ids,
		proc: &Processor{
			Client:   mb,
			Registry: reg,
			Rules:    compiled,
			Queues: queue.Settings{
				"work":  {Queue: queue.Daily, Goal: queue.InboxZero},
				"news":  {Queue: queue.Monthly, Goal: queue.BestEffort},
				"pager": {Queue: queue.Immediate, Goal: queue.InboxZero},
			},
			Logger: slogDiscard(),
		},
	}
}

func (f *fixture) thread(id gmail.ThreadID, from string, labelIDs ...gmail.LabelID) gmail.Thread {
	th := gmail.Thread{ID: id, Messages: []gmail.Message{{
		ID:       gmail.MessageID(id + "-1"),
		LabelIDs: labelIDs,
		Headers:  map[string]string{"From": from, "To": "me@home.org", "Subject": "hello"},
		Plain:    "body",
	}}}
	f.mb.AddThread(th)
	return f.mb.Thread(id)
}

func (f *fixture) label(t *testing.T, name string) gmail.LabelID {
	t.Helper()
	id, ok := f.mb.LabelByName(name)
	if !ok {
		t.Fatalf("label %s not created", name)
	}
	return id
}

func hasID(ids []gmail.LabelID, want gmail.LabelID) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

func sameSet(a, b []gmail.LabelID) bool {
	if len(a) != len(b) {
		return false
	}
	for _, id := range a {
		if !hasID(b, id) {
			return false
		}
	}
	return true
}

var (
	workRule    = filter.Rule{Label: "work", From: filter.Fragments{"corp.com"}}
	pagerRule   = filter.Rule{Label: "pager", From: filter.Fragments{"alerts@pager.io"}}
	newsRule    = filter.Rule{Label: "news", Subject: "digest"}
	archiveRule = filter.Rule{Label: filter.Archive, From: filter.Fragments{"spam@ads.biz"}}
)

func TestProcessThreadMuted(t *testing.T) {
	f := newFixture(t, workRule)
	th := f.thread("t1", "boss@corp.com",
		gmail.LabelInbox, f.ids["mt/unprocessed"], f.ids["mt/muted"], f.ids["mt/needs-triage/work"], f.ids["personal"])

	out, err := f.proc.ProcessThread(context.Background(), th)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Action != ActionMuted {
		t.Fatalf("action got %s want %s", out.Action, ActionMuted)
	}
	want := []gmail.LabelID{gmail.LabelInbox, f.ids["mt/unprocessed"], f.ids["mt/needs-triage/work"]}
	if !sameSet(out.Ops.RemoveLabels, want) || len(out.Ops.AddLabels) != 0 {
		t.Fatalf("ops got %+v want remove %v", out.Ops, want)
	}
	got := f.mb.Thread("t1").LabelIDs()
	if !sameSet(got, []gmail.LabelID{f.ids["mt/muted"], f.ids["personal"]}) {
		t.Fatalf("labels after got %v", got)
	}
}

func TestProcessThreadExistingPriority(t *testing.T) {
	f := newFixture(t, workRule)
	sink := make(ChanSink, 1)
	f.proc.Sink = sink
	th := f.thread("t1", "boss@corp.com", gmail.LabelInbox, f.ids["mt/unprocessed"], f.ids["mt/priority/urgent"])

	out, err := f.proc.ProcessThread(context.Background(), th)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Action != ActionPriority || out.Label != "urgent" {
		t.Fatalf("outcome got %+v", out)
	}
	if !sameSet(out.Ops.RemoveLabels, []gmail.LabelID{f.ids["mt/unprocessed"]}) || len(out.Ops.AddLabels) != 0 {
		t.Fatalf("ops got %+v", out.Ops)
	}
	push := <-sink
	if push.Thread != "t1" || push.Priority != "urgent" {
		t.Fatalf("push got %+v", push)
	}
}

func TestProcessThreadScansTags(t *testing.T) {
	f := newFixture(t, workRule)
	f.proc.ScanTags = true
	f.proc.Sink = LogSink{Logger: slogDiscard()}
	f.mb.AddThread(gmail.Thread{ID: "t1", Messages: []gmail.Message{
		{ID: "m1", LabelIDs: []gmail.LabelID{f.ids["mt/unprocessed"]}, Headers: map[string]string{"From": "a@corp.com"}, Plain: "##backlog first"},
		{ID: "m2", LabelIDs: []gmail.LabelID{f.ids["mt/unprocessed"]}, Headers: map[string]string{"From": "b@corp.com"}, Plain: "reply ##must-do then ##urgent"},
	}})

	out, err := f.proc.ProcessThread(context.Background(), f.mb.Thread("t1"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Label != "must-do" {
		t.Fatalf("label got %q want must-do", out.Label)
	}
	mustDo := f.label(t, "mt/priority/must-do")
	if !f.mb.Thread("t1").HasLabel(mustDo) {
		t.Fatalf("priority label not applied")
	}
}

func TestProcessThreadPlacement(t *testing.T) {
	tests := []struct {
		name      string
		from      string
		subject   string
		inInbox   bool
		action    Action
		target    string
		wantInbox bool
	}{
		{name: "in inbox goes to needs-triage", from: "boss@corp.com", inInbox: true, action: ActionNeedsTriage, target: "mt/needs-triage/work", wantInbox: true},
		{name: "daily outside inbox is queued", from: "boss@corp.com", action: ActionQueued, target: "mt/queued/work"},
		{name: "immediate outside inbox returns", from: "alerts@pager.io", action: ActionNeedsTriage, target: "mt/needs-triage/pager", wantInbox: true},
		{name: "monthly queued", from: "x@y.com", subject: "Weekly Digest", action: ActionQueued, target: "mt/queued/news"},
		{name: "archive rule", from: "spam@ads.biz", inInbox: true, action: ActionArchived, target: "mt/archived-by-filter"},
		{name: "fallback unconfigured label is immediate", from: "stranger@else.org", action: ActionNeedsTriage, target: "mt/needs-triage/needs-filter", wantInbox: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, archiveRule, workRule, pagerRule, newsRule)
			current := []gmail.LabelID{f.ids["mt/unprocessed"], f.ids["personal"]}
			if tt.inInbox {
				current = append(current, gmail.LabelInbox)
			}
			f.mb.AddThread(gmail.Thread{ID: "t1", Messages: []gmail.Message{{
				ID: "m1", LabelIDs: current,
				Headers: map[string]string{"From": tt.from, "Subject": tt.subject},
			}}})

			out, err := f.proc.ProcessThread(context.Background(), f.mb.Thread("t1"))
			if err != nil {
				t.Fatalf("process: %v", err)
			}
			if out.Action != tt.action {
				t.Fatalf("action got %s want %s", out.Action, tt.action)
			}
			th := f.mb.Thread("t1")
			if !th.HasLabel(f.label(t, tt.target)) {
				t.Fatalf("target %s missing, labels %v", tt.target, th.LabelIDs())
			}
			if th.HasLabel(f.ids["mt/unprocessed"]) {
				t.Fatalf("unprocessed label kept")
			}
			if !th.HasLabel(f.ids["personal"]) {
				t.Fatalf("user label removed")
			}
			if got := th.HasLabel(gmail.LabelInbox); got != tt.wantInbox {
				t.Fatalf("inbox got %v want %v", got, tt.wantInbox)
			}
		})
	}
}

func TestProcessThreadAutoresponder(t *testing.T) {
	f := newFixture(t, workRule)
	f.proc.AutoresponderLabel = "Autoreply"
	f.proc.Queues["autoreply"] = queue.Data{Queue: queue.Daily}
	f.mb.AddThread(gmail.Thread{ID: "t1", Messages: []gmail.Message{{
		ID: "m1", LabelIDs: []gmail.LabelID{f.ids["mt/unprocessed"]},
		Headers: map[string]string{"From": "boss@corp.com", "Auto-Submitted": "auto-replied"},
	}}})

	out, err := f.proc.ProcessThread(context.Background(), f.mb.Thread("t1"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Label != "autoreply" || out.Action != ActionQueued {
		t.Fatalf("outcome got %+v", out)
	}
}

func TestProcessThreadKeepsUnknownLabels(t *testing.T) {
	f := newFixture(t, workRule)
	th := f.thread("t1", "boss@corp.com", gmail.LabelInbox, f.ids["mt/unprocessed"], "Label_ghost")

	out, err := f.proc.ProcessThread(context.Background(), th)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if hasID(out.Ops.RemoveLabels, "Label_ghost") {
		t.Fatalf("unknown label removed: %+v", out.Ops)
	}
}

func TestProcessThreadModifyFailureLeavesLabels(t *testing.T) {
	f := newFixture(t, workRule)
	boom := errors.New("backend down")
	f.mb.ModifyErr = map[gmail.ThreadID]error{"t1": boom}
	th := f.thread("t1", "boss@corp.com", gmail.LabelInbox, f.ids["mt/unprocessed"])

	if _, err := f.proc.ProcessThread(context.Background(), th); !errors.Is(err, boom) {
		t.Fatalf("got %v want %v", err, boom)
	}
	if !f.mb.Thread("t1").HasLabel(f.ids["mt/unprocessed"]) {
		t.Fatalf("labels changed after failure")
	}
}

func TestDelta(t *testing.T) {
	app := map[gmail.LabelID]bool{"A": true, "B": true, "C": true}
	isApp := func(id gmail.LabelID) bool { return app[id] }
	tests := []struct {
		name    string
		current []gmail.LabelID
		desired []gmail.LabelID
		inbox   InboxOp
		add     []gmail.LabelID
		remove  []gmail.LabelID
	}{
		{name: "swap app label", current: []gmail.LabelID{"A", "USER"}, desired: []gmail.LabelID{"B"}, add: []gmail.LabelID{"B"}, remove: []gmail.LabelID{"A"}},
		{name: "already there", current: []gmail.LabelID{"B", "INBOX"}, desired: []gmail.LabelID{"B"}, inbox: InboxAdd},
		{name: "add inbox", current: []gmail.LabelID{"A"}, desired: []gmail.LabelID{"A"}, inbox: InboxAdd, add: []gmail.LabelID{"INBOX"}},
		{name: "remove inbox only if present", current: []gmail.LabelID{"A"}, desired: []gmail.LabelID{"C"}, inbox: InboxRemove, add: []gmail.LabelID{"C"}, remove: []gmail.LabelID{"A"}},
		{name: "leave inbox", current: []gmail.LabelID{"INBOX", "A", "C"}, desired: []gmail.LabelID{"C"}, remove: []gmail.LabelID{"A"}},
		{name: "duplicate desired", current: nil, desired: []gmail.LabelID{"B", "B"}, add: []gmail.LabelID{"B"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := Delta(tt.current, isApp, tt.desired, tt.inbox)
			if !sameSet(ops.AddLabels, tt.add) || !sameSet(ops.RemoveLabels, tt.remove) {
				t.Fatalf("got %+v want add %v remove %v", ops, tt.add, tt.remove)
			}
			for _, id := range ops.RemoveLabels {
				if hasID(ops.AddLabels, id) {
					t.Fatalf("%s in both sets", id)
				}
				if !hasID(tt.current, id) {
					t.Fatalf("removing %s which the thread does not carry", id)
				}
			}
		})
	}
}

func TestProcessMail(t *testing.T) {
	f := newFixture(t, workRule, newsRule)
	f.thread("t1", "boss@corp.com", gmail.LabelInbox, f.ids["mt/unprocessed"])
	f.thread("t2", "peer@corp.com", f.ids["mt/unprocessed"], f.ids["mt/queued/work"])
	f.thread("t3", "boss@corp.com", gmail.LabelInbox, f.ids["mt/unprocessed"])
	f.thread("t4", "boss@corp.com")
	f.mb.GetErr = map[gmail.ThreadID]error{"t3": errors.New("flaky")}

	stats, err := f.proc.ProcessMail(context.Background())
	if err != nil {
		t.Fatalf("process mail: %v", err)
	}
	if _, err := uuid.Parse(stats.RunID); err != nil {
		t.Fatalf("run id %q: %v", stats.RunID, err)
	}
	if stats.Processed != 2 || stats.Failed != 1 {
		t.Fatalf("stats got processed=%d failed=%d want 2/1", stats.Processed, stats.Failed)
	}
	// t2 already carried queued/work, so only t1 counts as newly labeled.
	if stats.PerLabel["work"] != 1 {
		t.Fatalf("per label got %v", stats.PerLabel)
	}
	if len(f.mb.Thread("t4").LabelIDs()) != 0 {
		t.Fatalf("thread without unprocessed label was touched")
	}
}

func TestProcessMailListError(t *testing.T) {
	f := newFixture(t)
	f.mb.ListErr = errors.New("offline")
	if _, err := f.proc.ProcessMail(context.Background()); err == nil {
		t.Fatalf("expected list error")
	}
}

func TestProcessThreadSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	f := newFixture(t, workRule)
	f.proc.Tracer = tp.Tracer("test")
	th := f.thread("t1", "boss@corp.com", f.ids["mt/unprocessed"])

	if _, err := f.proc.ProcessThread(context.Background(), th); err != nil {
		t.Fatalf("process: %v", err)
	}
	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "triage.process_thread" {
		t.Fatalf("spans got %d", len(spans))
	}
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["thread.id"] != "t1" || attrs["triage.label"] != "work" || attrs["triage.action"] != string(ActionQueued) {
		t.Fatalf("attributes got %v", attrs)
	}
}

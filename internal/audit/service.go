// Package audit replays triage rules over recent mail and reports how they perform.
package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/joshsymonds/chronotriage/internal/filter"
	"github.com/joshsymonds/chronotriage/internal/gmail"
	"github.com/joshsymonds/chronotriage/internal/gmailctl"
	"github.com/joshsymonds/chronotriage/internal/settings"
	"github.com/joshsymonds/chronotriage/internal/triage"
)

const previewSubjectDisplayLimit = 60

// Options controls the behavior of the audit analyzer.
type Options struct {
	Window   time.Duration
	TopN     int
	PageSize int
}

// RuleSource supplies the rules to replay.
type RuleSource interface {
	Filters(ctx context.Context) ([]filter.Rule, error)
}

// GmailctlLoader loads compiled gmailctl filters.
type GmailctlLoader interface {
	ExportFilters(ctx context.Context) (gmailctl.Export, error)
}

// GmailctlRules replays gmailctl filters as triage rules.
type GmailctlRules struct{ Loader GmailctlLoader }

func (g GmailctlRules) Filters(ctx context.Context) ([]filter.Rule, error) {
	export, err := g.Loader.ExportFilters(ctx)
	if err != nil {
		return nil, fmt.Errorf("load gmailctl filters: %w", err)
	}
	rules, _ := gmailctl.Convert(export)
	return rules, nil
}

// Service executes audit analyses against recent threads.
type Service struct {
	Client gmail.Client
	Rules  RuleSource
	Logger *slog.Logger
	Clock  func() time.Time
}

func NewService(client gmail.Client, rules RuleSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{Client: client, Rules: rules, Logger: logger, Clock: time.Now}
}

// Report summarizes how the rules classified recent mail.
type Report struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Window      time.Duration  `json:"window"`
	Total       int            `json:"total"`
	Fallback    int            `json:"fallback"`
	Coverage    map[string]int `json:"coverage"`
	RuleHits    []RuleHit      `json:"rule_hits"`
	TopSenders  []SenderStat   `json:"top_senders"`
	TopLists    []ListStat     `json:"top_lists"`
	Suggestions Suggestions    `json:"suggestions"`
	Findings    Findings       `json:"findings"`
}

// RuleHit counts the threads a compiled rule claimed.
type RuleHit struct {
	Rule  int    `json:"rule"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// SenderStat ranks sender domains among threads no rule claimed.
type SenderStat struct {
	Domain         string `json:"domain"`
	Count          int    `json:"count"`
	PreviewSubject string `json:"preview_subject"`
}

// ListStat ranks List-Id sources among threads no rule claimed.
type ListStat struct {
	ListID         string `json:"list_id"`
	Count          int    `json:"count"`
	PreviewSubject string `json:"preview_subject"`
}

// Suggestions proposes rules for the noisiest unfiltered sources.
type Suggestions struct {
	Rules []filter.Rule `json:"rules"`
}

// Findings feeds chronotriage-audit -lint.
type Findings struct {
	DeadRules []RuleFinding `json:"dead_rules"`
	Invalid   []RuleFinding `json:"invalid"`
	Shadowed  []RuleFinding `json:"shadowed"`
}

// RuleFinding identifies a problematic rule.
type RuleFinding struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Run produces a full audit report.
func (s *Service) Run(ctx context.Context, opts Options) (Report, error) {
	if opts.Window <= 0 {
		return Report{}, fmt.Errorf("window must be positive")
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = 20
	}
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 500
	}
	s.Logger.InfoContext(ctx, "running audit", slog.Duration("window", opts.Window))

	raw, err := s.Rules.Filters(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load rules: %w", err)
	}
	rules, compileFindings := filter.Compile(raw)

	query := gmail.Query{Raw: fmt.Sprintf("newer_than:%dd", daysFromDuration(opts.Window))}
	ids, err := triage.ListAll(ctx, s.Client, query, pageSize)
	if err != nil {
		return Report{}, fmt.Errorf("list threads: %w", err)
	}

	rep := Report{
		GeneratedAt: s.Clock(),
		Window:      opts.Window,
		Coverage:    map[string]int{},
	}
	hits := make([]int, len(rules))
	senders := map[string]*SenderStat{}
	lists := map[string]*ListStat{}
	for _, id := range ids {
		th, err := s.Client.GetThread(ctx, id)
		if err != nil {
			return Report{}, fmt.Errorf("get thread %s: %w", id, err)
		}
		if len(th.Messages) == 0 {
			continue
		}
		rep.Total++
		msgs := filter.Materialize(th)
		if i, ok := filter.Match(msgs, rules); ok {
			hits[i]++
			rep.Coverage[rules[i].Label]++
			continue
		}
		rep.Fallback++
		rep.Coverage[filter.Fallback]++
		tally(th.Messages[0], senders, lists)
	}

	for i, r := range rules {
		rep.RuleHits = append(rep.RuleHits, RuleHit{Rule: r.Position + 1, Label: r.Label, Count: hits[i]})
		if hits[i] == 0 {
			rep.Findings.DeadRules = append(rep.Findings.DeadRules,
				RuleFinding{Name: ruleName(r.Position, r.Label), Reason: "no threads matched in lookback"})
		}
	}
	for _, f := range compileFindings {
		rf := RuleFinding{Name: ruleName(f.Index, f.Label), Reason: f.Reason}
		if strings.HasPrefix(f.Reason, "shadowed") {
			rep.Findings.Shadowed = append(rep.Findings.Shadowed, rf)
		} else {
			rep.Findings.Invalid = append(rep.Findings.Invalid, rf)
		}
	}
	rep.TopSenders = rankSenders(senders, topN)
	rep.TopLists = rankLists(lists, topN)
	rep.Suggestions.Rules = suggestRules(rep.TopLists, rep.TopSenders)
	return rep, nil
}

func tally(m gmail.Message, senders map[string]*SenderStat, lists map[string]*ListStat) {
	subject := m.Header("Subject")
	if domain := filter.DomainOf(m.Header("From")); domain != "" {
		st := senders[domain]
		if st == nil {
			st = &SenderStat{Domain: domain, PreviewSubject: subject}
			senders[domain] = st
		}
		st.Count++
	}
	if lid := filter.NormalizeListID(m.Header("List-Id")); lid != "" {
		ls := lists[lid]
		if ls == nil {
			ls = &ListStat{ListID: lid, PreviewSubject: subject}
			lists[lid] = ls
		}
		ls.Count++
	}
}

func ruleName(index int, label string) string {
	return fmt.Sprintf("rule %d (%s)", index+1, label)
}

// PrintHuman writes a readable report to the provided writer.
func PrintHuman(rep Report, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "chronotriage audit: window %s (%d threads, %d unfiltered)\n",
		rep.Window, rep.Total, rep.Fallback)
	if len(rep.RuleHits) > 0 {
		builder.WriteString("\nRule hits:\n")
		for _, h := range rep.RuleHits {
			fmt.Fprintf(&builder, "  %3d %-30s %4d\n", h.Rule, h.Label, h.Count)
		}
	}
	if len(rep.TopSenders) > 0 {
		builder.WriteString("\nTop unfiltered senders:\n")
		for _, s := range rep.TopSenders {
			fmt.Fprintf(&builder, "  %-30s %4d %s\n",
				s.Domain, s.Count, truncate(s.PreviewSubject, previewSubjectDisplayLimit))
		}
	}
	if len(rep.TopLists) > 0 {
		builder.WriteString("\nTop unfiltered lists:\n")
		for _, l := range rep.TopLists {
			fmt.Fprintf(&builder, "  %-30s %4d %s\n",
				l.ListID, l.Count, truncate(l.PreviewSubject, previewSubjectDisplayLimit))
		}
	}
	if len(rep.Suggestions.Rules) > 0 {
		builder.WriteString("\nSuggested rules:\n")
		if err := settings.EncodeDocument(&builder, settings.Document{Filters: rep.Suggestions.Rules}); err != nil {
			return fmt.Errorf("encode suggestions: %w", err)
		}
	}
	if rep.Findings.Any() {
		builder.WriteString("\nLint findings:\n")
		for _, fr := range rep.Findings.DeadRules {
			fmt.Fprintf(&builder, "  dead: %s: %s\n", fr.Name, fr.Reason)
		}
		for _, fr := range rep.Findings.Invalid {
			fmt.Fprintf(&builder, "  invalid: %s: %s\n", fr.Name, fr.Reason)
		}
		for _, fr := range rep.Findings.Shadowed {
			fmt.Fprintf(&builder, "  shadowed: %s: %s\n", fr.Name, fr.Reason)
		}
	}
	if _, err := io.WriteString(w, builder.String()); err != nil {
		return fmt.Errorf("write human report: %w", err)
	}
	return nil
}

// Any reports whether there is at least one finding.
func (f Findings) Any() bool {
	return len(f.DeadRules) > 0 || len(f.Invalid) > 0 || len(f.Shadowed) > 0
}

// WriteJSON serializes the report to a path relative to the working directory.
func WriteJSON(rep Report, path string) error {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return fmt.Errorf("path must not be empty")
	}
	clean = filepath.Clean(clean)
	if filepath.IsAbs(clean) {
		return fmt.Errorf("output path must be relative, got %s", clean)
	}
	if strings.HasPrefix(clean, "..") {
		return fmt.Errorf("output path %s escapes working directory", clean)
	}
	f, err := os.OpenFile(clean, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("create %s: %w", clean, err)
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func rankSenders(m map[string]*SenderStat, topN int) []SenderStat {
	slice := make([]SenderStat, 0, len(m))
	for _, st := range m {
		slice = append(slice, *st)
	}
	sort.Slice(slice, func(i, j int) bool {
		if slice[i].Count == slice[j].Count {
			return slice[i].Domain < slice[j].Domain
		}
		return slice[i].Count > slice[j].Count
	})
	if topN < len(slice) {
		slice = slice[:topN]
	}
	return slice
}

func rankLists(m map[string]*ListStat, topN int) []ListStat {
	slice := make([]ListStat, 0, len(m))
	for _, st := range m {
		slice = append(slice, *st)
	}
	sort.Slice(slice, func(i, j int) bool {
		if slice[i].Count == slice[j].Count {
			return slice[i].ListID < slice[j].ListID
		}
		return slice[i].Count > slice[j].Count
	})
	if topN < len(slice) {
		slice = slice[:topN]
	}
	return slice
}

// suggestRules proposes one rule per noisy list, then per sender domain, named
// after the first label of the source.
func suggestRules(lists []ListStat, senders []SenderStat) []filter.Rule {
	const maxRules = 10
	var out []filter.Rule
	for _, ls := range lists {
		if len(out) >= maxRules {
			return out
		}
		out = append(out, filter.Rule{
			Label:  firstPart(ls.ListID),
			Header: []filter.HeaderMatch{{Name: "list-id", Value: ls.ListID}},
		})
	}
	for _, sd := range senders {
		if len(out) >= maxRules {
			break
		}
		out = append(out, filter.Rule{Label: firstPart(sd.Domain), From: filter.Fragments{sd.Domain}})
	}
	return out
}

func firstPart(s string) string {
	if i := strings.IndexByte(s, '.'); i > 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func daysFromDuration(window time.Duration) int {
	const day = 24 * time.Hour
	if window <= 0 {
		return 1
	}
	days := int(window / day)
	if window%day != 0 {
		days++
	}
	if days <= 0 {
		days = 1
	}
	return days
}

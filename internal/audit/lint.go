package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// LintReport captures rule findings for CI enforcement.
type LintReport struct {
	Window   time.Duration
	Total    int
	Findings Findings
}

// RunLint reuses the regular audit analysis but returns a lean report.
func (s *Service) RunLint(ctx context.Context, opts Options) (LintReport, error) {
	rep, err := s.Run(ctx, opts)
	if err != nil {
		return LintReport{}, err
	}
	return LintReport{Window: opts.Window, Total: rep.Total, Findings: rep.Findings}, nil
}

// ShouldFail reports whether any of the requested conditions are present.
func (lr LintReport) ShouldFail(failOn []string) bool {
	flags := map[string]bool{
		"dead":     len(lr.Findings.DeadRules) > 0,
		"invalid":  len(lr.Findings.Invalid) > 0,
		"shadowed": len(lr.Findings.Shadowed) > 0,
	}
	for _, cond := range failOn {
		cond = strings.TrimSpace(strings.ToLower(cond))
		if cond == "" {
			continue
		}
		if flags[cond] {
			return true
		}
	}
	return false
}

// HumanSummary renders a concise CLI summary.
func (lr LintReport) HumanSummary() string {
	builder := &strings.Builder{}
	fmt.Fprintf(builder, "chronotriage lint: window %s (%d threads checked)\n", lr.Window, lr.Total)
	if !lr.Findings.Any() {
		builder.WriteString("no findings\n")
		return builder.String()
	}
	section := func(title string, list []RuleFinding) {
		if len(list) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		sorted := append([]RuleFinding(nil), list...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
		for _, fr := range sorted {
			fmt.Fprintf(builder, "  %s: %s\n", fr.Name, fr.Reason)
		}
	}
	section("dead rules", lr.Findings.DeadRules)
	section("invalid rules", lr.Findings.Invalid)
	section("shadowed rules", lr.Findings.Shadowed)
	return builder.String()
}

// ParseFailOn splits a comma separated list into canonical tokens.
func ParseFailOn(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

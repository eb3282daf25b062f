package gmailctl

import (
	"fmt"
	"strings"

	"github.com/joshsymonds/chronotriage/internal/filter"
)

const inboxLabel = "INBOX"

// Skipped explains why a gmailctl filter produced no rule.
type Skipped struct {
	Filter string
	Reason string
}

// Convert maps gmailctl filters onto triage rules, in export order. Filters that
// only archive become archive rules; filters that only use raw queries or do not
// label anything are skipped.
func Convert(export Export) ([]filter.Rule, []Skipped) {
	names := make(map[string]string, len(export.Labels))
	for _, l := range export.Labels {
		names[l.ID] = l.Name
	}
	var (
		rules   []filter.Rule
		skipped []Skipped
	)
	for i, f := range export.Filters {
		id := f.ID
		if id == "" {
			id = fmt.Sprintf("#%d", i+1)
		}
		label := targetLabel(f.Action, names)
		if label == "" {
			skipped = append(skipped, Skipped{Filter: id, Reason: "no label or archive action"})
			continue
		}
		rule := filter.Rule{
			Label:   label,
			From:    splitTerms(f.Criteria.From),
			To:      splitTerms(f.Criteria.To),
			Subject: unquote(f.Criteria.Subject),
		}
		if list := unquote(f.Criteria.List); list != "" {
			rule.Header = append(rule.Header, filter.HeaderMatch{Name: "list-id", Value: list})
		}
		if !rule.HasDirectives() {
			reason := "no supported criteria"
			if f.Criteria.Query != "" {
				reason = "raw query not supported: " + f.Criteria.Query
			}
			skipped = append(skipped, Skipped{Filter: id, Reason: reason})
			continue
		}
		rules = append(rules, rule)
	}
	return rules, skipped
}

func targetLabel(a FilterAction, names map[string]string) string {
	for _, id := range a.AddLabelIDs {
		if isSystem(id) {
			continue
		}
		if name, ok := names[id]; ok {
			return strings.ToLower(name)
		}
		return strings.ToLower(id)
	}
	for _, id := range a.RemoveLabelIDs {
		if id == inboxLabel {
			return filter.Archive
		}
	}
	return ""
}

func isSystem(id string) bool {
	return id == strings.ToUpper(id) && !strings.HasPrefix(id, "Label_")
}

// splitTerms turns `{a@b.com c@d.com}` or `a@b.com OR c@d.com` into fragments.
func splitTerms(raw string) filter.Fragments {
	raw = strings.NewReplacer("{", " ", "}", " ", "(", " ", ")", " ", ",", " ").Replace(raw)
	var out filter.Fragments
	for _, term := range strings.Fields(raw) {
		if term == "OR" || term == "|" {
			continue
		}
		if t := unquote(term); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}

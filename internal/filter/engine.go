package filter

import (
	"fmt"
	"strings"
)

// Classify returns the label of the first rule that matches, or Fallback.
func Classify(msgs []Message, rules []Rule) string {
	if i, ok := Match(msgs, rules); ok {
		return rules[i].Label
	}
	return Fallback
}

// Match returns the slice index of the first matching rule. For compiled rules
// the stored position is rules[i].Position.
func Match(msgs []Message, rules []Rule) (int, bool) {
	for i, rule := range rules {
		if rule.matchesThread(msgs) {
			return i, true
		}
	}
	return -1, false
}

func (r Rule) matchesThread(msgs []Message) bool {
	if !r.HasDirectives() || len(msgs) == 0 {
		return false
	}
	if r.MatchAllMessages {
		for _, m := range msgs {
			if !r.matches(m) {
				return false
			}
		}
		return true
	}
	for _, m := range msgs {
		if r.matches(m) {
			return true
		}
	}
	return false
}

func (r Rule) matches(m Message) bool {
	if len(r.From) > 0 && !anyAddress(r.From, m.From) {
		return false
	}
	if len(r.To) > 0 && !anyAddress(r.To, m.Recipients) {
		return false
	}
	for _, h := range r.Header {
		if !strings.Contains(m.Headers[h.Name], h.Value) {
			return false
		}
	}
	if r.Subject != "" && !strings.Contains(m.Subject, r.Subject) {
		return false
	}
	if r.PlainText != "" && !strings.Contains(m.Plain, r.PlainText) {
		return false
	}
	if r.HTMLContent != "" && !strings.Contains(m.Body, r.HTMLContent) {
		return false
	}
	if r.NoListID && m.ListID != "" {
		return false
	}
	if r.NoCC && len(m.Recipients) != 1 {
		return false
	}
	return true
}

func anyAddress(fragments, addresses []string) bool {
	for _, addr := range addresses {
		if MatchesAddress(fragments, addr) {
			return true
		}
	}
	return false
}

// Finding describes a rule that was rejected or can never fire.
type Finding struct {
	Index  int    `json:"index" yaml:"index"`
	Label  string `json:"label" yaml:"label"`
	Reason string `json:"reason" yaml:"reason"`
}

// Compile normalises rules for matching. Invalid rules are dropped and reported;
// malformed header entries are dropped from otherwise valid rules.
func Compile(rules []Rule) ([]Rule, []Finding) {
	out := make([]Rule, 0, len(rules))
	var findings []Finding
	seen := make(map[string]int, len(rules))
	for i, raw := range rules {
		rule, dropped := raw.Normalize()
		rule.Position = i
		for _, bad := range dropped {
			findings = append(findings, Finding{
				Index:  i,
				Label:  rule.Label,
				Reason: fmt.Sprintf("malformed header filter %q (want name:value)", bad),
			})
		}
		if err := rule.Validate(); err != nil {
			findings = append(findings, Finding{Index: i, Label: rule.Label, Reason: err.Error()})
			continue
		}
		key := directiveKey(rule)
		if first, dup := seen[key]; dup {
			findings = append(findings, Finding{
				Index:  i,
				Label:  rule.Label,
				Reason: fmt.Sprintf("shadowed by rule %d", first),
			})
		} else {
			seen[key] = i
		}
		out = append(out, rule)
	}
	return out, findings
}

// Lint reports problems without returning the compiled rules.
func Lint(rules []Rule) []Finding {
	_, findings := Compile(rules)
	return findings
}

func directiveKey(r Rule) string {
	r.Label, r.Position = "", 0
	return fmt.Sprintf("%#v", r)
}

// Package filter classifies threads with an ordered, first-match-wins rule list.
package filter

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

const (
	// Fallback is returned when no rule matches.
	Fallback = "needs-filter"
	// Archive is the destination that archives a thread instead of queueing it.
	Archive = "archive"
)

// ErrInvalidRule marks a rule that can never match.
var ErrInvalidRule = errors.New("invalid rule")

// HeaderMatch is a case-insensitive substring test against one raw header.
type HeaderMatch struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// UnmarshalYAML also accepts the legacy "name:value" scalar form. A scalar
// without a separator decodes to a match with an empty name, which Compile drops.
func (h *HeaderMatch) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*h = ParseHeaderMatch(node.Value)
		return nil
	}
	type plain HeaderMatch
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*h = HeaderMatch(p)
	return nil
}

// ParseHeaderMatch splits "name:value" on the first colon.
func ParseHeaderMatch(raw string) HeaderMatch {
	name, value, ok := strings.Cut(raw, ":")
	if !ok {
		return HeaderMatch{Value: raw}
	}
	return HeaderMatch{Name: name, Value: value}
}

// Fragments is a list of address fragments. YAML accepts a sequence or a comma-separated string.
type Fragments []string

func (f *Fragments) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*f = splitFragments(node.Value)
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*f = list
	return nil
}

// Rule routes matching threads to Label. Every set directive must hold for a message to match.
type Rule struct {
	Label            string        `yaml:"label" json:"label"`
	From             Fragments     `yaml:"from,omitempty" json:"from,omitempty"`
	To               Fragments     `yaml:"to,omitempty" json:"to,omitempty"`
	Header           []HeaderMatch `yaml:"header,omitempty" json:"header,omitempty"`
	Subject          string        `yaml:"subject,omitempty" json:"subject,omitempty"`
	PlainText        string        `yaml:"plaintext,omitempty" json:"plaintext,omitempty"`
	HTMLContent      string        `yaml:"htmlcontent,omitempty" json:"htmlcontent,omitempty"`
	NoListID         bool          `yaml:"nolistid,omitempty" json:"nolistid,omitempty"`
	NoCC             bool          `yaml:"nocc,omitempty" json:"nocc,omitempty"`
	MatchAllMessages bool          `yaml:"matchallmessages,omitempty" json:"matchallmessages,omitempty"`

	// Position is the rule's index in the list given to Compile.
	Position int `yaml:"-" json:"-"`
}

// HasDirectives reports whether the rule constrains anything.
func (r Rule) HasDirectives() bool {
	return len(r.From) > 0 || len(r.To) > 0 || len(r.Header) > 0 ||
		r.Subject != "" || r.PlainText != "" || r.HTMLContent != "" ||
		r.NoListID || r.NoCC
}

// Validate reports why a normalised rule can never be persisted or matched.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Label) == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidRule)
	}
	if !r.HasDirectives() {
		return fmt.Errorf("%w: no directives", ErrInvalidRule)
	}
	return nil
}

// Normalize folds case and trims every value so matching is plain substring work.
// It returns the names of malformed header entries that were dropped.
func (r Rule) Normalize() (Rule, []string) {
	out := Rule{
		Label:            strings.ToLower(strings.TrimSpace(r.Label)),
		From:             foldFragments(r.From),
		To:               foldFragments(r.To),
		Subject:          fold(r.Subject),
		PlainText:        fold(r.PlainText),
		HTMLContent:      fold(r.HTMLContent),
		NoListID:         r.NoListID,
		NoCC:             r.NoCC,
		MatchAllMessages: r.MatchAllMessages,
	}
	var dropped []string
	for _, h := range r.Header {
		name := strings.ToLower(strings.TrimSpace(h.Name))
		if name == "" {
			dropped = append(dropped, h.Value)
			continue
		}
		out.Header = append(out.Header, HeaderMatch{Name: name, Value: fold(h.Value)})
	}
	return out, dropped
}

func fold(s string) string {
	return strings.TrimSpace(cases.Fold().String(s))
}

func foldFragments(in []string) Fragments {
	var out Fragments
	for _, raw := range in {
		for _, frag := range splitFragments(raw) {
			out = append(out, fold(frag))
		}
	}
	return out
}

func splitFragments(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package priority

import (
	"testing"

	"github.com/joshsymonds/chronotriage/internal/gmail"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		ranks  []string
		want   string
		wantOK bool
	}{
		{name: "none", text: "nothing to see", ranks: DefaultRanks},
		{name: "end of text", text: "please ##urgent", ranks: DefaultRanks, want: "urgent", wantOK: true},
		{name: "followed by newline", text: "##backlog\nlater", ranks: DefaultRanks, want: "backlog", wantOK: true},
		{name: "earliest offset beats rank", text: "##backlog stuff ##urgent", ranks: []string{"urgent", "backlog"}, want: "backlog", wantOK: true},
		{name: "suffix does not count", text: "##urgentlyneeded", ranks: DefaultRanks},
		{name: "later valid occurrence", text: "##urgently then ##urgent now", ranks: DefaultRanks, want: "urgent", wantOK: true},
		{name: "tie goes to first rank", text: "##a b", ranks: []string{"a", "a"}, want: "a", wantOK: true},
		{name: "empty ranks", text: "##urgent", ranks: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.text, tt.ranks)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("Extract(%q) got %q,%v want %q,%v", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestHighest(t *testing.T) {
	got, ok := Highest([]string{"backlog", "urgent", "custom"}, DefaultRanks)
	if !ok || got != "urgent" {
		t.Fatalf("got %q,%v want urgent", got, ok)
	}
	if _, ok := Highest(nil, DefaultRanks); ok {
		t.Fatalf("expected no priority for empty input")
	}
	if got := Rank("custom", DefaultRanks); got != len(DefaultRanks) {
		t.Fatalf("unknown rank got %d", got)
	}
}

func TestFromThreadNewestFirst(t *testing.T) {
	th := gmail.Thread{Messages: []gmail.Message{
		{Headers: map[string]string{"Subject": "##must-do old"}},
		{Headers: map[string]string{"Subject": "re: plan"}, Plain: "moving this to ##backlog"},
		{Headers: map[string]string{"Subject": "re: plan"}, Plain: "no tag"},
	}}
	got, ok := FromThread(th, DefaultRanks)
	if !ok || got != "backlog" {
		t.Fatalf("got %q,%v want backlog", got, ok)
	}
	if _, ok := FromThread(gmail.Thread{}, DefaultRanks); ok {
		t.Fatalf("empty thread reported a tag")
	}
}

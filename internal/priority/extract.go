// Package priority finds inline ##priority tags in message text.
package priority

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/joshsymonds/chronotriage/internal/gmail"
)

const tagPrefix = "##"

// DefaultRanks lists priorities most urgent first.
var DefaultRanks = []string{"must-do", "urgent", "backlog", "delegate"}

// Extract returns the priority whose tag occurs earliest in text. A tag only
// counts when followed by whitespace or the end of the text. At equal offsets
// the earlier entry in ranks wins.
func Extract(text string, ranks []string) (string, bool) {
	best, bestAt := "", -1
	for _, name := range ranks {
		at := findTag(text, tagPrefix+name)
		if at < 0 {
			continue
		}
		if bestAt < 0 || at < bestAt {
			best, bestAt = name, at
		}
	}
	return best, bestAt >= 0
}

func findTag(text, tag string) int {
	offset := 0
	for {
		i := strings.Index(text[offset:], tag)
		if i < 0 {
			return -1
		}
		at := offset + i
		end := at + len(tag)
		if end == len(text) {
			return at
		}
		if r, _ := utf8.DecodeRuneInString(text[end:]); unicode.IsSpace(r) {
			return at
		}
		offset = at + 1
	}
}

// Rank returns the position of name in ranks, or len(ranks) when absent.
func Rank(name string, ranks []string) int {
	for i, r := range ranks {
		if r == name {
			return i
		}
	}
	return len(ranks)
}

// Highest returns the most urgent of names according to ranks.
func Highest(names []string, ranks []string) (string, bool) {
	best, bestRank := "", -1
	for _, n := range names {
		r := Rank(n, ranks)
		if bestRank < 0 || r < bestRank {
			best, bestRank = n, r
		}
	}
	return best, bestRank >= 0
}

// FromThread scans messages newest first and returns the first tag found in a
// message's subject or plain body.
func FromThread(th gmail.Thread, ranks []string) (string, bool) {
	for i := len(th.Messages) - 1; i >= 0; i-- {
		m := th.Messages[i]
		if name, ok := Extract(m.Header("Subject")+"\n"+m.Plain, ranks); ok {
			return name, true
		}
	}
	return "", false
}

package filter

import (
	"strings"

	"github.com/joshsymonds/chronotriage/internal/gmail"
)

// Message is the folded, fully materialised form of a message that rules run against.
type Message struct {
	From       []string
	Recipients []string // To, Cc and Bcc combined
	Subject    string
	Plain      string
	Body       string // HTML when present, otherwise plain text
	Headers    map[string]string
	ListID     string
}

// Materialize folds every message of a thread once, ahead of rule evaluation.
func Materialize(t gmail.Thread) []Message {
	out := make([]Message, 0, len(t.Messages))
	for _, m := range t.Messages {
		out = append(out, NewMessage(m))
	}
	return out
}

// NewMessage folds a single provider message.
func NewMessage(m gmail.Message) Message {
	headers := make(map[string]string, len(m.Headers))
	for name, value := range m.Headers {
		headers[strings.ToLower(name)] = fold(value)
	}
	var recipients []string
	for _, h := range []string{"To", "Cc", "Bcc"} {
		recipients = append(recipients, ParseAddresses(m.Header(h))...)
	}
	body := m.HTML
	if strings.TrimSpace(body) == "" {
		body = m.Plain
	}
	return Message{
		From:       ParseAddresses(m.Header("From")),
		Recipients: recipients,
		Subject:    fold(m.Header("Subject")),
		Plain:      fold(m.Plain),
		Body:       fold(body),
		Headers:    headers,
		ListID:     NormalizeListID(m.Header("List-Id")),
	}
}

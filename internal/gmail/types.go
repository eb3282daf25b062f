package gmail

import (
	"net/textproto"
	"time"
)

type (
	ThreadID  string
	MessageID string
	LabelID   string
)

// System label ids.
const (
	LabelInbox  LabelID = "INBOX"
	LabelUnread LabelID = "UNREAD"
)

type Label struct {
	ID     LabelID
	Name   string
	System bool
}

// LabelSpec is the mutable part of a label resource.
type LabelSpec struct {
	Name string
	// HideInMessageList keeps the label off message rows while still listing it in the sidebar.
	HideInMessageList bool
}

type Message struct {
	ID       MessageID
	ThreadID ThreadID
	LabelIDs []LabelID
	Headers  map[string]string // canonical MIME keys: From, To, Cc, Bcc, Subject, List-Id, ...
	Plain    string
	HTML     string
	Date     time.Time
}

// Header returns the value of the named header regardless of its case.
func (m Message) Header(name string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[textproto.CanonicalMIMEHeaderKey(name)]
}

type Thread struct {
	ID       ThreadID
	Messages []Message
}

// LabelIDs returns the union of the labels on every message, in first-seen order.
func (t Thread) LabelIDs() []LabelID {
	seen := make(map[LabelID]struct{})
	var out []LabelID
	for _, m := range t.Messages {
		for _, id := range m.LabelIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// HasLabel reports whether any message in the thread carries id.
func (t Thread) HasLabel(id LabelID) bool {
	for _, m := range t.Messages {
		for _, l := range m.LabelIDs {
			if l == id {
				return true
			}
		}
	}
	return false
}

type ModifyOps struct {
	AddLabels    []LabelID
	RemoveLabels []LabelID
}

// Empty reports whether the modification would be a no-op.
func (o ModifyOps) Empty() bool {
	return len(o.AddLabels) == 0 && len(o.RemoveLabels) == 0
}

type Query struct {
	Raw      string    // Gmail search string, e.g. `newer_than:30d`
	LabelIDs []LabelID // restricts results to threads carrying all of these labels
}

type ThreadPage struct {
	IDs           []ThreadID
	NextPageToken string
}

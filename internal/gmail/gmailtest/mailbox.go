// Package gmailtest provides an in-memory gmail.Client for tests.
package gmailtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/joshsymonds/chronotriage/internal/gmail"
)

// ModifyCall records one ModifyThread invocation.
type ModifyCall struct {
	Thread gmail.ThreadID
	Ops    gmail.ModifyOps
}

// Mailbox is a goroutine-safe fake mailbox. Error maps inject failures per id or name.
type Mailbox struct {
	mu      sync.Mutex
	labels  map[gmail.LabelID]gmail.Label
	hidden  map[gmail.LabelID]bool
	threads map[gmail.ThreadID]gmail.Thread
	nextID  int

	ListErr      error
	ListLabelErr error
	GetErr       map[gmail.ThreadID]error
	ModifyErr    map[gmail.ThreadID]error
	CreateErr    map[string]error
	UpdateErr    map[gmail.LabelID]error
	DeleteErr    map[gmail.LabelID]error

	Modifies    []ModifyCall
	Created     []string
	LabelLists  int
	ThreadLists []gmail.Query
}

// NewMailbox returns a mailbox seeded with the INBOX and UNREAD system labels.
func NewMailbox() *Mailbox {
	m := &Mailbox{
		labels:  make(map[gmail.LabelID]gmail.Label),
		hidden:  make(map[gmail.LabelID]bool),
		threads: make(map[gmail.ThreadID]gmail.Thread),
	}
	for _, id := range []gmail.LabelID{gmail.LabelInbox, gmail.LabelUnread, "STARRED", "SPAM"} {
		m.labels[id] = gmail.Label{ID: id, Name: string(id), System: true}
	}
	return m
}

// AddLabel seeds a user label and returns its id.
func (m *Mailbox) AddLabel(name string) gmail.LabelID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLabelLocked(name)
}

func (m *Mailbox) addLabelLocked(name string) gmail.LabelID {
	m.nextID++
	id := gmail.LabelID(fmt.Sprintf("Label_%d", m.nextID))
	m.labels[id] = gmail.Label{ID: id, Name: name}
	return id
}

// AddThread seeds a thread.
func (m *Mailbox) AddThread(t gmail.Thread) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range t.Messages {
		t.Messages[i].ThreadID = t.ID
	}
	m.threads[t.ID] = t
}

// Thread returns a copy of the stored thread.
func (m *Mailbox) Thread(id gmail.ThreadID) gmail.Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneThread(m.threads[id])
}

// LabelByName returns the id of the named label, if any.
func (m *Mailbox) LabelByName(name string) (gmail.LabelID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, l := range m.labels {
		if l.Name == name {
			return id, true
		}
	}
	return "", false
}

// Hidden reports whether the label was created hidden from the message list.
func (m *Mailbox) Hidden(id gmail.LabelID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hidden[id]
}

func (m *Mailbox) ListThreads(
	ctx context.Context,
	q gmail.Query,
	pageToken string,
	pageSize int,
) (gmail.ThreadPage, error) {
	_ = ctx
	_ = pageToken
	_ = pageSize
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ThreadLists = append(m.ThreadLists, q)
	if m.ListErr != nil {
		return gmail.ThreadPage{}, m.ListErr
	}
	var ids []gmail.ThreadID
	for id, t := range m.threads {
		if hasAll(t, q.LabelIDs) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return gmail.ThreadPage{IDs: ids}, nil
}

func (m *Mailbox) GetThread(ctx context.Context, id gmail.ThreadID) (gmail.Thread, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.GetErr[id]; err != nil {
		return gmail.Thread{}, err
	}
	t, ok := m.threads[id]
	if !ok {
		return gmail.Thread{}, fmt.Errorf("thread %s: %w", id, gmail.ErrNotFound)
	}
	return cloneThread(t), nil
}

func (m *Mailbox) ModifyThread(ctx context.Context, id gmail.ThreadID, ops gmail.ModifyOps) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ModifyErr[id]; err != nil {
		return err
	}
	t, ok := m.threads[id]
	if !ok {
		return fmt.Errorf("thread %s: %w", id, gmail.ErrNotFound)
	}
	m.Modifies = append(m.Modifies, ModifyCall{Thread: id, Ops: ops})
	remove := make(map[gmail.LabelID]struct{}, len(ops.RemoveLabels))
	for _, l := range ops.RemoveLabels {
		remove[l] = struct{}{}
	}
	for i, msg := range t.Messages {
		kept := make([]gmail.LabelID, 0, len(msg.LabelIDs)+len(ops.AddLabels))
		for _, l := range msg.LabelIDs {
			if _, drop := remove[l]; !drop {
				kept = append(kept, l)
			}
		}
		for _, l := range ops.AddLabels {
			if !contains(kept, l) {
				kept = append(kept, l)
			}
		}
		t.Messages[i].LabelIDs = kept
	}
	m.threads[id] = t
	return nil
}

func (m *Mailbox) ListLabels(ctx context.Context) ([]gmail.Label, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LabelLists++
	if m.ListLabelErr != nil {
		return nil, m.ListLabelErr
	}
	out := make([]gmail.Label, 0, len(m.labels))
	for _, l := range m.labels {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Mailbox) CreateLabel(ctx context.Context, spec gmail.LabelSpec) (gmail.Label, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.CreateErr[spec.Name]; err != nil {
		return gmail.Label{}, err
	}
	for _, l := range m.labels {
		if l.Name == spec.Name {
			return gmail.Label{}, fmt.Errorf("create %q: %w", spec.Name, gmail.ErrLabelExists)
		}
	}
	id := m.addLabelLocked(spec.Name)
	m.hidden[id] = spec.HideInMessageList
	m.Created = append(m.Created, spec.Name)
	return m.labels[id], nil
}

func (m *Mailbox) UpdateLabel(ctx context.Context, id gmail.LabelID, spec gmail.LabelSpec) (gmail.Label, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.UpdateErr[id]; err != nil {
		return gmail.Label{}, err
	}
	l, ok := m.labels[id]
	if !ok {
		return gmail.Label{}, fmt.Errorf("label %s: %w", id, gmail.ErrNotFound)
	}
	l.Name = spec.Name
	m.labels[id] = l
	return l, nil
}

func (m *Mailbox) DeleteLabel(ctx context.Context, id gmail.LabelID) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.DeleteErr[id]; err != nil {
		return err
	}
	if _, ok := m.labels[id]; !ok {
		return fmt.Errorf("label %s: %w", id, gmail.ErrNotFound)
	}
	delete(m.labels, id)
	for tid, t := range m.threads {
		for i, msg := range t.Messages {
			kept := msg.LabelIDs[:0:0]
			for _, l := range msg.LabelIDs {
				if l != id {
					kept = append(kept, l)
				}
			}
			t.Messages[i].LabelIDs = kept
		}
		m.threads[tid] = t
	}
	return nil
}

func hasAll(t gmail.Thread, ids []gmail.LabelID) bool {
	for _, id := range ids {
		if !t.HasLabel(id) {
			return false
		}
	}
	return true
}

func contains(ids []gmail.LabelID, id gmail.LabelID) bool {
	for _, l := range ids {
		if l == id {
			return true
		}
	}
	return false
}

func cloneThread(t gmail.Thread) gmail.Thread {
	out := gmail.Thread{ID: t.ID, Messages: make([]gmail.Message, len(t.Messages))}
	for i, m := range t.Messages {
		m.LabelIDs = append([]gmail.LabelID(nil), m.LabelIDs...)
		out.Messages[i] = m
	}
	return out
}

var _ gmail.Client = (*Mailbox)(nil)

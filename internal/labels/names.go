package labels

import "strings"

const (
	DefaultRoot = "mt"

	// InboxQueue is the queue reported for a thread with no needs-triage label.
	InboxQueue = "inbox"

	priorityPart = "priority"
	triagePart   = "needs-triage"
	queuedPart   = "queued"
)

// Names centralises the slash-delimited naming convention under a single prefix.
type Names struct {
	Prefix string
}

// NewNames returns the convention rooted at prefix (DefaultRoot when empty).
func NewNames(prefix string) Names {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultRoot
	}
	return Names{Prefix: prefix}
}

func (n Names) Root() string             { return n.Prefix }
func (n Names) Unprocessed() string      { return n.AddPrefix("unprocessed") }
func (n Names) Muted() string            { return n.AddPrefix("muted") }
func (n Names) ArchivedByFilter() string { return n.AddPrefix("archived-by-filter") }

func (n Names) Priority(name string) string     { return n.AddPrefix(priorityPart + "/" + name) }
func (n Names) NeedsTriage(label string) string { return n.AddPrefix(triagePart + "/" + label) }
func (n Names) Queued(label string) string      { return n.AddPrefix(queuedPart + "/" + label) }

// AddPrefix places name under the application namespace.
func (n Names) AddPrefix(name string) string { return n.Prefix + "/" + name }

// RemovePrefix strips the application namespace, returning name unchanged if it is foreign.
func (n Names) RemovePrefix(name string) string {
	return strings.TrimPrefix(name, n.Prefix+"/")
}

// IsApp reports whether name is the root or lives under it.
func (n Names) IsApp(name string) bool {
	return name == n.Prefix || strings.HasPrefix(name, n.Prefix+"/")
}

func (n Names) IsPriority(name string) bool    { return n.hasSection(name, priorityPart) }
func (n Names) IsNeedsTriage(name string) bool { return n.hasSection(name, triagePart) }
func (n Names) IsQueued(name string) bool      { return n.hasSection(name, queuedPart) }

func (n Names) TrimPriority(name string) string    { return n.trimSection(name, priorityPart) }
func (n Names) TrimNeedsTriage(name string) string { return n.trimSection(name, triagePart) }
func (n Names) TrimQueued(name string) string      { return n.trimSection(name, queuedPart) }

// HiddenInMessageList reports whether name should be created hidden on message rows.
func (n Names) HiddenInMessageList(name string) bool {
	return name == n.Unprocessed() || name == n.ArchivedByFilter() || n.IsQueued(name)
}

func (n Names) hasSection(name, section string) bool {
	p := n.Prefix + "/" + section + "/"
	return strings.HasPrefix(name, p) && len(name) > len(p)
}

func (n Names) trimSection(name, section string) string {
	return strings.TrimPrefix(name, n.Prefix+"/"+section+"/")
}

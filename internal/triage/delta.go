package triage

import "github.com/joshsymonds/chronotriage/internal/gmail"

// InboxOp says what a mutation does to the INBOX label.
type InboxOp int

const (
	InboxLeave InboxOp = iota
	InboxAdd
	InboxRemove
)

// Delta computes the modify request that leaves a thread carrying exactly the
// desired app labels. Labels for which isApp is false are never touched, apart
// from INBOX as directed by inbox. Removals only name ids present in current
// and additions only name ids absent from it, so the two sets never overlap.
func Delta(current []gmail.LabelID, isApp func(gmail.LabelID) bool, desired []gmail.LabelID, inbox InboxOp) gmail.ModifyOps {
	have := make(map[gmail.LabelID]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	wanted := append([]gmail.LabelID(nil), desired...)
	if inbox == InboxAdd {
		wanted = append(wanted, gmail.LabelInbox)
	}
	want := make(map[gmail.LabelID]struct{}, len(wanted))
	var ops gmail.ModifyOps
	for _, id := range wanted {
		if _, dup := want[id]; dup {
			continue
		}
		want[id] = struct{}{}
		if _, ok := have[id]; !ok {
			ops.AddLabels = append(ops.AddLabels, id)
		}
	}
	for _, id := range current {
		if _, keep := want[id]; keep {
			continue
		}
		if id == gmail.LabelInbox {
			if inbox == InboxRemove {
				ops.RemoveLabels = append(ops.RemoveLabels, id)
			}
			continue
		}
		if isApp(id) {
			ops.RemoveLabels = append(ops.RemoveLabels, id)
		}
	}
	return ops
}

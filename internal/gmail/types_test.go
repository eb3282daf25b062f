package gmail

import "testing"

func TestThreadLabelIDsUnion(t *testing.T) {
	th := Thread{
		ID: "t1",
		Messages: []Message{
			{ID: "m1", LabelIDs: []LabelID{"INBOX", "Label_1"}},
			{ID: "m2", LabelIDs: []LabelID{"Label_1", "Label_2"}},
		},
	}
	got := th.LabelIDs()
	want := []LabelID{"INBOX", "Label_1", "Label_2"}
	if len(got) != len(want) {
		t.Fatalf("label count mismatch: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("label %d mismatch: got %s want %s", i, got[i], want[i])
		}
	}
	if !th.HasLabel("Label_2") {
		t.Fatalf("expected Label_2 to be present")
	}
	if th.HasLabel("Label_3") {
		t.Fatalf("did not expect Label_3")
	}
}

func TestMessageHeaderCaseInsensitive(t *testing.T) {
	m := Message{Headers: map[string]string{"List-Id": "<dev.example.com>"}}
	if got := m.Header("list-id"); got != "<dev.example.com>" {
		t.Fatalf("header lookup: got %q", got)
	}
	if got := (Message{}).Header("From"); got != "" {
		t.Fatalf("nil headers should yield empty, got %q", got)
	}
}

package inbound

import (
	"testing"

	"github.com/memohai/chatrelay/internal/dialogue"
)

func TestParseDedupPolicy(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]DedupPolicy{
		"":           DedupBoth,
		"last_text":  DedupLastText,
		"RECENT_IDS": DedupRecentIDs,
		" both ":     DedupBoth,
	} {
		got, err := ParseDedupPolicy(raw)
		if err != nil || got != want {
			t.Fatalf("ParseDedupPolicy(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseDedupPolicy("never"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestRecentIDsWindow(t *testing.T) {
	t.Parallel()

	d := dialogue.Dialogue{Messages: []dialogue.Message{
		{Role: dialogue.RoleUser, Text: "a", MessageID: "m1"},
		{Role: dialogue.RoleAssistant, Text: "r", ReplyTo: "m1"},
		{Role: dialogue.RoleUser, Text: "b", MessageID: "m2"},
		{Role: dialogue.RoleAssistant, Text: "r", ReplyTo: "m2"},
	}}
	if !DedupRecentIDs.IsDuplicate(d, "m1", 4) {
		t.Fatalf("expected m1 inside window")
	}
	if DedupRecentIDs.IsDuplicate(d, "m1", 2) {
		t.Fatalf("expected m1 outside window")
	}
	if DedupRecentIDs.IsDuplicate(d, "m3", 4) {
		t.Fatalf("unexpected duplicate")
	}
	if DedupLastText.IsDuplicate(d, "m2", 4) {
		t.Fatalf("last_text must not match ids")
	}
	if DedupBoth.IsDuplicate(d, "", 4) {
		t.Fatalf("empty id is never a duplicate")
	}
}

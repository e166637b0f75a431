package keystate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestUpdateState(t *testing.T) {
	tr := NewTracker()
	tr.UpdateState("CTRL", true)
	tr.UpdateState("a", true)

	if !tr.IsPressed("ctrl") {
		t.Error("Expected ctrl to be pressed")
	}
	if !tr.IsPressed("A") {
		t.Error("Expected lookup to be case insensitive")
	}

	tr.UpdateState("a", false)
	if tr.IsPressed("a") {
		t.Error("Expected a to be released")
	}
	if diff := cmp.Diff([]string{"ctrl"}, tr.Pressed()); diff != "" {
		t.Errorf("Unexpected pressed set (-want +got):\n%s", diff)
	}
}

func TestHeldModifiers(t *testing.T) {
	tr := NewTracker()
	for _, k := range []string{"shift", "x", "ctrl", "mouse:left", "alt"} {
		tr.UpdateState(k, true)
	}
	if diff := cmp.Diff([]string{"alt", "ctrl", "shift"}, tr.HeldModifiers()); diff != "" {
		t.Errorf("Unexpected modifiers (-want +got):\n%s", diff)
	}
}

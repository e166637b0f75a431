package tray

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestProfileTitles(t *testing.T) {
	titles := profileTitles([]string{"Desk", "Racing"})
	if diff := cmp.Diff([]string{NoneTitle, "Desk", "Racing"}, titles); diff != "" {
		t.Errorf("titles mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		active string
		want   int
	}{
		{"Racing", 2},
		{"Desk", 1},
		{"none", 0},
		{"", 0},
		{"Gone", 0},
	}
	for _, tt := range tests {
		if got := checkedIndex(titles, tt.active); got != tt.want {
			t.Errorf("checkedIndex(%q): Expected %d, got %d", tt.active, tt.want, got)
		}
	}
}

func TestIconHeader(t *testing.T) {
	icon := getIcon()
	if len(icon) != 1118 {
		t.Fatalf("Expected 1118 bytes, got %d", len(icon))
	}
	if icon[2] != 0x01 || icon[6] != 0x10 {
		t.Errorf("Expected ICO header for a 16x16 icon")
	}
}

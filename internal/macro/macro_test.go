package macro

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"buttonbox/internal/input"
)

func TestModeJSON(t *testing.T) {
	tests := []struct {
		mode Mode
		json string
	}{
		{Times(3), `3`},
		{Times(0), `0`},
		{UntilReleased(), `"until_released"`},
		{UntilPressedAgain(), `"until_pressed_again"`},
	}
	for _, tt := range tests {
		data, _ := json.Marshal(tt.mode)
		if string(data) != tt.json {
			t.Errorf("Expected %s, got %s", tt.json, data)
		}
		var back Mode
		if err := json.Unmarshal([]byte(tt.json), &back); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", tt.json, err)
		}
		if back != tt.mode {
			t.Errorf("Expected %+v, got %+v", tt.mode, back)
		}
	}

	var m Mode
	if err := json.Unmarshal([]byte(`"forever"`), &m); !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid for unknown mode, got %v", err)
	}
}

func TestMacroJSON(t *testing.T) {
	doc := `{"name":"Spam","mode":"until_released","actions":[` +
		`{"type":"press_key","value":"Ctrl+A"},` +
		`{"type":"delay","value":50},` +
		`{"type":"release_key","value":"Ctrl+A"},` +
		`{"type":"left_mouse_button","value":null},` +
		`{"type":"right_mouse_button","value":"down"}]}`

	var m Macro
	if err := json.Unmarshal([]byte(doc), &m); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	want := Macro{
		Name: "Spam",
		Mode: UntilReleased(),
		Actions: []Step{
			PressKey("Ctrl+A"),
			Delay(50 * time.Millisecond),
			ReleaseKey("Ctrl+A"),
			MouseStep(input.MouseLeft, MouseClick),
			MouseStep(input.MouseRight, MouseDown),
		},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("Unexpected macro (-want +got):\n%s", diff)
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != doc {
		t.Errorf("Expected stored form to be preserved\nwant %s\n got %s", doc, data)
	}
}

func TestStepRejectsBadPresets(t *testing.T) {
	bad := []string{
		`{"type":"delay","value":"soon"}`,
		`{"type":"press_key","value":12}`,
		`{"type":"left_mouse_button","value":3}`,
		`{"type":"scroll","value":1}`,
	}
	for _, doc := range bad {
		var s Step
		if err := json.Unmarshal([]byte(doc), &s); !errors.Is(err, ErrInvalid) {
			t.Errorf("Unmarshal(%s): expected ErrInvalid, got %v", doc, err)
		}
	}
}

func TestValidate(t *testing.T) {
	ok := Macro{Name: "ok", Mode: Times(1), Actions: []Step{PressKey("a"), ReleaseKey("a")}}
	if err := ok.Validate(); err != nil {
		t.Errorf("Expected valid macro, got %v", err)
	}

	bad := []Macro{
		{Name: "", Mode: Times(1)},
		{Name: "neg", Mode: Times(-1)},
		{Name: "nokeys", Mode: Times(1), Actions: []Step{PressKey("")}},
		{Name: "badkeys", Mode: Times(1), Actions: []Step{PressKey("Ctrl+Nope")}},
		{Name: "delay", Mode: Times(1), Actions: []Step{Delay(-time.Second)}},
		{Name: "mouse", Mode: Times(1), Actions: []Step{{Type: StepLeftMouse, Mouse: "twice"}}},
	}
	for _, m := range bad {
		if err := m.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("Validate(%q): expected ErrInvalid, got %v", m.Name, err)
		}
	}
}

package game

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type recorder struct {
	mu       sync.Mutex
	commands []string
	presses  []string
	macros   []string
}

func (r *recorder) Enqueue(cmd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	return nil
}

func (r *recorder) Press(combo string, pressed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := "up"
	if pressed {
		state = "down"
	}
	r.presses = append(r.presses, combo+" "+state)
	return nil
}

func (r *recorder) Trigger(name string, pressed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.macros = append(r.macros, name)
	return nil
}

type shortcutMap map[string]map[string]string

func (s shortcutMap) Shortcut(game, action string) string {
	return s[game][action]
}

func newEnv(rec *recorder, shortcuts shortcutMap) Env {
	return Env{LEDs: rec, Keys: rec, Shortcuts: shortcuts, Macros: rec}
}

func TestUniqueID(t *testing.T) {
	taken := map[string]bool{}
	has := func(id string) bool { return taken[id] }

	first := UniqueID("Volume Up!", has)
	if first != "_volume_up" {
		t.Errorf("Expected _volume_up, got %s", first)
	}
	taken[first] = true

	second := UniqueID("  volume up ", has)
	if second != "_volume_up_1" {
		t.Errorf("Expected _volume_up_1, got %s", second)
	}
	taken[second] = true

	if third := UniqueID("VOLUME UP", has); third != "_volume_up_2" {
		t.Errorf("Expected _volume_up_2, got %s", third)
	}
	if got := UniqueID("Überholen 2", nil); got != "_berholen_2" {
		t.Errorf("Expected _berholen_2, got %s", got)
	}
}

func TestRegistryLookupAndTrigger(t *testing.T) {
	rec := &recorder{}
	r := NewRegistry()
	if _, err := RegisterBuiltins(r, newEnv(rec, shortcutMap{})); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}

	if _, err := r.Lookup("nope"); !errors.Is(err, ErrUnknownGame) {
		t.Errorf("Expected ErrUnknownGame, got %v", err)
	}

	err := r.Trigger(DefaultID, "nope", true)
	var actionErr *ActionError
	if !errors.As(err, &actionErr) || !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Expected unknown action error, got %v", err)
	}

	if err := r.Trigger(DefaultID, "volume_up", true); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if diff := cmp.Diff([]string{"volumeup down"}, rec.presses); diff != "" {
		t.Errorf("presses mismatch (-want +got):\n%s", diff)
	}

	if err := r.Register(DefaultID, NewDefault(Env{})); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
}

func TestRegistryListHidesTest(t *testing.T) {
	r := NewRegistry()
	if _, err := RegisterBuiltins(r, newEnv(&recorder{}, shortcutMap{})); err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, info := range r.List(false) {
		ids = append(ids, info.ID)
	}
	if diff := cmp.Diff([]string{BeamNGID, CustomID, DefaultID}, ids); diff != "" {
		t.Errorf("visible games mismatch (-want +got):\n%s", diff)
	}
	if n := len(r.List(true)); n != 4 {
		t.Errorf("Expected 4 games, got %d", n)
	}
}

func TestBeamNGShortcuts(t *testing.T) {
	rec := &recorder{}
	fg := "C:\\Games\\BeamNG.drive.x64.exe"
	env := newEnv(rec, shortcutMap{BeamNGID: {"horn": "h"}})
	env.Foreground = func() (string, error) { return fg, nil }
	g := NewBeamNG(env)

	if !g.Detect() {
		t.Error("Expected BeamNG to be detected")
	}
	fg = "explorer.exe"
	if g.Detect() {
		t.Error("Expected BeamNG not to be detected")
	}

	if err := g.Trigger("horn", true); err != nil {
		t.Fatal(err)
	}
	if err := g.Trigger("lights", true); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Expected ErrUnknownAction, got %v", err)
	}
	if err := g.Trigger("camera", true); !errors.Is(err, ErrNoShortcut) {
		t.Errorf("Expected ErrNoShortcut, got %v", err)
	}
	if diff := cmp.Diff([]string{"h down"}, rec.presses); diff != "" {
		t.Errorf("presses mismatch (-want +got):\n%s", diff)
	}
	if len(g.ShortcutActions()) != len(beamngActions) {
		t.Errorf("Expected %d shortcut actions, got %d", len(beamngActions), len(g.ShortcutActions()))
	}
}

func TestCustomResolvesShortcutOrMacro(t *testing.T) {
	rec := &recorder{}
	c := NewCustom(newEnv(rec, shortcutMap{CustomID: {
		"_copy":  "ctrl+c",
		"_spam":  "macro:spam",
		"_empty": "",
	}}))
	c.SetActions(map[string]string{"_copy": "Copy", "_spam": "Spam", "_empty": "Empty"})

	if err := c.Trigger("_copy", true); err != nil {
		t.Fatal(err)
	}
	if err := c.Trigger("_spam", true); err != nil {
		t.Fatal(err)
	}
	if err := c.Trigger("_empty", true); !errors.Is(err, ErrNoShortcut) {
		t.Errorf("Expected ErrNoShortcut, got %v", err)
	}
	if err := c.Trigger("_gone", true); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Expected ErrUnknownAction, got %v", err)
	}

	if diff := cmp.Diff([]string{"ctrl+c down"}, rec.presses); diff != "" {
		t.Errorf("presses mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"spam"}, rec.macros); diff != "" {
		t.Errorf("macros mismatch (-want +got):\n%s", diff)
	}
	want := []Action{{ID: "_copy", Label: "Copy"}, {ID: "_empty", Label: "Empty"}, {ID: "_spam", Label: "Spam"}}
	if diff := cmp.Diff(want, c.Actions()); diff != "" {
		t.Errorf("actions mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultLEDsThrottled(t *testing.T) {
	rec := &recorder{}
	now := time.Unix(1000, 0)
	env := newEnv(rec, nil)
	env.Now = func() time.Time { return now }
	d := NewDefault(env)

	d.ManageLEDs()
	d.ManageLEDs()
	if len(rec.commands) != 4 {
		t.Fatalf("Expected 4 commands, got %v", rec.commands)
	}
	now = now.Add(time.Second)
	d.ManageLEDs()
	if len(rec.commands) != 8 {
		t.Errorf("Expected 8 commands, got %d", len(rec.commands))
	}
	if rec.commands[0] != "LED LOW LEFT" {
		t.Errorf("Expected LED LOW LEFT, got %s", rec.commands[0])
	}
}

func TestTestGameMirrorsChanges(t *testing.T) {
	rec := &recorder{}
	g := NewTest(newEnv(rec, nil))

	for _, pressed := range []bool{true, true, false, false, true} {
		if err := g.Trigger("led_middle", pressed); err != nil {
			t.Fatal(err)
		}
	}
	want := []string{"LED HIGH MIDDLE", "LED LOW MIDDLE", "LED HIGH MIDDLE"}
	if diff := cmp.Diff(want, rec.commands); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	if !g.Hidden() {
		t.Error("Expected test game to be hidden")
	}
}

package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"buttonbox/internal/game"
	"buttonbox/internal/input"
	"buttonbox/internal/profile"
	"buttonbox/internal/protocol"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs []string
}

func (r *fakeRunner) Start(cmd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, cmd)
	return nil
}

type fakeDevice struct {
	mu        sync.Mutex
	events    chan protocol.Message
	commands  []string
	discarded int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{events: make(chan protocol.Message, 16)}
}

func (d *fakeDevice) Events() <-chan protocol.Message { return d.events }

func (d *fakeDevice) Enqueue(cmd string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = append(d.commands, cmd)
	return nil
}

func (d *fakeDevice) DiscardPending() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = nil
	d.discarded++
}

func (d *fakeDevice) sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

type fakeKeys struct {
	taps []string
}

func (k *fakeKeys) TapKey(key input.Key) error {
	k.taps = append(k.taps, key.Name)
	return nil
}

func (k *fakeKeys) Press(combo string, pressed bool) error { return nil }

type noShortcuts struct{}

func (noShortcuts) Shortcut(game, action string) string { return "" }

type stubGame struct {
	*game.Base
	detected bool
}

func (g *stubGame) Detect() bool { return g.detected }

type fixture struct {
	disp   *Dispatcher
	device *fakeDevice
	runner *fakeRunner
	keys   *fakeKeys
	reg    *game.Registry
	auto   bool
	mcLogs []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{device: newFakeDevice(), runner: &fakeRunner{}, keys: &fakeKeys{}, reg: game.NewRegistry(), auto: true}
	env := game.Env{LEDs: f.device, Keys: f.keys, Shortcuts: noShortcuts{}}
	if _, err := game.RegisterBuiltins(f.reg, env); err != nil {
		t.Fatal(err)
	}
	f.disp = New(Options{
		Device:     f.device,
		Executor:   NewExecutor(f.reg, f.runner),
		Registry:   f.reg,
		Keys:       f.keys,
		DeviceLog:  func(level, text string) { f.mcLogs = append(f.mcLogs, level+" "+text) },
		AutoDetect: func() bool { return f.auto },
	})
	return f
}

func matrix(pressed ...profile.Coord) protocol.MatrixStatus {
	grid := make([][]bool, profile.Rows)
	for r := range grid {
		grid[r] = make([]bool, profile.Cols)
	}
	for _, c := range pressed {
		grid[c.Row][c.Col] = true
	}
	return protocol.MatrixStatus{Grid: grid}
}

func TestCommandRunsOncePerPress(t *testing.T) {
	f := newFixture(t)
	p := profile.New("Desk")
	at := profile.Coord{Row: 2, Col: 1}
	p.Bind(at, profile.Command("notepad"))
	set := profile.NewSet()
	set.Put(0, p)
	f.disp.SetProfiles(set)
	if err := f.disp.SelectProfile("Desk"); err != nil {
		t.Fatal(err)
	}

	f.disp.Handle(matrix(at))
	f.disp.Handle(matrix(at))
	f.disp.Handle(matrix(at))
	if diff := cmp.Diff([]string{"notepad"}, f.runner.runs); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}

	f.disp.Handle(matrix())
	f.disp.Handle(matrix())
	f.disp.Handle(matrix(at))
	if diff := cmp.Diff([]string{"notepad", "notepad"}, f.runner.runs); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}
}

func TestSharedCommandMergedAcrossButtons(t *testing.T) {
	f := newFixture(t)
	p := profile.New("Desk")
	a, b := profile.Coord{Row: 0, Col: 0}, profile.Coord{Row: 4, Col: 2}
	p.Bind(a, profile.Command("calc"))
	p.Bind(b, profile.Command("calc"))
	set := profile.NewSet()
	set.Put(0, p)
	f.disp.SetProfiles(set)
	f.disp.SelectProfile("Desk")

	for i := 0; i < 3; i++ {
		f.disp.Handle(matrix(a))
	}
	if len(f.runner.runs) != 1 {
		t.Errorf("Expected one run while held, got %d", len(f.runner.runs))
	}
}

func TestSingleButtonAndNoProfile(t *testing.T) {
	f := newFixture(t)
	p := profile.New("Desk")
	p.ButtonSingle = profile.Command("lock")
	set := profile.NewSet()
	set.Put(0, p)
	f.disp.SetProfiles(set)

	f.disp.Handle(protocol.SingleButtonStatus{Pressed: true})
	if len(f.runner.runs) != 0 {
		t.Errorf("Expected nothing without a profile, got %v", f.runner.runs)
	}

	f.disp.SelectProfile("Desk")
	f.disp.Handle(protocol.SingleButtonStatus{Pressed: true})
	if diff := cmp.Diff([]string{"lock"}, f.runner.runs); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectProfile(t *testing.T) {
	f := newFixture(t)
	set := profile.NewSet()
	set.Put(0, profile.New("Desk"))
	f.disp.SetProfiles(set)

	var events []Event
	f.disp.Subscribe(func(ev Event) { events = append(events, ev) })

	if err := f.disp.SelectProfile("Missing"); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("Expected ErrUnknownProfile, got %v", err)
	}
	if err := f.disp.SelectProfile("Desk"); err != nil {
		t.Fatal(err)
	}
	if got := f.disp.ActiveName(); got != "Desk" {
		t.Errorf("Expected Desk, got %s", got)
	}
	if err := f.disp.SelectProfile(NoProfile); err != nil {
		t.Fatal(err)
	}
	if got := f.disp.ActiveName(); got != NoProfile {
		t.Errorf("Expected none, got %s", got)
	}

	want := []Event{{Type: EventProfile, Data: "Desk"}, {Type: EventProfile, Data: NoProfile}}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	f.disp.SelectProfile("Desk")
	f.disp.SetProfiles(profile.NewSet())
	if got := f.disp.ActiveName(); got != NoProfile {
		t.Errorf("Expected removed profile to be cleared, got %s", got)
	}
}

func TestRotaryTapsVolumeKeys(t *testing.T) {
	f := newFixture(t)
	f.disp.Handle(protocol.RotaryEvent{Direction: protocol.Clockwise})
	f.disp.Handle(protocol.RotaryEvent{Direction: protocol.CounterClockwise})
	want := []string{input.KeyVolumeUp.Name, input.KeyVolumeDown.Name}
	if diff := cmp.Diff(want, f.keys.taps); diff != "" {
		t.Errorf("taps mismatch (-want +got):\n%s", diff)
	}
}

func TestTestMode(t *testing.T) {
	f := newFixture(t)
	set := profile.NewSet()
	set.Put(0, profile.New("Desk"))
	f.disp.SetProfiles(set)
	f.disp.SelectProfile("Desk")

	f.disp.SetTestMode(true)
	f.disp.Handle(protocol.RotaryEvent{Direction: protocol.CounterClockwise})
	if got := f.disp.Dial(); got != DialMax {
		t.Errorf("Expected dial to wrap to %d, got %d", DialMax, got)
	}
	f.disp.Handle(protocol.RotaryEvent{Direction: protocol.Clockwise})
	if got := f.disp.Dial(); got != 0 {
		t.Errorf("Expected dial to wrap to 0, got %d", got)
	}
	if len(f.keys.taps) != 0 {
		t.Errorf("Expected no key taps in test mode, got %v", f.keys.taps)
	}

	f.disp.Handle(matrix(profile.Coord{Row: 3, Col: 1}))
	f.disp.Handle(protocol.SingleButtonStatus{Pressed: true})
	want := []string{"LED LOW LEFT", "LED HIGH MIDDLE", "LED LOW RIGHT", "LED HIGH EXTRA"}
	if diff := cmp.Diff(want, f.device.sent()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}

	f.disp.SetTestMode(false)
	if f.device.discarded != 1 || len(f.device.sent()) != 0 {
		t.Errorf("Expected pending traffic discarded")
	}
	if got := f.disp.ActiveName(); got != NoProfile {
		t.Errorf("Expected profile cleared after test mode, got %s", got)
	}
}

func TestMCLogForwarded(t *testing.T) {
	f := newFixture(t)
	f.disp.Handle(protocol.LogLine{Level: protocol.LevelError, Text: "sensor fault"})
	if diff := cmp.Diff([]string{"ERROR sensor fault"}, f.mcLogs); diff != "" {
		t.Errorf("mc logs mismatch (-want +got):\n%s", diff)
	}
}

func registerStub(t *testing.T, f *fixture, id string, priority int, detected bool) *stubGame {
	t.Helper()
	g := &stubGame{Base: game.NewBase(id, priority, false), detected: detected}
	if err := f.reg.Register(id, g); err != nil {
		t.Fatal(err)
	}
	return g
}

func autoProfile(name, gameID string) *profile.Profile {
	p := profile.New(name)
	p.AutoActivate = profile.GameRef(gameID)
	return p
}

func TestDetectActivatesFirstMatch(t *testing.T) {
	f := newFixture(t)
	registerStub(t, f, "low", 1, true)
	registerStub(t, f, "high", 5, false)
	set := profile.NewSet()
	set.Put(0, profile.New("Plain"))
	set.Put(1, autoProfile("Missing", "gone"))
	set.Put(2, autoProfile("Low", "low"))
	set.Put(3, autoProfile("High", "high"))
	f.disp.SetProfiles(set)

	f.disp.DetectTick()
	if got := f.disp.ActiveName(); got != "Low" {
		t.Errorf("Expected Low, got %s", got)
	}

	f.auto = false
	f.disp.SelectProfile(NoProfile)
	f.disp.DetectTick()
	if got := f.disp.ActiveName(); got != NoProfile {
		t.Errorf("Expected detection disabled, got %s", got)
	}
}

func TestDetectPrefersHigherPriority(t *testing.T) {
	f := newFixture(t)
	registerStub(t, f, "same", 1, true)
	high := registerStub(t, f, "high", 5, false)
	set := profile.NewSet()
	set.Put(0, profile.New("Manual"))
	set.Put(1, autoProfile("Same", "same"))
	set.Put(2, autoProfile("High", "high"))
	f.disp.SetProfiles(set)
	f.disp.SelectProfile("Manual")

	f.disp.DetectTick()
	if got := f.disp.ActiveName(); got != "Manual" {
		t.Errorf("Expected equal priority not to replace a manual profile, got %s", got)
	}

	high.detected = true
	f.disp.DetectTick()
	if got := f.disp.ActiveName(); got != "High" {
		t.Errorf("Expected High, got %s", got)
	}

	high.detected = false
	f.disp.DetectTick()
	if got := f.disp.ActiveName(); got != "High" {
		t.Errorf("Expected the profile to stay until something better is detected, got %s", got)
	}
}

func TestDetectStopsOnBrokenCurrentProfile(t *testing.T) {
	f := newFixture(t)
	registerStub(t, f, "high", 5, true)
	set := profile.NewSet()
	set.Put(0, autoProfile("Broken", "gone"))
	set.Put(1, autoProfile("High", "high"))
	f.disp.SetProfiles(set)
	f.disp.SelectProfile("Broken")

	f.disp.DetectTick()
	if got := f.disp.ActiveName(); got != "Broken" {
		t.Errorf("Expected tick to stop, got %s", got)
	}
}

func TestLEDTick(t *testing.T) {
	f := newFixture(t)
	p := profile.New("Desk")
	p.LEDProfile = game.DefaultID
	set := profile.NewSet()
	set.Put(0, p)
	set.Put(1, func() *profile.Profile { q := profile.New("Broken"); q.LEDProfile = "gone"; return q }())
	f.disp.SetProfiles(set)

	f.disp.LEDTick()
	if len(f.device.sent()) != 0 {
		t.Errorf("Expected no LED traffic without a profile")
	}
	f.disp.SelectProfile("Desk")
	f.disp.LEDTick()
	if len(f.device.sent()) != len(protocol.AllLEDs) {
		t.Errorf("Expected %d LED commands, got %v", len(protocol.AllLEDs), f.device.sent())
	}
	f.disp.SelectProfile("Broken")
	f.disp.LEDTick()
}

func TestRunHandlesEvents(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	seen := make(chan Event, 4)
	f.disp.Subscribe(func(ev Event) { seen <- ev })
	go func() {
		f.disp.Run(ctx)
		close(done)
	}()

	f.device.events <- protocol.SingleButtonStatus{Pressed: false}
	select {
	case ev := <-seen:
		if ev.Type != EventSingle {
			t.Errorf("Expected %s, got %s", EventSingle, ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}
	cancel()
	<-done
}

func TestRunSurvivesPanickingAction(t *testing.T) {
	f := newFixture(t)
	g := registerStub(t, f, "crashy", 1, false)
	g.Handle("boom", "Boom", func(pressed bool) error {
		panic("broken action")
	})
	p := profile.New("Desk")
	p.ButtonSingle = profile.GameAction("crashy", "boom")
	set := profile.NewSet()
	set.Put(0, p)
	f.disp.SetProfiles(set)
	if err := f.disp.SelectProfile("Desk"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	seen := make(chan Event, 4)
	f.disp.Subscribe(func(ev Event) { seen <- ev })
	go func() {
		f.disp.Run(ctx)
		close(done)
	}()

	f.device.events <- protocol.SingleButtonStatus{Pressed: true}
	f.device.events <- protocol.RotaryEvent{Direction: protocol.Clockwise}
	for _, want := range []string{EventSingle, EventRotary} {
		select {
		case ev := <-seen:
			if ev.Type != want {
				t.Errorf("Expected %s, got %s", want, ev.Type)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for %s", want)
		}
	}
	cancel()
	<-done
}

package macro

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"buttonbox/internal/input"
)

type fakeActuator struct {
	mu     sync.Mutex
	events []string
	notify chan string
}

func newFakeActuator() *fakeActuator {
	return &fakeActuator{notify: make(chan string, 1024)}
}

func (f *fakeActuator) record(ev string) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
	select {
	case f.notify <- ev:
	default:
	}
}

func (f *fakeActuator) Press(combo string, pressed bool) error {
	f.record(fmt.Sprintf("%s:%v", combo, pressed))
	return nil
}

func (f *fakeActuator) Mouse(b input.MouseButton, pressed bool) error {
	f.record(fmt.Sprintf("mouse-%s:%v", b, pressed))
	return nil
}

func (f *fakeActuator) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	if ch == nil {
		return
	}
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for macro to finish")
	}
}

func waitEvent(t *testing.T, f *fakeActuator, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-f.notify:
			if ev == want {
				return
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for event %q", want)
		}
	}
}

func tapMacro(name string, mode Mode) Macro {
	return Macro{Name: name, Mode: mode, Actions: []Step{
		PressKey("a"),
		Delay(2 * time.Millisecond),
		ReleaseKey("a"),
	}}
}

func TestTimesRunsExactly(t *testing.T) {
	act := newFakeActuator()
	e := NewEngine(act)
	m := tapMacro("three", Times(3))

	e.Handle(m, true)
	done := e.Done("three")
	if done == nil {
		t.Fatal("Expected macro to be running after press")
	}
	waitDone(t, done)

	if got := len(act.Events()); got != 6 {
		t.Errorf("Expected 3 passes (6 events), got %d: %v", got, act.Events())
	}
	if e.Running("three") {
		t.Error("Expected macro to be absent from the running set")
	}
}

func TestTimesIgnoresRepeatPresses(t *testing.T) {
	act := newFakeActuator()
	e := NewEngine(act)
	m := Macro{Name: "slow", Mode: Times(1), Actions: []Step{PressKey("b"), Delay(20 * time.Millisecond), ReleaseKey("b")}}

	e.Handle(m, true)
	done := e.Done("slow")
	e.Handle(m, true)
	e.Handle(m, true)
	waitDone(t, done)

	// still held: a repeated status report must not start it again
	e.Handle(m, true)
	if e.Running("slow") {
		t.Error("Expected held button not to restart the macro")
	}
	if got := len(act.Events()); got != 2 {
		t.Errorf("Expected a single pass, got %v", act.Events())
	}

	e.Handle(m, false)
	e.Handle(m, true)
	waitDone(t, e.Done("slow"))
	if got := len(act.Events()); got != 4 {
		t.Errorf("Expected a second pass after release and press, got %v", act.Events())
	}
}

func TestTimesZero(t *testing.T) {
	act := newFakeActuator()
	e := NewEngine(act)
	e.Handle(tapMacro("none", Times(0)), true)
	waitDone(t, e.Done("none"))
	if len(act.Events()) != 0 {
		t.Errorf("Expected no events, got %v", act.Events())
	}
}

func TestUntilReleased(t *testing.T) {
	act := newFakeActuator()
	e := NewEngine(act)
	m := tapMacro("hold", UntilReleased())

	e.Handle(m, true)
	done := e.Done("hold")
	waitEvent(t, act, "a:false")
	waitEvent(t, act, "a:false")

	e.Handle(m, false)
	waitDone(t, done)

	events := act.Events()
	if len(events)%2 != 0 {
		t.Fatalf("Expected whole passes only, got %v", events)
	}
	for i := 0; i < len(events); i += 2 {
		if events[i] != "a:true" || events[i+1] != "a:false" {
			t.Errorf("Pass %d was interrupted: %v", i/2, events[i:i+2])
		}
	}
	if e.Running("hold") {
		t.Error("Expected macro to stop after release")
	}
}

func TestUntilPressedAgain(t *testing.T) {
	act := newFakeActuator()
	e := NewEngine(act)
	m := tapMacro("toggle", UntilPressedAgain())

	e.Handle(m, true)
	done := e.Done("toggle")
	e.Handle(m, false)

	waitEvent(t, act, "a:false")
	if !e.Running("toggle") {
		t.Fatal("Expected the release of the starting press to be ignored")
	}

	e.Handle(m, true)
	waitDone(t, done)
	if e.Running("toggle") {
		t.Error("Expected second press to stop the macro")
	}

	e.Handle(m, false)
	if e.Running("toggle") {
		t.Error("Expected final release not to restart the macro")
	}
}

func TestTrigger(t *testing.T) {
	act := newFakeActuator()
	e := NewEngine(act)
	e.SetMacros([]Macro{tapMacro("known", Times(1))})

	if err := e.Trigger("missing", true); !errors.Is(err, ErrUnknownMacro) {
		t.Errorf("Expected ErrUnknownMacro, got %v", err)
	}
	if err := e.Trigger("known", true); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	waitDone(t, e.Done("known"))
}

func TestShutdownInterruptsDelayAndReleases(t *testing.T) {
	act := newFakeActuator()
	e := NewEngine(act)
	m := Macro{Name: "long", Mode: Times(1), Actions: []Step{
		PressKey("shift"),
		MouseStep(input.MouseLeft, MouseDown),
		Delay(time.Hour),
		ReleaseKey("shift"),
	}}

	e.Handle(m, true)
	waitEvent(t, act, "mouse-left:true")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Expected shutdown to interrupt the delay promptly")
	}

	released := map[string]bool{}
	for _, ev := range act.Events() {
		released[ev] = true
	}
	if !released["shift:false"] || !released["mouse-left:false"] {
		t.Errorf("Expected held keys to be released on shutdown, got %v", act.Events())
	}

	e.Handle(m, false)
	e.Handle(m, true)
	if e.Running("long") {
		t.Error("Expected no new runs after shutdown")
	}
}

func TestIndependentMacrosRunConcurrently(t *testing.T) {
	act := newFakeActuator()
	e := NewEngine(act)
	a := Macro{Name: "a", Mode: UntilReleased(), Actions: []Step{Delay(time.Millisecond)}}
	b := Macro{Name: "b", Mode: UntilReleased(), Actions: []Step{Delay(time.Millisecond)}}

	e.Handle(a, true)
	e.Handle(b, true)
	if got := e.RunningNames(); len(got) != 2 {
		t.Errorf("Expected two running macros, got %v", got)
	}
	da, db := e.Done("a"), e.Done("b")
	e.Handle(a, false)
	e.Handle(b, false)
	waitDone(t, da)
	waitDone(t, db)
}

func TestShutdownRacingPresses(t *testing.T) {
	e := NewEngine(newFakeActuator())
	m := tapMacro("spam", UntilPressedAgain())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			e.Handle(m, i%2 == 0)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	wg.Wait()

	e.Handle(m, true)
	if names := e.RunningNames(); len(names) != 0 {
		t.Errorf("Expected no running macros after shutdown, got %v", names)
	}
}

package game

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"buttonbox/internal/protocol"
)

// Game ids of the built in games
const (
	DefaultID = "default"
	BeamNGID  = "beamng"
	CustomID  = "custom"
	TestID    = "test"
)

// MacroPrefix marks a custom action shortcut that triggers a macro
const MacroPrefix = "macro:"

// LEDSink accepts outbound device commands
type LEDSink interface {
	Enqueue(cmd string) error
}

// KeyPresser presses and releases key combinations
type KeyPresser interface {
	Press(combo string, pressed bool) error
}

// ShortcutSource resolves the shortcut configured for an action
type ShortcutSource interface {
	Shortcut(game, action string) string
}

// MacroTrigger runs macros by name
type MacroTrigger interface {
	Trigger(name string, pressed bool) error
}

// Env holds the collaborators the built in games act through
type Env struct {
	LEDs       LEDSink
	Keys       KeyPresser
	Shortcuts  ShortcutSource
	Macros     MacroTrigger
	Foreground func() (string, error)
	Now        func() time.Time
}

func (env Env) now() time.Time {
	if env.Now != nil {
		return env.Now()
	}
	return time.Now()
}

// RegisterBuiltins registers the default, beamng, custom and test games
func RegisterBuiltins(r *Registry, env Env) (*Custom, error) {
	custom := NewCustom(env)
	for id, g := range map[string]Game{
		DefaultID: NewDefault(env),
		BeamNGID:  NewBeamNG(env),
		CustomID:  custom,
		TestID:    NewTest(env),
	} {
		if err := r.Register(id, g); err != nil {
			return nil, err
		}
	}
	return custom, nil
}

// Default is active when nothing else is detected. It exposes media key actions and keeps the LEDs off.
type Default struct {
	*Base
	env Env

	mu      sync.Mutex
	lastLED time.Time
}

var mediaActions = []struct{ id, label, key string }{
	{"volume_up", "Volume up", "volumeup"},
	{"volume_down", "Volume down", "volumedown"},
	{"mute", "Mute", "volumemute"},
	{"play_pause", "Play / pause", "mediaplay"},
	{"next_track", "Next track", "medianext"},
	{"previous_track", "Previous track", "mediaprev"},
}

func NewDefault(env Env) *Default {
	d := &Default{Base: NewBase("Default", 0, false), env: env}
	for _, a := range mediaActions {
		key := a.key
		d.Handle(a.id, a.label, func(pressed bool) error {
			return env.Keys.Press(key, pressed)
		})
	}
	return d
}

func (d *Default) Detect() bool { return true }

// ManageLEDs turns every LED off at most once per second
func (d *Default) ManageLEDs() {
	now := d.env.now()
	d.mu.Lock()
	if !d.lastLED.IsZero() && now.Sub(d.lastLED) < time.Second {
		d.mu.Unlock()
		return
	}
	d.lastLED = now
	d.mu.Unlock()

	for _, led := range protocol.AllLEDs {
		if err := d.env.LEDs.Enqueue(protocol.LEDCommand(led, false)); err != nil {
			log.Warn().Err(err).Msg("Failed to queue LED command")
			return
		}
	}
}

// BeamNG replays configured keyboard shortcuts while BeamNG.drive is in the foreground
type BeamNG struct {
	*Base
	env Env
}

var beamngActions = []struct{ id, label string }{
	{"horn", "Horn"},
	{"ignition", "Toggle ignition"},
	{"parking_brake", "Parking brake"},
	{"headlights", "Headlights"},
	{"left_signal", "Left turn signal"},
	{"right_signal", "Right turn signal"},
	{"hazard_lights", "Hazard lights"},
	{"recover_vehicle", "Recover vehicle"},
	{"reset_vehicle", "Reset vehicle"},
	{"camera", "Change camera"},
}

func NewBeamNG(env Env) *BeamNG {
	g := &BeamNG{Base: NewBase("BeamNG.drive", 2, false), env: env}
	for _, a := range beamngActions {
		id := a.id
		g.Handle(id, a.label, func(pressed bool) error {
			combo := env.Shortcuts.Shortcut(BeamNGID, id)
			if combo == "" {
				return ErrNoShortcut
			}
			return env.Keys.Press(combo, pressed)
		})
		g.shortcuts = append(g.shortcuts, Action{ID: id, Label: a.label})
	}
	return g
}

func (g *BeamNG) Detect() bool {
	if g.env.Foreground == nil {
		return false
	}
	name, err := g.env.Foreground()
	if err != nil {
		return false
	}
	return strings.HasPrefix(normalizeProcess(name), "beamng.drive")
}

// Custom exposes user defined actions. Each resolves to a shortcut or to a macro.
type Custom struct {
	env Env

	mu      sync.RWMutex
	actions map[string]string
}

func NewCustom(env Env) *Custom {
	return &Custom{env: env, actions: make(map[string]string)}
}

func (c *Custom) Name() string  { return "Custom" }
func (c *Custom) Priority() int { return 1 }
func (c *Custom) Hidden() bool  { return false }
func (c *Custom) Detect() bool  { return false }

// SetActions replaces the action table, keyed by id with display names as values
func (c *Custom) SetActions(actions map[string]string) {
	m := make(map[string]string, len(actions))
	for id, name := range actions {
		m[id] = name
	}
	c.mu.Lock()
	c.actions = m
	c.mu.Unlock()
}

// Actions lists the custom actions sorted by id
func (c *Custom) Actions() []Action {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Action, 0, len(c.actions))
	for id, name := range c.actions {
		out = append(out, Action{ID: id, Label: name})
	}
	sortActions(out)
	return out
}

func (c *Custom) ShortcutActions() []Action {
	return c.Actions()
}

func (c *Custom) Trigger(action string, pressed bool) error {
	c.mu.RLock()
	_, ok := c.actions[action]
	c.mu.RUnlock()
	if !ok {
		return ErrUnknownAction
	}

	target := c.env.Shortcuts.Shortcut(CustomID, action)
	switch {
	case target == "":
		return ErrNoShortcut
	case strings.HasPrefix(target, MacroPrefix):
		return c.env.Macros.Trigger(strings.TrimPrefix(target, MacroPrefix), pressed)
	default:
		return c.env.Keys.Press(target, pressed)
	}
}

// Test mirrors button state onto the LEDs. It is hidden from selection.
type Test struct {
	*Base
	env Env

	mu    sync.Mutex
	state map[protocol.LED]bool
}

func NewTest(env Env) *Test {
	t := &Test{Base: NewBase("Test", 0, true), env: env, state: make(map[protocol.LED]bool)}
	for _, led := range protocol.AllLEDs {
		led := led
		name := strings.ToLower(led.String())
		t.Handle("led_"+name, "LED "+name, func(pressed bool) error {
			return t.set(led, pressed)
		})
	}
	return t
}

func (t *Test) set(led protocol.LED, on bool) error {
	t.mu.Lock()
	prev, known := t.state[led]
	if known && prev == on {
		t.mu.Unlock()
		return nil
	}
	t.state[led] = on
	t.mu.Unlock()
	return t.env.LEDs.Enqueue(protocol.LEDCommand(led, on))
}

// Reset forgets the mirrored state so the next trigger is always sent
func (t *Test) Reset() {
	t.mu.Lock()
	t.state = make(map[protocol.LED]bool)
	t.mu.Unlock()
}

// Package dispatch routes device events to the active profile and runs the periodic detection and LED ticks.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"buttonbox/internal/game"
	"buttonbox/internal/input"
	"buttonbox/internal/profile"
	"buttonbox/internal/protocol"
)

// NoProfile is the profile name that clears the selection
const NoProfile = "none"

// DialMax is the upper bound of the test mode dial
const DialMax = 100

var ErrUnknownProfile = errors.New("dispatch: unknown profile")

// Device is the part of the connection the dispatcher uses
type Device interface {
	Events() <-chan protocol.Message
	Enqueue(cmd string) error
	DiscardPending()
}

// KeyTapper taps single keys while preserving held modifiers
type KeyTapper interface {
	TapKey(k input.Key) error
}

// Event is published to observers for every handled message and state change
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Event types
const (
	EventRotary  = "rotary"
	EventSingle  = "button_single"
	EventMatrix  = "button_matrix"
	EventMCLog   = "mc_log"
	EventProfile = "profile"
	EventTest    = "test_mode"
	EventDial    = "dial"
)

// Options configures a Dispatcher
type Options struct {
	Device   Device
	Executor *Executor
	Registry *game.Registry
	Keys     KeyTapper
	// DeviceLog receives microcontroller log lines
	DeviceLog func(level, text string)
	// AutoDetect reports whether profiles are selected by detection
	AutoDetect func() bool

	DetectInterval time.Duration
	LEDInterval    time.Duration
}

// Dispatcher owns the active profile and test mode
type Dispatcher struct {
	opts Options

	mu         sync.RWMutex
	profiles   *profile.Set
	activeName string
	testMode   bool
	dial       int
	observers  []func(Event)
}

func New(opts Options) *Dispatcher {
	if opts.DetectInterval <= 0 {
		opts.DetectInterval = time.Second
	}
	if opts.LEDInterval <= 0 {
		opts.LEDInterval = 100 * time.Millisecond
	}
	if opts.AutoDetect == nil {
		opts.AutoDetect = func() bool { return false }
	}
	return &Dispatcher{opts: opts, profiles: profile.NewSet()}
}

// Subscribe registers an observer. Observers run on the dispatcher goroutine and must not block.
func (d *Dispatcher) Subscribe(fn func(Event)) {
	d.mu.Lock()
	d.observers = append(d.observers, fn)
	d.mu.Unlock()
}

func (d *Dispatcher) publish(ev Event) {
	d.mu.RLock()
	observers := d.observers
	d.mu.RUnlock()
	for _, fn := range observers {
		fn(ev)
	}
}

// SetProfiles replaces the profile collection. A selected profile that no longer exists is cleared.
func (d *Dispatcher) SetProfiles(set *profile.Set) {
	d.mu.Lock()
	d.profiles = set.Clone()
	cleared := false
	if d.activeName != "" {
		if _, ok := d.profiles.ByName(d.activeName); !ok {
			d.activeName = ""
			cleared = true
		}
	}
	d.mu.Unlock()
	if cleared {
		d.publish(Event{Type: EventProfile, Data: NoProfile})
	}
}

// Profiles returns a copy of the profile collection
func (d *Dispatcher) Profiles() *profile.Set {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.profiles.Clone()
}

// SelectProfile activates a profile by name. "none" or "" clears the selection and leaves test mode untouched.
func (d *Dispatcher) SelectProfile(name string) error {
	d.mu.Lock()
	if name != "" && name != NoProfile {
		if _, ok := d.profiles.ByName(name); !ok {
			d.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrUnknownProfile, name)
		}
	} else {
		name = ""
	}
	d.activeName = name
	d.mu.Unlock()

	shown := name
	if shown == "" {
		shown = NoProfile
	}
	log.Info().Str("profile", shown).Msg("Dispatch: profile selected")
	d.publish(Event{Type: EventProfile, Data: shown})
	return nil
}

// ActiveName returns the selected profile name, or "none"
func (d *Dispatcher) ActiveName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.activeName == "" {
		return NoProfile
	}
	return d.activeName
}

// active returns the profile events are resolved against
func (d *Dispatcher) active() *profile.Profile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.testMode {
		return testProfile
	}
	if d.activeName == "" {
		return nil
	}
	p, _ := d.profiles.ByName(d.activeName)
	return p
}

// SetTestMode enters or leaves test mode. Leaving drops pending device traffic and clears the profile.
func (d *Dispatcher) SetTestMode(on bool) {
	d.mu.Lock()
	if d.testMode == on {
		d.mu.Unlock()
		return
	}
	d.testMode = on
	d.dial = 0
	if !on {
		d.activeName = ""
	}
	d.mu.Unlock()

	if reg := d.opts.Registry; reg != nil {
		if g, err := reg.Lookup(game.TestID); err == nil {
			if t, ok := g.(*game.Test); ok {
				t.Reset()
			}
		}
	}
	if !on {
		d.opts.Device.DiscardPending()
		d.publish(Event{Type: EventProfile, Data: NoProfile})
	}
	log.Info().Bool("enabled", on).Msg("Dispatch: test mode")
	d.publish(Event{Type: EventTest, Data: on})
}

// TestMode reports whether test mode is on
func (d *Dispatcher) TestMode() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.testMode
}

// Dial returns the test mode dial value
func (d *Dispatcher) Dial() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dial
}

// Run consumes device events and drives the ticks until ctx is done
func (d *Dispatcher) Run(ctx context.Context) {
	detect := time.NewTicker(d.opts.DetectInterval)
	defer detect.Stop()
	leds := time.NewTicker(d.opts.LEDInterval)
	defer leds.Stop()

	events := d.opts.Device.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-events:
			d.guard("event", func() { d.Handle(msg) })
		case <-detect.C:
			d.guard("detect", d.DetectTick)
		case <-leds.C:
			d.guard("leds", d.LEDTick)
		}
	}
}

// guard runs fn and logs a panic from profile or game code instead of ending the loop
func (d *Dispatcher) guard(stage string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("stage", stage).Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("Dispatch: handler crashed")
		}
	}()
	fn()
}

// Handle processes one device message
func (d *Dispatcher) Handle(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.RotaryEvent:
		d.rotary(m.Direction)
	case protocol.SingleButtonStatus:
		d.publish(Event{Type: EventSingle, Data: m.Pressed})
		if p := d.active(); p != nil {
			d.execute(p.ButtonSingle, m.Pressed)
		}
	case protocol.MatrixStatus:
		d.publish(Event{Type: EventMatrix, Data: m.Grid})
		p := d.active()
		if p == nil {
			return
		}
		for _, b := range mergeMatrix(p, m.Grid) {
			d.execute(b.entry, b.pressed)
		}
	case protocol.LogLine:
		if d.opts.DeviceLog != nil {
			d.opts.DeviceLog(string(m.Level), m.Text)
		}
		d.publish(Event{Type: EventMCLog, Data: m})
	}
}

type binding struct {
	entry   profile.ButtonEntry
	pressed bool
}

// mergeMatrix resolves every cell of a status grid in row major order. Cells
// bound to the same entry are merged into one binding that is pressed if any
// of them is.
func mergeMatrix(p *profile.Profile, grid [][]bool) []binding {
	var out []binding
	seen := make(map[profile.ButtonEntry]int)
	for r, row := range grid {
		for c, pressed := range row {
			if r >= profile.Rows || c >= profile.Cols {
				continue
			}
			e := p.Resolve(profile.Coord{Row: r, Col: c})
			if i, ok := seen[e]; ok {
				out[i].pressed = out[i].pressed || pressed
				continue
			}
			seen[e] = len(out)
			out = append(out, binding{entry: e, pressed: pressed})
		}
	}
	return out
}

func (d *Dispatcher) rotary(dir protocol.Direction) {
	d.publish(Event{Type: EventRotary, Data: dir.String()})

	d.mu.Lock()
	if d.testMode {
		if dir == protocol.Clockwise {
			d.dial++
			if d.dial > DialMax {
				d.dial = 0
			}
		} else {
			d.dial--
			if d.dial < 0 {
				d.dial = DialMax
			}
		}
		value := d.dial
		d.mu.Unlock()
		d.publish(Event{Type: EventDial, Data: value})
		return
	}
	d.mu.Unlock()

	key := input.KeyVolumeUp
	if dir == protocol.CounterClockwise {
		key = input.KeyVolumeDown
	}
	log.Debug().Str("key", key.String()).Msg("Dispatch: rotary")
	if d.opts.Keys == nil {
		return
	}
	if err := d.opts.Keys.TapKey(key); err != nil {
		log.Error().Err(err).Msg("Dispatch: volume key failed")
	}
}

func (d *Dispatcher) execute(e profile.ButtonEntry, pressed bool) {
	if err := d.opts.Executor.Execute(e, pressed); err != nil {
		log.Error().Err(err).Str("entry", e.String()).Msg("Dispatch: action failed")
	}
}

// DetectTick switches to the profile of the highest priority detected game
func (d *Dispatcher) DetectTick() {
	if !d.opts.AutoDetect() || d.TestMode() {
		return
	}
	profiles := d.Profiles().Ordered()
	reg := d.opts.Registry

	current := d.active()
	for _, p := range profiles {
		if p.AutoActivate == "" {
			continue
		}
		g, err := reg.Lookup(string(p.AutoActivate))
		if err != nil {
			log.Error().Err(err).Str("profile", p.Name).Msg("Dispatch: detection failed")
			continue
		}

		if current == nil {
			if g.Detect() {
				d.activate(p)
				current = p
			}
			continue
		}

		curPriority := 1
		if current.AutoActivate != "" {
			cur, err := reg.Lookup(string(current.AutoActivate))
			if err != nil {
				log.Error().Err(err).Str("profile", current.Name).Msg("Dispatch: detection failed")
				return
			}
			curPriority = cur.Priority()
		}
		if g.Priority() > curPriority && g.Detect() {
			d.activate(p)
			current = p
		}
	}
}

func (d *Dispatcher) activate(p *profile.Profile) {
	if err := d.SelectProfile(p.Name); err != nil {
		log.Error().Err(err).Msg("Dispatch: auto activation failed")
	}
}

// LEDTick runs the LED manager of the active profile
func (d *Dispatcher) LEDTick() {
	p := d.active()
	if p == nil || p.LEDProfile == "" {
		return
	}
	if err := d.opts.Registry.ManageLEDs(string(p.LEDProfile)); err != nil {
		log.Error().Err(err).Str("profile", p.Name).Msg("Dispatch: LED manager failed")
	}
}

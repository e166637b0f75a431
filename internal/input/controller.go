package input

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// HeldKeys reports which keys the user is physically holding
type HeldKeys interface {
	HeldModifiers() []string
	IsPressed(name string) bool
}

// Controller issues key and mouse actions through an Injector
type Controller struct {
	inj  Injector
	held HeldKeys
	// serializes multi-event sequences so chords from different workers do not interleave
	mu sync.Mutex
}

// NewController creates a controller. held may be nil when no listener is running.
func NewController(inj Injector, held HeldKeys) *Controller {
	return &Controller{inj: inj, held: held}
}

// PressChord presses every key of the chord in order
func (c *Controller) PressChord(ch Chord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, k := range ch.Keys {
		errs = append(errs, c.inj.InjectKey(k, true))
	}
	return errors.Join(errs...)
}

// ReleaseChord releases every key of the chord in order
func (c *Controller) ReleaseChord(ch Chord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, k := range ch.Keys {
		errs = append(errs, c.inj.InjectKey(k, false))
	}
	return errors.Join(errs...)
}

// Press presses or releases every chord of a combo string. Bad tokens are logged and skipped.
func (c *Controller) Press(combo string, pressed bool) error {
	chords, err := ParseCombo(combo)
	if err != nil {
		log.Warn().Err(err).Str("combo", combo).Msg("Input: skipping unparseable keys")
	}
	var errs []error
	for _, ch := range chords {
		if pressed {
			errs = append(errs, c.PressChord(ch))
		} else {
			errs = append(errs, c.ReleaseChord(ch))
		}
	}
	return errors.Join(errs...)
}

// Tap presses and releases a combo
func (c *Controller) Tap(combo string) error {
	return errors.Join(c.Press(combo, true), c.Press(combo, false))
}

// Mouse presses or releases a mouse button
func (c *Controller) Mouse(button MouseButton, pressed bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inj.InjectMouseButton(button, pressed)
}

// Click presses and releases a mouse button
func (c *Controller) Click(button MouseButton) error {
	return errors.Join(c.Mouse(button, true), c.Mouse(button, false))
}

// TapKey taps k without the modifiers the user is holding, then restores them.
func (c *Controller) TapKey(k Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var held []Key
	if c.held != nil {
		for _, name := range c.held.HeldModifiers() {
			if mk, ok := Named(name); ok {
				held = append(held, mk)
			}
		}
	}

	var errs []error
	for _, mk := range held {
		errs = append(errs, c.inj.InjectKey(mk, false))
	}
	errs = append(errs, c.inj.InjectKey(k, true), c.inj.InjectKey(k, false))
	for _, mk := range held {
		if c.held.IsPressed(mk.Name) {
			errs = append(errs, c.inj.InjectKey(mk, true))
		}
	}
	return errors.Join(errs...)
}

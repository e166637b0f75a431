// Package input provides keyboard and mouse injection for bound actions.
package input

import (
	"fmt"
	"strings"
)

// Key is a keyboard key: either a named key with a virtual-key code or a literal character
type Key struct {
	Name string
	Code uint16
	Char rune
}

// IsChar reports whether the key is a literal character
func (k Key) IsChar() bool {
	return k.Char != 0
}

func (k Key) String() string {
	if k.IsChar() {
		return string(k.Char)
	}
	return k.Name
}

// Char returns the key typing r
func Char(r rune) Key {
	return Key{Char: r}
}

// MouseButton identifies a mouse button
type MouseButton int

const (
	MouseLeft MouseButton = iota + 1
	MouseRight
	MouseMiddle
)

func (b MouseButton) String() string {
	switch b {
	case MouseLeft:
		return "left"
	case MouseRight:
		return "right"
	case MouseMiddle:
		return "middle"
	}
	return fmt.Sprintf("mouse%d", int(b))
}

// Injector injects synthetic input events into the operating system
type Injector interface {
	InjectKey(k Key, pressed bool) error
	InjectMouseButton(button MouseButton, pressed bool) error
}

// Windows virtual-key codes of the named keys
var namedKeys = map[string]uint16{
	"ctrl":        0x11,
	"control":     0x11,
	"shift":       0x10,
	"alt":         0x12,
	"altgr":       0xA5,
	"tab":         0x09,
	"cmd":         0x5B,
	"win":         0x5B,
	"meta":        0x5B,
	"menu":        0x5D,
	"esc":         0x1B,
	"escape":      0x1B,
	"enter":       0x0D,
	"return":      0x0D,
	"space":       0x20,
	"backspace":   0x08,
	"del":         0x2E,
	"delete":      0x2E,
	"ins":         0x2D,
	"insert":      0x2D,
	"home":        0x24,
	"end":         0x23,
	"pgup":        0x21,
	"pageup":      0x21,
	"pgdown":      0x22,
	"pagedown":    0x22,
	"left":        0x25,
	"up":          0x26,
	"right":       0x27,
	"down":        0x28,
	"capslock":    0x14,
	"numlock":     0x90,
	"scrolllock":  0x91,
	"print":       0x2C,
	"printscreen": 0x2C,
	"pause":       0x13,
	"volumemute":  0xAD,
	"volumedown":  0xAE,
	"volumeup":    0xAF,
	"medianext":   0xB0,
	"mediaprev":   0xB1,
	"mediastop":   0xB2,
	"mediaplay":   0xB3,
}

// modifier keys are kept out of injected taps while the user holds them
var modifierNames = map[string]bool{
	"ctrl":  true,
	"shift": true,
	"alt":   true,
	"altgr": true,
	"cmd":   true,
}

func init() {
	for i := 1; i <= 24; i++ {
		namedKeys[fmt.Sprintf("f%d", i)] = uint16(0x6F + i)
	}
	for name, code := range namedKeys {
		if _, ok := preferredNames[code]; !ok {
			codeNames[code] = name
		}
	}
}

// Well known keys
var (
	KeyVolumeUp   = mustNamed("volumeup")
	KeyVolumeDown = mustNamed("volumedown")
)

// Named looks up a named key, case insensitive
func Named(name string) (Key, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	code, ok := namedKeys[n]
	if !ok {
		return Key{}, false
	}
	return Key{Name: canonicalName(code, n), Code: code}, true
}

// NameForCode returns the canonical name of a virtual-key code, or "" if it has none.
// Letters and digits map to their character.
func NameForCode(code uint16) string {
	switch {
	case code >= 'A' && code <= 'Z':
		return strings.ToLower(string(rune(code)))
	case code >= '0' && code <= '9':
		return string(rune(code))
	// left and right variants of the modifiers
	case code == 0xA0 || code == 0xA1:
		return "shift"
	case code == 0xA2 || code == 0xA3:
		return "ctrl"
	case code == 0xA4:
		return "alt"
	case code == 0x5C:
		return "cmd"
	}
	return canonicalName(code, "")
}

// IsModifier reports whether name is a modifier key
func IsModifier(name string) bool {
	return modifierNames[name]
}

// preferred names for codes reachable under several aliases
var preferredNames = map[uint16]string{
	0x11: "ctrl", 0x5B: "cmd", 0x1B: "esc", 0x0D: "enter", 0x2E: "delete",
	0x2D: "insert", 0x21: "pageup", 0x22: "pagedown", 0x2C: "printscreen",
}

// codeNames maps every virtual-key code back to its canonical name
var codeNames = make(map[uint16]string)

func canonicalName(code uint16, fallback string) string {
	if name, ok := preferredNames[code]; ok {
		return name
	}
	if fallback != "" {
		return fallback
	}
	return codeNames[code]
}

func mustNamed(name string) Key {
	k, ok := Named(name)
	if !ok {
		panic("input: unknown key " + name)
	}
	return k
}

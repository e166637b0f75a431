// Package keystate tracks which keys and mouse buttons the user is physically holding.
package keystate

import (
	"sort"
	"strings"
	"sync"

	"buttonbox/internal/input"
)

// Tracker holds the set of currently pressed keys, fed by global platform hooks
type Tracker struct {
	mu      sync.RWMutex
	pressed map[string]bool
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		pressed: make(map[string]bool),
	}
}

// UpdateState records a key or button transition
func (t *Tracker) UpdateState(key string, isDown bool) {
	key = strings.ToLower(key)
	t.mu.Lock()
	defer t.mu.Unlock()
	if isDown {
		t.pressed[key] = true
	} else {
		delete(t.pressed, key)
	}
}

// IsPressed reports whether a key is held
func (t *Tracker) IsPressed(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pressed[strings.ToLower(name)]
}

// HeldModifiers returns the modifier keys currently held, sorted by name
func (t *Tracker) HeldModifiers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var mods []string
	for k := range t.pressed {
		if input.IsModifier(k) {
			mods = append(mods, k)
		}
	}
	sort.Strings(mods)
	return mods
}

// Pressed returns every held key and button, sorted by name
func (t *Tracker) Pressed() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.pressed))
	for k := range t.pressed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Start installs the platform hooks.
// This is implemented in platform-specific files (keystate_windows.go, keystate_stub.go).
func (t *Tracker) Start() error {
	return t.startPlatform()
}

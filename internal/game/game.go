// Package game provides the registry of target applications and their actions.
package game

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrUnknownGame   = errors.New("game: unknown game")
	ErrUnknownAction = errors.New("game: unknown action")
	ErrNoShortcut    = errors.New("game: no shortcut configured")
	ErrDuplicate     = errors.New("game: already registered")
)

// ActionError reports a failed action together with the game it belongs to
type ActionError struct {
	Game   string
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Game, e.Action, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Action describes a named action of a game
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Game is the behavior of one target application
type Game interface {
	// Name is the display name
	Name() string
	// Priority decides between competing detectors; higher wins
	Priority() int
	// Hidden games are not offered for selection
	Hidden() bool
	// Detect reports whether the application is currently in use
	Detect() bool
	// Actions lists the actions that can be bound to buttons
	Actions() []Action
	// Trigger runs an action with the current button state
	Trigger(action string, pressed bool) error
}

// LEDManager is implemented by games that drive the device LEDs while active
type LEDManager interface {
	ManageLEDs()
}

// ShortcutProvider is implemented by games whose actions replay user configured shortcuts
type ShortcutProvider interface {
	ShortcutActions() []Action
}

// ActionFunc implements one action
type ActionFunc func(pressed bool) error

// Base implements the bookkeeping shared by games: metadata and an action table
type Base struct {
	name      string
	priority  int
	hidden    bool
	actions   []Action
	table     map[string]ActionFunc
	shortcuts []Action
}

// NewBase creates the shared part of a game
func NewBase(name string, priority int, hidden bool) *Base {
	return &Base{name: name, priority: priority, hidden: hidden, table: make(map[string]ActionFunc)}
}

func (b *Base) Name() string  { return b.name }
func (b *Base) Priority() int { return b.priority }
func (b *Base) Hidden() bool  { return b.hidden }

// Detect never matches unless a game overrides it
func (b *Base) Detect() bool { return false }

// Actions returns the registered actions in registration order
func (b *Base) Actions() []Action {
	return append([]Action(nil), b.actions...)
}

// ShortcutActions returns the actions backed by keyboard shortcuts
func (b *Base) ShortcutActions() []Action {
	return append([]Action(nil), b.shortcuts...)
}

// Handle registers an action
func (b *Base) Handle(id, label string, fn ActionFunc) {
	if _, ok := b.table[id]; !ok {
		b.actions = append(b.actions, Action{ID: id, Label: label})
	}
	b.table[id] = fn
}

// Trigger looks the action up in the table and runs it
func (b *Base) Trigger(action string, pressed bool) error {
	fn, ok := b.table[action]
	if !ok {
		return ErrUnknownAction
	}
	return fn(pressed)
}

// Registry maps game ids to games. It is built once at startup.
type Registry struct {
	mu    sync.RWMutex
	games map[string]Game
}

// Info summarizes a registered game for listings
type Info struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Priority int      `json:"priority"`
	Hidden   bool     `json:"hidden"`
	LEDs     bool     `json:"leds"`
	Actions  []Action `json:"actions"`
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{games: make(map[string]Game)}
}

// Register adds a game under id
func (r *Registry) Register(id string, g Game) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.games[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	r.games[id] = g
	return nil
}

// Lookup returns the game registered under id
func (r *Registry) Lookup(id string) (Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, id)
	}
	return g, nil
}

// Trigger runs action of game id. Resolution failures are returned as *ActionError.
func (r *Registry) Trigger(id, action string, pressed bool) error {
	g, err := r.Lookup(id)
	if err != nil {
		return &ActionError{Game: id, Action: action, Err: err}
	}
	if err := g.Trigger(action, pressed); err != nil {
		return &ActionError{Game: id, Action: action, Err: err}
	}
	return nil
}

// List describes the registered games sorted by id. Hidden games are included only if requested.
func (r *Registry) List(includeHidden bool) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.games))
	for id, g := range r.games {
		if g.Hidden() && !includeHidden {
			continue
		}
		_, leds := g.(LEDManager)
		infos = append(infos, Info{
			ID:       id,
			Name:     g.Name(),
			Priority: g.Priority(),
			Hidden:   g.Hidden(),
			LEDs:     leds,
			Actions:  g.Actions(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// ShortcutActions lists every shortcut backed action keyed by game id
func (r *Registry) ShortcutActions() map[string][]Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]Action)
	for id, g := range r.games {
		if sp, ok := g.(ShortcutProvider); ok {
			if actions := sp.ShortcutActions(); len(actions) > 0 {
				out[id] = actions
			}
		}
	}
	return out
}

// ManageLEDs runs the LED manager of game id, if it has one
func (r *Registry) ManageLEDs(id string) error {
	g, err := r.Lookup(id)
	if err != nil {
		return err
	}
	if m, ok := g.(LEDManager); ok {
		m.ManageLEDs()
	}
	return nil
}

// normalizeProcess strips directory and case from a process name
func normalizeProcess(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func sortActions(actions []Action) {
	sort.Slice(actions, func(i, j int) bool { return actions[i].ID < actions[j].ID })
}

// Package store persists profiles, macros, custom actions and keyboard shortcuts as JSON documents.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"buttonbox/internal/game"
	"buttonbox/internal/input"
	"buttonbox/internal/macro"
	"buttonbox/internal/profile"
	"buttonbox/internal/protocol"
)

const (
	profilesFile      = "profiles.json"
	macrosFile        = "macros.json"
	customActionsFile = "custom_actions.json"
	shortcutsFile     = "shortcuts.json"
)

// ErrInvalid wraps edits rejected by validation. Stored state is left untouched.
var ErrInvalid = errors.New("store: invalid document")

// Shortcuts maps game id to action id to shortcut
type Shortcuts map[string]map[string]string

// Store reads and replaces whole documents in the application directory
type Store struct {
	mu  sync.RWMutex
	dir string

	shortcuts Shortcuts
}

// New creates a store rooted at dir and loads the shortcut table
func New(dir string) (*Store, error) {
	s := &Store{dir: dir, shortcuts: Shortcuts{}}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	if err := s.read(shortcutsFile, &s.shortcuts); err != nil {
		return nil, err
	}
	if s.shortcuts == nil {
		s.shortcuts = Shortcuts{}
	}
	return s, nil
}

// Dir returns the directory the documents live in
func (s *Store) Dir() string {
	return s.dir
}

// LoadProfiles returns the stored profiles, or an empty set if none were saved
func (s *Store) LoadProfiles() (*profile.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := profile.NewSet()
	if err := s.read(profilesFile, set); err != nil {
		return nil, err
	}
	return set, nil
}

// SaveProfiles replaces the stored profiles
func (s *Store) SaveProfiles(set *profile.Set) error {
	for _, p := range set.Ordered() {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: profile %q: %v", ErrInvalid, p.Name, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(profilesFile, set)
}

// Macros returns the stored macros in their saved order
func (s *Store) Macros() ([]macro.Macro, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var macros []macro.Macro
	if err := s.read(macrosFile, &macros); err != nil {
		return nil, err
	}
	return macros, nil
}

// SetMacros validates and replaces the stored macros
func (s *Store) SetMacros(macros []macro.Macro) error {
	seen := make(map[string]bool, len(macros))
	for _, m := range macros {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if seen[m.Name] {
			return fmt.Errorf("%w: duplicate macro %q", ErrInvalid, m.Name)
		}
		seen[m.Name] = true
	}
	if macros == nil {
		macros = []macro.Macro{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(macrosFile, macros)
}

// CustomActions returns the custom actions keyed by id with display names as values
func (s *Store) CustomActions() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actions := map[string]string{}
	if err := s.read(customActionsFile, &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// SetCustomActions replaces the custom actions
func (s *Store) SetCustomActions(actions map[string]string) error {
	for id, name := range actions {
		if id == "" || strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: custom action %q has no name", ErrInvalid, id)
		}
	}
	if actions == nil {
		actions = map[string]string{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(customActionsFile, actions)
}

// NameCustomActions turns display names into an id keyed table. Names already
// present in existing keep their id; new names get a generated unique id.
func NameCustomActions(existing map[string]string, names []string) map[string]string {
	byName := make(map[string]string, len(existing))
	for id, name := range existing {
		byName[name] = id
	}
	actions := make(map[string]string, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if id, ok := byName[name]; ok {
			if _, dup := actions[id]; !dup {
				actions[id] = name
				continue
			}
		}
		id := game.UniqueID(name, func(id string) bool {
			_, ok := actions[id]
			if !ok {
				_, ok = existing[id]
			}
			return ok
		})
		actions[id] = name
	}
	return actions
}

// Shortcut returns the shortcut configured for an action, or ""
func (s *Store) Shortcut(gameID, action string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shortcuts[gameID][action]
}

// Shortcuts returns a copy of the shortcut table
func (s *Store) Shortcuts() Shortcuts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shortcuts.clone()
}

// SetShortcut validates and stores one shortcut. An empty shortcut removes it.
func (s *Store) SetShortcut(gameID, action, shortcut string) error {
	if err := ValidateShortcut(shortcut); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.shortcuts.clone()
	next.set(gameID, action, shortcut)
	if err := s.write(shortcutsFile, next); err != nil {
		return err
	}
	s.shortcuts = next
	return nil
}

// SetShortcuts validates and replaces the whole shortcut table
func (s *Store) SetShortcuts(table Shortcuts) error {
	next := Shortcuts{}
	for gameID, actions := range table {
		for action, shortcut := range actions {
			if err := ValidateShortcut(shortcut); err != nil {
				return fmt.Errorf("%s.%s: %w", gameID, action, err)
			}
			next.set(gameID, action, shortcut)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(shortcutsFile, next); err != nil {
		return err
	}
	s.shortcuts = next
	return nil
}

// ValidateShortcut accepts key combinations and macro references
func ValidateShortcut(shortcut string) error {
	if name, ok := strings.CutPrefix(shortcut, game.MacroPrefix); ok {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: macro reference without a name", ErrInvalid)
		}
		if err := protocol.Representable(name); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return nil
	}
	if err := input.ValidateShortcut(shortcut); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (t Shortcuts) clone() Shortcuts {
	c := make(Shortcuts, len(t))
	for g, actions := range t {
		m := make(map[string]string, len(actions))
		for a, sc := range actions {
			m[a] = sc
		}
		c[g] = m
	}
	return c
}

func (t Shortcuts) set(gameID, action, shortcut string) {
	if shortcut == "" {
		delete(t[gameID], action)
		if len(t[gameID]) == 0 {
			delete(t, gameID)
		}
		return
	}
	if t[gameID] == nil {
		t[gameID] = map[string]string{}
	}
	t[gameID][action] = shortcut
}

// Games returns the game ids that have shortcuts, sorted
func (t Shortcuts) Games() []string {
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// read decodes a document into v. A missing file leaves v untouched.
func (s *Store) read(name string, v any) error {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// write replaces a document through a temporary file
func (s *Store) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	log.Debug().Str("file", name).Msg("Store: document saved")
	return nil
}

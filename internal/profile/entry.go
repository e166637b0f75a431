// Package profile holds the button bindings selected per target application.
package profile

import (
	"encoding/json"
	"fmt"
)

// EntryType is the kind of effect bound to a control
type EntryType string

const (
	TypeNone       EntryType = ""
	TypeCommand    EntryType = "command"
	TypeGameAction EntryType = "game_action"
)

// ButtonEntry is the effect bound to one physical control
type ButtonEntry struct {
	Type    EntryType
	Command string
	Game    string
	Action  string
}

// None returns an entry without effect
func None() ButtonEntry {
	return ButtonEntry{}
}

// Command returns an entry running a shell command
func Command(cmd string) ButtonEntry {
	return ButtonEntry{Type: TypeCommand, Command: cmd}
}

// GameAction returns an entry triggering a registered game action
func GameAction(game, action string) ButtonEntry {
	return ButtonEntry{Type: TypeGameAction, Game: game, Action: action}
}

// IsNone reports whether the entry has no effect
func (e ButtonEntry) IsNone() bool {
	return e.Type == TypeNone
}

func (e ButtonEntry) String() string {
	switch e.Type {
	case TypeCommand:
		return "command " + e.Command
	case TypeGameAction:
		return e.Game + "." + e.Action
	}
	return "none"
}

type gameActionValue struct {
	Game   string `json:"game"`
	Action string `json:"action"`
}

type entryJSON struct {
	Type  *string         `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the entry as {"type": ..., "value": ...} with null for None.
func (e ButtonEntry) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeNone:
		return []byte(`{"type":null,"value":null}`), nil
	case TypeCommand:
		return json.Marshal(struct {
			Type  EntryType `json:"type"`
			Value string    `json:"value"`
		}{e.Type, e.Command})
	case TypeGameAction:
		return json.Marshal(struct {
			Type  EntryType       `json:"type"`
			Value gameActionValue `json:"value"`
		}{e.Type, gameActionValue{e.Game, e.Action}})
	}
	return nil, fmt.Errorf("profile: unknown entry type %q", e.Type)
}

func (e *ButtonEntry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Type == nil {
		*e = None()
		return nil
	}
	switch EntryType(*raw.Type) {
	case TypeCommand:
		var cmd string
		if err := json.Unmarshal(raw.Value, &cmd); err != nil {
			return fmt.Errorf("profile: command value: %w", err)
		}
		*e = Command(cmd)
	case TypeGameAction:
		var v gameActionValue
		if err := json.Unmarshal(raw.Value, &v); err != nil {
			return fmt.Errorf("profile: game action value: %w", err)
		}
		*e = GameAction(v.Game, v.Action)
	default:
		return fmt.Errorf("profile: unknown entry type %q", *raw.Type)
	}
	return nil
}

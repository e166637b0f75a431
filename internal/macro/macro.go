// Package macro runs named sequences of timed key and mouse steps.
package macro

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"buttonbox/internal/input"
)

var (
	ErrUnknownMacro = errors.New("macro: unknown macro")
	ErrInvalid      = errors.New("macro: invalid macro")
)

// ModeKind selects how often a macro repeats
type ModeKind int

const (
	// ModeTimes runs the sequence a fixed number of times
	ModeTimes ModeKind = iota
	// ModeUntilReleased loops until the button is released
	ModeUntilReleased
	// ModeUntilPressedAgain loops until the button is pressed a second time
	ModeUntilPressedAgain
)

const (
	modeUntilReleased     = "until_released"
	modeUntilPressedAgain = "until_pressed_again"
)

// Mode is the repeat mode of a macro. Times is only used by ModeTimes.
type Mode struct {
	Kind  ModeKind
	Times int
}

// Times returns a mode running the sequence n times
func Times(n int) Mode {
	return Mode{Kind: ModeTimes, Times: n}
}

// UntilReleased returns a mode looping while the button is held
func UntilReleased() Mode {
	return Mode{Kind: ModeUntilReleased}
}

// UntilPressedAgain returns a mode toggled by two presses
func UntilPressedAgain() Mode {
	return Mode{Kind: ModeUntilPressedAgain}
}

func (m Mode) String() string {
	switch m.Kind {
	case ModeUntilReleased:
		return modeUntilReleased
	case ModeUntilPressedAgain:
		return modeUntilPressedAgain
	}
	return fmt.Sprintf("%d times", m.Times)
}

// MarshalJSON encodes the mode as a repeat count or a mode name
func (m Mode) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case ModeUntilReleased:
		return json.Marshal(modeUntilReleased)
	case ModeUntilPressedAgain:
		return json.Marshal(modeUntilPressedAgain)
	}
	return json.Marshal(m.Times)
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*m = Times(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: mode must be a count or a mode name", ErrInvalid)
	}
	switch s {
	case modeUntilReleased:
		*m = UntilReleased()
	case modeUntilPressedAgain:
		*m = UntilPressedAgain()
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalid, s)
	}
	return nil
}

// StepType is the kind of a macro step
type StepType string

const (
	StepPressKey    StepType = "press_key"
	StepReleaseKey  StepType = "release_key"
	StepDelay       StepType = "delay"
	StepLeftMouse   StepType = "left_mouse_button"
	StepMiddleMouse StepType = "middle_mouse_button"
	StepRightMouse  StepType = "right_mouse_button"
)

// MouseAction is what a mouse step does with its button
type MouseAction string

const (
	MouseClick MouseAction = ""
	MouseDown  MouseAction = "down"
	MouseUp    MouseAction = "up"
)

// Step is one action of a macro
type Step struct {
	Type  StepType
	Keys  string
	Delay time.Duration
	Mouse MouseAction
}

// PressKey returns a step pressing a key combo
func PressKey(combo string) Step { return Step{Type: StepPressKey, Keys: combo} }

// ReleaseKey returns a step releasing a key combo
func ReleaseKey(combo string) Step { return Step{Type: StepReleaseKey, Keys: combo} }

// Delay returns a step pausing the macro
func Delay(d time.Duration) Step { return Step{Type: StepDelay, Delay: d} }

// MouseStep returns a step acting on a mouse button
func MouseStep(b input.MouseButton, a MouseAction) Step {
	switch b {
	case input.MouseMiddle:
		return Step{Type: StepMiddleMouse, Mouse: a}
	case input.MouseRight:
		return Step{Type: StepRightMouse, Mouse: a}
	}
	return Step{Type: StepLeftMouse, Mouse: a}
}

// Button returns the mouse button of a mouse step
func (s Step) Button() (input.MouseButton, bool) {
	switch s.Type {
	case StepLeftMouse:
		return input.MouseLeft, true
	case StepMiddleMouse:
		return input.MouseMiddle, true
	case StepRightMouse:
		return input.MouseRight, true
	}
	return 0, false
}

type stepJSON struct {
	Type  StepType        `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the step as {"type": ..., "value": ...}; delays are in milliseconds.
func (s Step) MarshalJSON() ([]byte, error) {
	var value any
	switch s.Type {
	case StepPressKey, StepReleaseKey:
		value = s.Keys
	case StepDelay:
		value = s.Delay.Milliseconds()
	case StepLeftMouse, StepMiddleMouse, StepRightMouse:
		if s.Mouse != MouseClick {
			value = s.Mouse
		}
	default:
		return nil, fmt.Errorf("%w: unknown step type %q", ErrInvalid, s.Type)
	}
	return json.Marshal(struct {
		Type  StepType `json:"type"`
		Value any      `json:"value"`
	}{s.Type, value})
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var raw stepJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	step := Step{Type: raw.Type}
	switch raw.Type {
	case StepPressKey, StepReleaseKey:
		if err := json.Unmarshal(raw.Value, &step.Keys); err != nil {
			return fmt.Errorf("%w: %s expects a key combo", ErrInvalid, raw.Type)
		}
	case StepDelay:
		var ms int64
		if err := json.Unmarshal(raw.Value, &ms); err != nil {
			return fmt.Errorf("%w: delay expects milliseconds", ErrInvalid)
		}
		step.Delay = time.Duration(ms) * time.Millisecond
	case StepLeftMouse, StepMiddleMouse, StepRightMouse:
		var a *string
		if len(raw.Value) > 0 {
			if err := json.Unmarshal(raw.Value, &a); err != nil {
				return fmt.Errorf("%w: %s expects \"down\", \"up\" or null", ErrInvalid, raw.Type)
			}
		}
		if a != nil {
			step.Mouse = MouseAction(*a)
		}
	default:
		return fmt.Errorf("%w: unknown step type %q", ErrInvalid, raw.Type)
	}
	*s = step
	return nil
}

// Macro is a named sequence of steps with a repeat mode
type Macro struct {
	Name    string `json:"name"`
	Mode    Mode   `json:"mode"`
	Actions []Step `json:"actions"`
}

// Validate checks the macro the way an editor would before accepting it
func (m Macro) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalid)
	}
	if m.Mode.Kind == ModeTimes && m.Mode.Times < 0 {
		return fmt.Errorf("%w: %q repeats a negative number of times", ErrInvalid, m.Name)
	}
	for i, s := range m.Actions {
		switch s.Type {
		case StepPressKey, StepReleaseKey:
			if s.Keys == "" {
				return fmt.Errorf("%w: %q step %d has no keys", ErrInvalid, m.Name, i)
			}
			if err := input.ValidateShortcut(s.Keys); err != nil {
				return fmt.Errorf("%w: %q step %d: %v", ErrInvalid, m.Name, i, err)
			}
		case StepDelay:
			if s.Delay < 0 {
				return fmt.Errorf("%w: %q step %d has a negative delay", ErrInvalid, m.Name, i)
			}
		case StepLeftMouse, StepMiddleMouse, StepRightMouse:
			if s.Mouse != MouseClick && s.Mouse != MouseDown && s.Mouse != MouseUp {
				return fmt.Errorf("%w: %q step %d has mouse action %q", ErrInvalid, m.Name, i, s.Mouse)
			}
		default:
			return fmt.Errorf("%w: %q step %d has type %q", ErrInvalid, m.Name, i, s.Type)
		}
	}
	return nil
}

package profile

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Dimensions of the reference button matrix
const (
	Rows = 6
	Cols = 3
)

var ErrBadMatrix = errors.New("profile: button matrix does not match the device")

// Coord addresses one button of the matrix
type Coord struct {
	Row int
	Col int
}

// GameRef names a registered game; empty means unset and encodes as null
type GameRef string

func (g GameRef) MarshalJSON() ([]byte, error) {
	if g == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(g))
}

func (g *GameRef) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		*g = ""
	} else {
		*g = GameRef(*s)
	}
	return nil
}

// Profile is a named set of bindings
type Profile struct {
	// Name is shown to the user and used to select the profile
	Name string `json:"name"`

	// AutoActivate is the game whose detector selects this profile
	AutoActivate GameRef `json:"auto_activate"`

	// LEDProfile is the game whose LED manager drives the LEDs while active
	LEDProfile GameRef `json:"led_profile"`

	ButtonSingle ButtonEntry     `json:"button_single"`
	ButtonMatrix [][]ButtonEntry `json:"button_matrix"`
}

// New returns a profile with every control unbound
func New(name string) *Profile {
	matrix := make([][]ButtonEntry, Rows)
	for r := range matrix {
		matrix[r] = make([]ButtonEntry, Cols)
	}
	return &Profile{Name: name, ButtonMatrix: matrix}
}

// Resolve returns the entry bound to c. Coordinates outside the matrix are a programming error.
func (p *Profile) Resolve(c Coord) ButtonEntry {
	if c.Row < 0 || c.Row >= len(p.ButtonMatrix) || c.Col < 0 || c.Col >= len(p.ButtonMatrix[c.Row]) {
		panic(fmt.Sprintf("profile %q: coordinate (%d, %d) outside matrix", p.Name, c.Row, c.Col))
	}
	return p.ButtonMatrix[c.Row][c.Col]
}

// Bind sets the entry for c
func (p *Profile) Bind(c Coord, e ButtonEntry) {
	p.Resolve(c)
	p.ButtonMatrix[c.Row][c.Col] = e
}

// Validate checks that the matrix has the device dimensions
func (p *Profile) Validate() error {
	if len(p.ButtonMatrix) != Rows {
		return fmt.Errorf("%w: %d rows", ErrBadMatrix, len(p.ButtonMatrix))
	}
	for r, row := range p.ButtonMatrix {
		if len(row) != Cols {
			return fmt.Errorf("%w: row %d has %d columns", ErrBadMatrix, r, len(row))
		}
	}
	return nil
}

// Clone returns a deep copy of the profile
func (p *Profile) Clone() *Profile {
	c := *p
	c.ButtonMatrix = make([][]ButtonEntry, len(p.ButtonMatrix))
	for r, row := range p.ButtonMatrix {
		c.ButtonMatrix[r] = append([]ButtonEntry(nil), row...)
	}
	return &c
}

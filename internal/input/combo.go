package input

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"buttonbox/internal/protocol"
)

var ErrBadToken = errors.New("input: unparseable key token")

// Chord is a set of keys pressed together, modifiers first
type Chord struct {
	Keys []Key
}

func (c Chord) String() string {
	names := make([]string, len(c.Keys))
	for i, k := range c.Keys {
		names[i] = k.String()
	}
	return strings.Join(names, "+")
}

// ParseCombo parses a key combo such as "Ctrl+Shift+A, Alt+Tab".
// Chords are separated by commas and keys within a chord by '+'. Every key but
// the last must be a named key; the last may also be a single character.
// Unparseable tokens are skipped and reported in the returned error.
func ParseCombo(s string) ([]Chord, error) {
	var chords []Chord
	var errs []error
	for _, part := range splitChords(s) {
		tokens := splitTokens(part)
		var chord Chord
		for i, tok := range tokens {
			k, err := parseToken(tok, i == len(tokens)-1)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			chord.Keys = append(chord.Keys, k)
		}
		if len(chord.Keys) > 0 {
			chords = append(chords, chord)
		}
	}
	return chords, errors.Join(errs...)
}

// ValidateShortcut checks a stored shortcut strictly: every token must parse and
// the text must be representable for the device.
func ValidateShortcut(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if err := protocol.Representable(s); err != nil {
		return err
	}
	chords, err := ParseCombo(s)
	if err != nil {
		return err
	}
	if len(chords) == 0 {
		return fmt.Errorf("%w: %q", ErrBadToken, s)
	}
	return nil
}

func parseToken(tok string, last bool) (Key, error) {
	if k, ok := Named(tok); ok {
		return k, nil
	}
	if last && utf8.RuneCountInString(tok) == 1 {
		r, _ := utf8.DecodeRuneInString(tok)
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		return Char(r), nil
	}
	return Key{}, fmt.Errorf("%w: %q", ErrBadToken, tok)
}

// splitChords splits on commas, except a comma directly following '+' which is a literal key.
func splitChords(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] != ',' || (i > start && s[i-1] == '+') {
			continue
		}
		parts = append(parts, s[start:i])
		start = i + 1
	}
	parts = append(parts, s[start:])

	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitTokens splits a chord on '+', keeping a trailing "++" as the literal '+' key.
func splitTokens(chord string) []string {
	literalPlus := chord == "+" || strings.HasSuffix(chord, "++")
	if literalPlus {
		chord = strings.TrimSuffix(chord, "+")
		chord = strings.TrimSuffix(chord, "+")
	}
	var tokens []string
	if chord != "" {
		for _, t := range strings.Split(chord, "+") {
			tokens = append(tokens, strings.TrimSpace(t))
		}
	}
	if literalPlus {
		tokens = append(tokens, "+")
	}
	return tokens
}

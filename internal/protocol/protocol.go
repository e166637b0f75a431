// Package protocol implements the buttonbox serial line protocol.
//
// Every message is a single line of space separated fields terminated by '\n'.
// The host sends HANDSHAKE and LED commands; the device answers with EVENT,
// STATUS and log forwarding lines.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Verbs and tokens used on the wire
const (
	Handshake = "HANDSHAKE"

	verbLED    = "LED"
	verbEvent  = "EVENT"
	verbStatus = "STATUS"

	tokenRotary    = "ROTARYENCODER"
	tokenButton    = "BUTTON"
	tokenSingle    = "SINGLE"
	tokenMatrix    = "MATRIX"
	tokenCW        = "CLOCKWISE"
	tokenCCW       = "COUNTERCLOCKWISE"
	tokenHigh      = "HIGH"
	tokenLow       = "LOW"
	rowSeparator   = ";"
	valueSeparator = ":"
)

// Message is a decoded inbound line
type Message interface {
	isMessage()
}

// Direction is the turning direction of the rotary encoder
type Direction int

const (
	Clockwise Direction = iota
	CounterClockwise
)

func (d Direction) String() string {
	if d == Clockwise {
		return tokenCW
	}
	return tokenCCW
}

// RotaryEvent is sent by the device for every detent of the rotary encoder
type RotaryEvent struct {
	Direction Direction
}

// SingleButtonStatus reports the state of the extra single button
type SingleButtonStatus struct {
	Pressed bool
}

// MatrixStatus reports the state of every button of the matrix, indexed [row][col]
type MatrixStatus struct {
	Grid [][]bool
}

// LogLevel is the level of a microcontroller forwarded log line
type LogLevel string

const (
	LevelDebug    LogLevel = "DEBUG"
	LevelWarning  LogLevel = "WARNING"
	LevelError    LogLevel = "ERROR"
	LevelCritical LogLevel = "CRITICAL"
)

// LogLine is a log message forwarded by the microcontroller
type LogLine struct {
	Level LogLevel
	Text  string
}

// HandshakeReply is the device's answer to a HANDSHAKE command
type HandshakeReply struct{}

func (RotaryEvent) isMessage()        {}
func (SingleButtonStatus) isMessage() {}
func (MatrixStatus) isMessage()       {}
func (LogLine) isMessage()            {}
func (HandshakeReply) isMessage()     {}

// Decode parses one inbound line. A trailing newline is tolerated.
func Decode(line string) (Message, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, &DecodeError{Line: line, Err: ErrEmptyLine}
	}

	switch verb := fields[0]; verb {
	case verbEvent:
		return decodeEvent(line, fields)
	case verbStatus:
		return decodeStatus(line, fields)
	case string(LevelDebug), string(LevelWarning), string(LevelError), string(LevelCritical):
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), verb))
		return LogLine{Level: LogLevel(verb), Text: text}, nil
	case Handshake:
		return HandshakeReply{}, nil
	default:
		return nil, &DecodeError{Line: line, Err: ErrUnknownVerb}
	}
}

func decodeEvent(line string, fields []string) (Message, error) {
	if len(fields) < 3 || fields[1] != tokenRotary {
		return nil, &DecodeError{Line: line, Err: ErrMalformed}
	}
	switch fields[2] {
	case tokenCW:
		return RotaryEvent{Direction: Clockwise}, nil
	case tokenCCW:
		return RotaryEvent{Direction: CounterClockwise}, nil
	}
	return nil, &DecodeError{Line: line, Err: fmt.Errorf("%w: direction %q", ErrMalformed, fields[2])}
}

func decodeStatus(line string, fields []string) (Message, error) {
	if len(fields) < 4 || fields[1] != tokenButton {
		return nil, &DecodeError{Line: line, Err: ErrMalformed}
	}
	switch fields[2] {
	case tokenSingle:
		v, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, &DecodeError{Line: line, Err: fmt.Errorf("%w: %v", ErrBadInteger, err)}
		}
		return SingleButtonStatus{Pressed: v != 0}, nil
	case tokenMatrix:
		grid, err := parseMatrix(fields[3])
		if err != nil {
			return nil, &DecodeError{Line: line, Err: err}
		}
		return MatrixStatus{Grid: grid}, nil
	}
	return nil, &DecodeError{Line: line, Err: fmt.Errorf("%w: status %q", ErrMalformed, fields[2])}
}

// parseMatrix parses "r0;r1;..." where each row is "c0:c1:...".
// Empty fragments left by trailing separators are skipped.
func parseMatrix(s string) ([][]bool, error) {
	var grid [][]bool
	for _, row := range strings.Split(s, rowSeparator) {
		row = strings.TrimSpace(row)
		if row == "" {
			continue
		}
		var cols []bool
		for _, cell := range strings.Split(row, valueSeparator) {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			v, err := strconv.Atoi(cell)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadInteger, err)
			}
			cols = append(cols, v != 0)
		}
		grid = append(grid, cols)
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("%w: empty matrix", ErrMalformed)
	}
	return grid, nil
}

// FormatMatrix renders a grid the way the device reports it.
func FormatMatrix(grid [][]bool) string {
	rows := make([]string, len(grid))
	for i, row := range grid {
		cells := make([]string, len(row))
		for j, pressed := range row {
			if pressed {
				cells[j] = "1"
			} else {
				cells[j] = "0"
			}
		}
		rows[i] = strings.Join(cells, valueSeparator)
	}
	return strings.Join([]string{verbStatus, tokenButton, tokenMatrix, strings.Join(rows, rowSeparator)}, " ")
}

// LED identifies one of the device's LEDs
type LED int

const (
	LEDLeft LED = iota
	LEDMiddle
	LEDRight
	LEDExtra
)

var ledNames = [...]string{"LEFT", "MIDDLE", "RIGHT", "EXTRA"}

// AllLEDs lists every LED in device order
var AllLEDs = []LED{LEDLeft, LEDMiddle, LEDRight, LEDExtra}

func (l LED) String() string {
	if l < 0 || int(l) >= len(ledNames) {
		return fmt.Sprintf("LED(%d)", int(l))
	}
	return ledNames[l]
}

// LEDCommand builds the command switching an LED on or off.
func LEDCommand(led LED, on bool) string {
	state := tokenLow
	if on {
		state = tokenHigh
	}
	return strings.Join([]string{verbLED, state, led.String()}, " ")
}

package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyLine   = errors.New("protocol: empty line")
	ErrUnknownVerb = errors.New("protocol: unknown verb")
	ErrMalformed   = errors.New("protocol: malformed line")
	ErrBadInteger  = errors.New("protocol: invalid integer")
	ErrUnencodable = errors.New("protocol: text cannot be encoded for the device")
)

// DecodeError describes an inbound line that could not be decoded
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Line)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

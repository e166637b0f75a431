package protocol

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// The firmware reads UTF-8 lines; every protocol token is ASCII.
var wireCharset = unicode.UTF8

// Encode turns an outbound command into its wire form, terminated by exactly one '\n'.
func Encode(cmd string) ([]byte, error) {
	cmd = strings.TrimRight(cmd, "\r\n")
	if err := Representable(cmd); err != nil {
		return nil, err
	}
	return []byte(cmd + "\n"), nil
}

// DecodeBytes converts raw wire bytes into a string. Invalid sequences become U+FFFD.
func DecodeBytes(b []byte) string {
	out, _, err := transform.Bytes(wireCharset.NewDecoder(), b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}

// Representable reports whether s can be sent to the device unchanged as one line.
func Representable(s string) error {
	if strings.ContainsAny(s, "\r\n") {
		return fmt.Errorf("%w: embedded line break", ErrUnencodable)
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: invalid UTF-8 %q", ErrUnencodable, s)
	}
	return nil
}

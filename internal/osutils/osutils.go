// Package osutils provides operating system queries used by game detection.
package osutils

import "errors"

// ErrNoForeground is returned when no window has the focus
var ErrNoForeground = errors.New("osutils: no foreground window")

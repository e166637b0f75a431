//go:build !windows

package input

import "errors"

var errUnsupported = errors.New("input injection not supported on this platform")

// SystemInjector is a stub injector for platforms without injection support
type SystemInjector struct{}

// NewInjector creates the platform injector
func NewInjector() *SystemInjector {
	return &SystemInjector{}
}

// InjectKey injects a keyboard event (stub)
func (i *SystemInjector) InjectKey(k Key, pressed bool) error {
	return errUnsupported
}

// InjectMouseButton injects a mouse button event (stub)
func (i *SystemInjector) InjectMouseButton(button MouseButton, pressed bool) error {
	return errUnsupported
}

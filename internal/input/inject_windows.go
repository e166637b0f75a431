//go:build windows

package input

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32        = windows.NewLazySystemDLL("user32.dll")
	procSendInput = user32.NewProc("SendInput")
)

const (
	inputMouse    = 0
	inputKeyboard = 1

	keyeventfExtendedKey = 0x0001
	keyeventfKeyUp       = 0x0002
	keyeventfUnicode     = 0x0004

	mouseeventfLeftDown   = 0x0002
	mouseeventfLeftUp     = 0x0004
	mouseeventfRightDown  = 0x0008
	mouseeventfRightUp    = 0x0010
	mouseeventfMiddleDown = 0x0020
	mouseeventfMiddleUp   = 0x0040
)

type keybdInput struct {
	Vk        uint16
	Scan      uint16
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

type mouseInput struct {
	Dx        int32
	Dy        int32
	MouseData uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

// keyboardEvent and mouseEvent mirror the Win32 INPUT union for each variant
type keyboardEvent struct {
	Type    uint32
	Ki      keybdInput
	Padding uint64
}

type mouseEvent struct {
	Type uint32
	Mi   mouseInput
}

// extended keys need KEYEVENTF_EXTENDEDKEY to be told apart from the numpad
var extendedKeys = map[uint16]bool{
	0x21: true, 0x22: true, 0x23: true, 0x24: true,
	0x25: true, 0x26: true, 0x27: true, 0x28: true,
	0x2D: true, 0x2E: true, 0xA5: true, 0x5B: true, 0x5D: true,
}

// SystemInjector injects input with SendInput
type SystemInjector struct{}

// NewInjector creates the platform injector
func NewInjector() *SystemInjector {
	return &SystemInjector{}
}

// InjectKey injects a keyboard event
func (i *SystemInjector) InjectKey(k Key, pressed bool) error {
	ev := keyboardEvent{Type: inputKeyboard}
	if k.IsChar() {
		if k.Char > 0xFFFF {
			return fmt.Errorf("input: character %q outside the basic plane", k.Char)
		}
		ev.Ki.Scan = uint16(k.Char)
		ev.Ki.Flags = keyeventfUnicode
	} else {
		ev.Ki.Vk = k.Code
		if extendedKeys[k.Code] {
			ev.Ki.Flags |= keyeventfExtendedKey
		}
	}
	if !pressed {
		ev.Ki.Flags |= keyeventfKeyUp
	}
	return sendInput(unsafe.Pointer(&ev), unsafe.Sizeof(ev))
}

// InjectMouseButton injects a mouse button event
func (i *SystemInjector) InjectMouseButton(button MouseButton, pressed bool) error {
	var flags uint32
	switch button {
	case MouseLeft:
		flags = mouseeventfLeftUp
		if pressed {
			flags = mouseeventfLeftDown
		}
	case MouseRight:
		flags = mouseeventfRightUp
		if pressed {
			flags = mouseeventfRightDown
		}
	case MouseMiddle:
		flags = mouseeventfMiddleUp
		if pressed {
			flags = mouseeventfMiddleDown
		}
	default:
		return fmt.Errorf("input: unknown mouse button %v", button)
	}
	ev := mouseEvent{Type: inputMouse, Mi: mouseInput{Flags: flags}}
	return sendInput(unsafe.Pointer(&ev), unsafe.Sizeof(ev))
}

func sendInput(ev unsafe.Pointer, size uintptr) error {
	n, _, err := procSendInput.Call(1, uintptr(ev), size)
	if n != 1 {
		return fmt.Errorf("SendInput failed: %v", err)
	}
	return nil
}

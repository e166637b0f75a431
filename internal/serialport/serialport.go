// Package serialport wraps the platform serial library behind a line oriented port.
package serialport

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// ErrNoData is returned by ReadLine when no complete line arrived within the read timeout.
var ErrNoData = errors.New("serialport: no complete line available")

const (
	readTimeout = 10 * time.Millisecond
	maxLineLen  = 4096
)

// Port is a line oriented serial endpoint
type Port interface {
	// ReadLine returns the next complete line without its terminator, or ErrNoData.
	ReadLine() (string, error)
	Write(p []byte) (int, error)
	// ResetInput discards buffered inbound bytes.
	ResetInput() error
	Close() error
}

// Opener opens a port by name at the given baud rate
type Opener func(name string, baud int) (Port, error)

type linePort struct {
	port serial.Port
	buf  []byte
	tmp  []byte
}

// Open opens name with 8N1 framing at baud.
func Open(name string, baud int) (Port, error) {
	if name == "" {
		return nil, errors.New("serialport: no port configured")
	}
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	return &linePort{port: p, tmp: make([]byte, 256)}, nil
}

func (p *linePort) ReadLine() (string, error) {
	for {
		if i := bytes.IndexByte(p.buf, '\n'); i >= 0 {
			line := string(p.buf[:i])
			p.buf = p.buf[i+1:]
			return line, nil
		}
		n, err := p.port.Read(p.tmp)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", ErrNoData
		}
		p.buf = append(p.buf, p.tmp[:n]...)
		if len(p.buf) > maxLineLen {
			p.buf = p.buf[:0]
		}
	}
}

func (p *linePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *linePort) ResetInput() error {
	p.buf = p.buf[:0]
	return p.port.ResetInputBuffer()
}

func (p *linePort) Close() error {
	return p.port.Close()
}

// PortInfo describes a serial port found on the system
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// ListPorts enumerates the serial ports present on the system.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}

// Describe classifies a serial error for log output.
func Describe(err error) string {
	var portErr *serial.PortError
	if !errors.As(err, &portErr) {
		return "io"
	}
	switch portErr.Code() {
	case serial.PortNotFound:
		return "not found"
	case serial.PortBusy:
		return "busy"
	case serial.PermissionDenied:
		return "permission denied"
	case serial.PortClosed:
		return "closed"
	case serial.InvalidSpeed:
		return "invalid baud rate"
	default:
		return "port error"
	}
}

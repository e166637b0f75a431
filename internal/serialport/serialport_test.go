package serialport

import (
	"errors"
	"testing"
	"time"

	"go.bug.st/serial"
)

// fakeSerial feeds queued chunks through the serial.Port interface
type fakeSerial struct {
	serial.Port
	chunks [][]byte
	reset  int
}

func (f *fakeSerial) Read(p []byte) (int, error) {
	if len(f.chunks) == 0 {
		return 0, nil
	}
	n := copy(p, f.chunks[0])
	f.chunks = f.chunks[1:]
	return n, nil
}

func (f *fakeSerial) ResetInputBuffer() error {
	f.reset++
	return nil
}

func (f *fakeSerial) SetReadTimeout(time.Duration) error { return nil }

func TestReadLineAssemblesChunks(t *testing.T) {
	fs := &fakeSerial{chunks: [][]byte{[]byte("STATUS BUT"), []byte("TON SINGLE 1\nEVENT"), []byte(" ROTARYENCODER CLOCKWISE\n")}}
	p := &linePort{port: fs, tmp: make([]byte, 64)}

	line, err := p.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine returned error: %v", err)
	}
	if line != "STATUS BUTTON SINGLE 1" {
		t.Errorf("Expected first line, got %q", line)
	}

	line, err = p.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine returned error: %v", err)
	}
	if line != "EVENT ROTARYENCODER CLOCKWISE" {
		t.Errorf("Expected second line, got %q", line)
	}

	if _, err := p.ReadLine(); !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData on idle port, got %v", err)
	}
}

func TestReadLineKeepsPartialLine(t *testing.T) {
	fs := &fakeSerial{chunks: [][]byte{[]byte("HANDS")}}
	p := &linePort{port: fs, tmp: make([]byte, 64)}

	if _, err := p.ReadLine(); !errors.Is(err, ErrNoData) {
		t.Fatalf("Expected ErrNoData for partial line, got %v", err)
	}
	fs.chunks = [][]byte{[]byte("HAKE\n")}
	line, err := p.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine returned error: %v", err)
	}
	if line != "HANDSHAKE" {
		t.Errorf("Expected 'HANDSHAKE', got %q", line)
	}
}

func TestResetInputDropsBuffer(t *testing.T) {
	fs := &fakeSerial{chunks: [][]byte{[]byte("stale")}}
	p := &linePort{port: fs, tmp: make([]byte, 64)}
	p.ReadLine()

	if err := p.ResetInput(); err != nil {
		t.Fatalf("ResetInput returned error: %v", err)
	}
	if fs.reset != 1 {
		t.Errorf("Expected the driver buffer to be reset once, got %d", fs.reset)
	}
	if len(p.buf) != 0 {
		t.Errorf("Expected local buffer to be empty, got %q", p.buf)
	}
}

func TestOpenWithoutName(t *testing.T) {
	if _, err := Open("", 9600); err == nil {
		t.Error("Expected error when no port name is given")
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(errors.New("boom")); got != "io" {
		t.Errorf("Expected 'io' for plain errors, got '%s'", got)
	}
}

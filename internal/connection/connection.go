// Package connection maintains the handshaked serial session with the device.
package connection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"buttonbox/internal/protocol"
	"buttonbox/internal/serialport"
)

// State is the position of the connection in its lifecycle
type State int

const (
	// Disconnected: no port is open
	Disconnected State = iota
	// Connecting: the port is open and the handshake is about to be sent
	Connecting
	// AwaitingHandshake: HANDSHAKE was written, waiting for the echo
	AwaitingHandshake
	// Ready: handshake complete, commands and events flow
	Ready
)

var stateNames = [...]string{"disconnected", "connecting", "awaiting_handshake", "ready"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Direction selects a history log
type Direction string

const (
	In   Direction = "in"
	Out  Direction = "out"
	Full Direction = "full"
)

var ErrBadDirection = errors.New("connection: unknown history direction")

// Options tunes timing and limits. Zero values take the defaults.
type Options struct {
	Opener            serialport.Opener
	PollInterval      time.Duration
	RetryDelay        time.Duration
	HandshakeAttempts int
	HistoryLimit      int
	FullHistoryLimit  int
	EventBuffer       int
	Now               func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Opener == nil {
		o.Opener = serialport.Open
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Millisecond
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.HandshakeAttempts <= 0 {
		o.HandshakeAttempts = 100
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 1000
	}
	if o.FullHistoryLimit <= 0 {
		o.FullHistoryLimit = 10000
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Status is a snapshot of the connection flags
type Status struct {
	Port       string `json:"port"`
	Baud       int    `json:"baudrate"`
	State      string `json:"state"`
	Connected  bool   `json:"connected"`
	Handshaked bool   `json:"handshaked"`
	Paused     bool   `json:"paused"`
	Queued     int    `json:"queued"`
}

// Connection owns one serial endpoint. Run drives it; every other method is safe for concurrent use.
type Connection struct {
	opts   Options
	events chan protocol.Message

	mu        sync.Mutex
	portName  string
	baud      int
	state     State
	paused    bool
	reconnect bool
	discard   bool
	queue     []string
	inHist    []string
	outHist   []string
	fullHist  []string
	listeners []func(dir Direction, line string)

	// owned by the pump
	dev      serialport.Port
	attempts int
}

// New creates a disconnected connection for port at baud
func New(port string, baud int, opts Options) *Connection {
	opts = opts.withDefaults()
	return &Connection{
		opts:     opts,
		events:   make(chan protocol.Message, opts.EventBuffer),
		portName: port,
		baud:     baud,
	}
}

// Events delivers decoded device messages in arrival order
func (c *Connection) Events() <-chan protocol.Message {
	return c.events
}

// OnLine registers a callback for every line written or received. Callbacks run on the pump.
func (c *Connection) OnLine(fn func(dir Direction, line string)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// State returns the current state
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether a port is open
func (c *Connection) Connected() bool {
	return c.State() >= Connecting
}

// Handshaked reports whether the device answered the handshake
func (c *Connection) Handshaked() bool {
	return c.State() == Ready
}

// Status returns a snapshot of the connection
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Port:       c.portName,
		Baud:       c.baud,
		State:      c.state.String(),
		Connected:  c.state >= Connecting,
		Handshaked: c.state == Ready,
		Paused:     c.paused,
		Queued:     len(c.queue),
	}
}

// SetPort changes the port and restarts the session
func (c *Connection) SetPort(name string) {
	c.mu.Lock()
	c.portName = name
	c.reconnect = true
	c.mu.Unlock()
}

// SetBaud changes the baud rate and restarts the session
func (c *Connection) SetBaud(baud int) {
	c.mu.Lock()
	c.baud = baud
	c.reconnect = true
	c.mu.Unlock()
}

// Reconnect closes the port and starts over
func (c *Connection) Reconnect() {
	c.mu.Lock()
	c.reconnect = true
	c.mu.Unlock()
}

// Pause suspends all I/O without closing the port
func (c *Connection) Pause() {
	c.setPaused(true)
}

// Resume continues from the state the connection was paused in
func (c *Connection) Resume() {
	c.setPaused(false)
}

func (c *Connection) setPaused(p bool) {
	c.mu.Lock()
	c.paused = p
	c.mu.Unlock()
}

// Paused reports whether the connection is paused
func (c *Connection) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Enqueue appends a command to the outbound queue. Commands that cannot be encoded are rejected.
func (c *Connection) Enqueue(cmd string) error {
	if _, err := protocol.Encode(cmd); err != nil {
		return err
	}
	c.mu.Lock()
	c.queue = append(c.queue, strings.TrimRight(cmd, "\r\n"))
	c.mu.Unlock()
	return nil
}

// DiscardPending drops queued commands and, once ready, any unread input
func (c *Connection) DiscardPending() {
	c.mu.Lock()
	c.queue = nil
	c.discard = true
	c.mu.Unlock()
}

// History returns a copy of a history log
func (c *Connection) History(dir Direction) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var src []string
	switch dir {
	case In:
		src = c.inHist
	case Out:
		src = c.outHist
	case Full:
		src = c.fullHist
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadDirection, dir)
	}
	return append([]string(nil), src...), nil
}

// ExportHistory writes the interleaved history to path, one entry per line
func (c *Connection) ExportHistory(path string) error {
	lines, _ := c.History(Full)
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("export history: %w", err)
	}
	log.Info().Str("path", path).Int("lines", len(lines)).Msg("Connection: history exported")
	return nil
}

// Run drives the state machine until ctx is done, then closes the port
func (c *Connection) Run(ctx context.Context) {
	defer c.closePort()
	for {
		wait := c.step(ctx)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// step performs one cycle and returns how long to sleep before the next
func (c *Connection) step(ctx context.Context) time.Duration {
	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return c.opts.PollInterval
	}
	restart := c.reconnect
	c.reconnect = false
	c.mu.Unlock()

	if restart {
		log.Info().Msg("Connection: reconnecting")
		c.closePort()
		c.setState(Disconnected)
	}

	switch c.State() {
	case Disconnected:
		return c.open()
	case Connecting:
		return c.sendHandshake()
	case AwaitingHandshake:
		return c.pollHandshake()
	default:
		c.pump(ctx)
		return c.opts.PollInterval
	}
}

func (c *Connection) open() time.Duration {
	c.mu.Lock()
	name, baud := c.portName, c.baud
	c.mu.Unlock()

	dev, err := c.opts.Opener(name, baud)
	if err != nil {
		log.Debug().Err(err).Str("port", name).Str("kind", serialport.Describe(err)).Msg("Connection: open failed")
		return c.opts.RetryDelay
	}
	c.dev = dev
	c.setState(Connecting)
	log.Info().Str("port", name).Int("baudrate", baud).Msg("Connection: port opened")
	return 0
}

func (c *Connection) sendHandshake() time.Duration {
	if err := c.dev.ResetInput(); err != nil {
		c.disconnect(err)
		return c.opts.RetryDelay
	}
	if err := c.write(protocol.Handshake); err != nil {
		c.disconnect(err)
		return c.opts.RetryDelay
	}
	c.attempts = 0
	c.setState(AwaitingHandshake)
	return c.opts.PollInterval
}

func (c *Connection) pollHandshake() time.Duration {
	line, err := c.dev.ReadLine()
	switch {
	case errors.Is(err, serialport.ErrNoData):
	case err != nil:
		c.disconnect(err)
		return c.opts.RetryDelay
	default:
		line = c.received(line)
		if strings.HasPrefix(line, protocol.Handshake) {
			c.setState(Ready)
			log.Info().Msg("Connection: handshake complete")
			return 0
		}
	}

	c.attempts++
	if c.attempts >= c.opts.HandshakeAttempts {
		log.Debug().Int("attempts", c.attempts).Msg("Connection: no handshake reply, retrying")
		c.setState(Connecting)
		return c.opts.RetryDelay
	}
	return c.opts.PollInterval
}

// pump writes at most one queued command and reads at most one line
func (c *Connection) pump(ctx context.Context) {
	c.mu.Lock()
	var cmd string
	hasCmd := len(c.queue) > 0
	if hasCmd {
		cmd = c.queue[0]
		c.queue = c.queue[1:]
	}
	discard := c.discard
	c.discard = false
	c.mu.Unlock()

	if hasCmd {
		if err := c.write(cmd); err != nil {
			if errors.Is(err, protocol.ErrUnencodable) {
				log.Warn().Err(err).Msg("Connection: dropping command")
			} else {
				c.mu.Lock()
				c.queue = append([]string{cmd}, c.queue...)
				c.mu.Unlock()
				log.Warn().Err(err).Str("command", cmd).Msg("Connection: write failed, command requeued")
			}
		}
	}

	if discard {
		if err := c.dev.ResetInput(); err != nil {
			c.disconnect(err)
			return
		}
	}

	line, err := c.dev.ReadLine()
	if errors.Is(err, serialport.ErrNoData) {
		return
	}
	if err != nil {
		c.disconnect(err)
		return
	}
	line = c.received(line)

	msg, err := protocol.Decode(line)
	if err != nil {
		log.Warn().Err(err).Msg("Connection: invalid line")
		return
	}
	if _, ok := msg.(protocol.HandshakeReply); ok {
		return
	}
	select {
	case c.events <- msg:
	case <-ctx.Done():
	}
}

func (c *Connection) write(cmd string) error {
	data, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}
	if _, err := c.dev.Write(data); err != nil {
		return err
	}
	c.record(Out, cmd)
	return nil
}

// received converts a raw line from the wire and records it
func (c *Connection) received(raw string) string {
	line := strings.TrimRight(protocol.DecodeBytes([]byte(raw)), "\r")
	c.record(In, line)
	return line
}

func (c *Connection) record(dir Direction, line string) {
	marker := "<<"
	if dir == Out {
		marker = ">>"
	}
	entry := fmt.Sprintf("[%s] %s %s", c.opts.Now().Format(time.RFC3339Nano), marker, line)

	c.mu.Lock()
	if dir == Out {
		c.outHist = appendBounded(c.outHist, line, c.opts.HistoryLimit)
	} else {
		c.inHist = appendBounded(c.inHist, line, c.opts.HistoryLimit)
	}
	c.fullHist = appendBounded(c.fullHist, entry, c.opts.FullHistoryLimit)
	listeners := c.listeners
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(dir, line)
	}
}

func appendBounded(s []string, v string, limit int) []string {
	s = append(s, v)
	if over := len(s) - limit; over > 0 {
		s = append(s[:0:0], s[over:]...)
	}
	return s
}

func (c *Connection) disconnect(err error) {
	log.Warn().Err(err).Str("kind", serialport.Describe(err)).Msg("Connection: lost device")
	c.closePort()
	c.setState(Disconnected)
}

func (c *Connection) closePort() {
	if c.dev == nil {
		return
	}
	if err := c.dev.Close(); err != nil {
		log.Debug().Err(err).Msg("Connection: close failed")
	}
	c.dev = nil
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

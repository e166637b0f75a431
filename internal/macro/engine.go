package macro

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"buttonbox/internal/input"
)

// Actuator performs the key and mouse effects of macro steps
type Actuator interface {
	Press(combo string, pressed bool) error
	Mouse(button input.MouseButton, pressed bool) error
}

// Engine supervises the running macros. At most one worker runs per macro name;
// presence in the running table is what makes a macro "running".
type Engine struct {
	act    Actuator
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	library map[string]Macro
	runs    map[string]*run
	// armed macros ignore the release that belongs to the press which started them
	armed map[string]bool
	// held filters repeated press reports until a release is seen
	held map[string]bool
	wg   sync.WaitGroup
}

type run struct {
	name     string
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func (r *run) signalStop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *run) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// NewEngine creates an engine driving act
func NewEngine(act Actuator) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		act:     act,
		ctx:     ctx,
		cancel:  cancel,
		library: make(map[string]Macro),
		runs:    make(map[string]*run),
		armed:   make(map[string]bool),
		held:    make(map[string]bool),
	}
}

// SetMacros replaces the macro library
func (e *Engine) SetMacros(macros []Macro) {
	lib := make(map[string]Macro, len(macros))
	for _, m := range macros {
		lib[m.Name] = m
	}
	e.mu.Lock()
	e.library = lib
	e.mu.Unlock()
}

// Macro returns a macro of the library by name
func (e *Engine) Macro(name string) (Macro, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.library[name]
	return m, ok
}

// Trigger forwards a button state to the library macro called name.
func (e *Engine) Trigger(name string, pressed bool) error {
	m, ok := e.Macro(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMacro, name)
	}
	e.Handle(m, pressed)
	return nil
}

// Handle applies one button state to m according to its mode. It never blocks on the macro body.
func (e *Engine) Handle(m Macro, pressed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctx.Err() != nil {
		return
	}

	name := m.Name
	if pressed == e.held[name] {
		return
	}
	if pressed {
		e.held[name] = true
	} else {
		delete(e.held, name)
	}

	r, running := e.runs[name]
	switch m.Mode.Kind {
	case ModeTimes:
		if pressed && !running {
			e.spawnLocked(m, m.Mode.Times)
		}
	case ModeUntilReleased:
		if pressed && !running {
			e.spawnLocked(m, -1)
		} else if !pressed && running {
			r.signalStop()
		}
	case ModeUntilPressedAgain:
		switch {
		case pressed && running:
			delete(e.armed, name)
			r.signalStop()
		case pressed:
			e.spawnLocked(m, -1)
			e.armed[name] = true
		case e.armed[name]:
			delete(e.armed, name)
		}
	}
}

// Running reports whether a worker for name is active
func (e *Engine) Running(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.runs[name]
	return ok
}

// RunningNames returns the names of the active macros, sorted
func (e *Engine) RunningNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.runs))
	for name := range e.runs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Done returns a channel closed when the current run of name ends.
// It returns nil if the macro is not running.
func (e *Engine) Done(name string) <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.runs[name]; ok {
		return r.done
	}
	return nil
}

// Stop asks the run of name to end at its next iteration boundary
func (e *Engine) Stop(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.runs[name]; ok {
		r.signalStop()
	}
}

// Shutdown interrupts every worker, including those waiting in a delay, and waits
// for them to release their keys or for ctx to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	// Handle checks ctx under mu, so no run can be added once Wait starts
	e.mu.Lock()
	e.cancel()
	e.mu.Unlock()
	finished := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) spawnLocked(m Macro, times int) {
	r := &run{name: m.Name, stop: make(chan struct{}), done: make(chan struct{})}
	e.runs[m.Name] = r
	e.wg.Add(1)
	log.Debug().Str("macro", m.Name).Str("mode", m.Mode.String()).Msg("Macro: starting")
	go e.work(r, m, times)
}

// work runs the sequence times times, or until stopped when times is negative.
// The stop signal is only observed between passes.
func (e *Engine) work(r *run, m Macro, times int) {
	w := &worker{engine: e, held: make(map[string]bool), mouse: make(map[input.MouseButton]bool)}
	defer func() {
		rec := recover()
		if rec != nil {
			log.Error().Str("macro", m.Name).Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("Macro: worker crashed")
		}
		if rec != nil || e.ctx.Err() != nil {
			w.releaseAll()
		}
		e.finish(r)
	}()

	for pass := 0; times < 0 || pass < times; pass++ {
		if times >= 0 && r.stopped() {
			return
		}
		if !w.runPass(m) {
			return
		}
		if times < 0 && r.stopped() {
			return
		}
	}
}

func (e *Engine) finish(r *run) {
	e.mu.Lock()
	if e.runs[r.name] == r {
		delete(e.runs, r.name)
	}
	e.mu.Unlock()
	close(r.done)
	e.wg.Done()
	log.Debug().Str("macro", r.name).Msg("Macro: finished")
}

// worker tracks what one run holds down so it can be released on shutdown
type worker struct {
	engine *Engine
	held   map[string]bool
	mouse  map[input.MouseButton]bool
}

// runPass executes every step once. It returns false when the engine is shutting down.
func (w *worker) runPass(m Macro) bool {
	act := w.engine.act
	for _, s := range m.Actions {
		if w.engine.ctx.Err() != nil {
			return false
		}
		switch s.Type {
		case StepPressKey:
			if err := act.Press(s.Keys, true); err != nil {
				log.Warn().Err(err).Str("macro", m.Name).Str("keys", s.Keys).Msg("Macro: press failed")
			}
			w.held[s.Keys] = true
		case StepReleaseKey:
			if err := act.Press(s.Keys, false); err != nil {
				log.Warn().Err(err).Str("macro", m.Name).Str("keys", s.Keys).Msg("Macro: release failed")
			}
			delete(w.held, s.Keys)
		case StepDelay:
			if !w.sleep(s.Delay) {
				return false
			}
		case StepLeftMouse, StepMiddleMouse, StepRightMouse:
			b, _ := s.Button()
			w.mouseStep(m.Name, b, s.Mouse)
		default:
			log.Warn().Str("macro", m.Name).Str("type", string(s.Type)).Msg("Macro: skipping unknown step")
		}
	}
	return true
}

func (w *worker) mouseStep(name string, b input.MouseButton, a MouseAction) {
	act := w.engine.act
	var err error
	switch a {
	case MouseDown:
		err = act.Mouse(b, true)
		w.mouse[b] = true
	case MouseUp:
		err = act.Mouse(b, false)
		delete(w.mouse, b)
	default:
		if err = act.Mouse(b, true); err == nil {
			err = act.Mouse(b, false)
		}
	}
	if err != nil {
		log.Warn().Err(err).Str("macro", name).Str("button", b.String()).Msg("Macro: mouse step failed")
	}
}

func (w *worker) sleep(d time.Duration) bool {
	if d <= 0 {
		return w.engine.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-w.engine.ctx.Done():
		return false
	}
}

func (w *worker) releaseAll() {
	for keys := range w.held {
		if err := w.engine.act.Press(keys, false); err != nil {
			log.Warn().Err(err).Str("keys", keys).Msg("Macro: release on exit failed")
		}
	}
	for b := range w.mouse {
		w.engine.act.Mouse(b, false)
	}
}

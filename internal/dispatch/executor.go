package dispatch

import (
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"

	"buttonbox/internal/profile"
)

// CommandRunner starts a shell command without waiting for it
type CommandRunner interface {
	Start(cmd string) error
}

// ActionTrigger runs game actions
type ActionTrigger interface {
	Trigger(game, action string, pressed bool) error
}

// ShellRunner runs commands through the platform shell
type ShellRunner struct{}

func (ShellRunner) Start(command string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/C", command)
	} else {
		cmd = exec.Command("sh", "-c", command)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %q: %w", command, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug().Err(err).Str("command", command).Msg("Dispatch: command exited")
		}
	}()
	return nil
}

// Executor performs button entries. Commands run once per press and are
// re-armed only by a release of the same command.
type Executor struct {
	actions ActionTrigger
	runner  CommandRunner

	mu       sync.Mutex
	awaiting map[string]bool
}

func NewExecutor(actions ActionTrigger, runner CommandRunner) *Executor {
	return &Executor{actions: actions, runner: runner, awaiting: make(map[string]bool)}
}

// Execute applies the button state to an entry
func (x *Executor) Execute(e profile.ButtonEntry, pressed bool) error {
	switch e.Type {
	case profile.TypeNone:
		return nil
	case profile.TypeCommand:
		return x.command(e.Command, pressed)
	case profile.TypeGameAction:
		return x.actions.Trigger(e.Game, e.Action, pressed)
	default:
		return fmt.Errorf("unknown entry type %q", e.Type)
	}
}

func (x *Executor) command(cmd string, pressed bool) error {
	x.mu.Lock()
	if !pressed {
		delete(x.awaiting, cmd)
		x.mu.Unlock()
		return nil
	}
	if x.awaiting[cmd] {
		x.mu.Unlock()
		return nil
	}
	x.awaiting[cmd] = true
	x.mu.Unlock()

	log.Debug().Str("command", cmd).Msg("Dispatch: running command")
	return x.runner.Start(cmd)
}

// Awaiting reports whether cmd ran and has not been released yet
func (x *Executor) Awaiting(cmd string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.awaiting[cmd]
}

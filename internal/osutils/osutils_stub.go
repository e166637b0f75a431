//go:build !windows

package osutils

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// IsAdmin is a stub for non-Windows platforms
func IsAdmin() bool {
	return os.Geteuid() == 0
}

// ForegroundProcess returns the lower-case name of the process owning the foreground window
func ForegroundProcess() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		out, err := exec.Command("osascript", "-e",
			`tell application "System Events" to get name of first application process whose frontmost is true`).Output()
		if err != nil {
			return "", fmt.Errorf("osascript: %w", err)
		}
		return normalize(string(out))
	case "linux":
		out, err := exec.Command("xdotool", "getactivewindow", "getwindowpid").Output()
		if err != nil {
			return "", fmt.Errorf("xdotool: %w", err)
		}
		comm, err := os.ReadFile(fmt.Sprintf("/proc/%s/comm", strings.TrimSpace(string(out))))
		if err != nil {
			return "", err
		}
		return normalize(string(comm))
	}
	return "", fmt.Errorf("foreground detection not supported on %s", runtime.GOOS)
}

func normalize(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", ErrNoForeground
	}
	return name, nil
}

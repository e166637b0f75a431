//go:build linux

package autostart

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnableDisable(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if IsEnabled() {
		t.Fatal("Expected autostart to be disabled initially")
	}
	if err := enable("/opt/buttonbox/buttonbox"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !IsEnabled() {
		t.Error("Expected autostart to be enabled")
	}

	data, err := os.ReadFile(filepath.Join(dir, "autostart", "buttonbox.desktop"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `Exec="/opt/buttonbox/buttonbox"`) {
		t.Errorf("Expected Exec line, got:\n%s", data)
	}

	if err := Disable(); err != nil {
		t.Fatal(err)
	}
	if IsEnabled() {
		t.Error("Expected autostart to be disabled")
	}
	if err := Disable(); err != nil {
		t.Errorf("Expected disabling twice to succeed, got %v", err)
	}
}

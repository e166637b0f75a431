package config

import (
	"errors"
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := m.Load(); err != nil {
		t.Fatalf("Load without file failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Baudrate != 9600 {
		t.Errorf("Expected default baudrate 9600, got %d", cfg.Baudrate)
	}
	if cfg.DefaultPort != "" {
		t.Errorf("Expected no default port, got '%s'", cfg.DefaultPort)
	}
	if cfg.AutoDetectProfiles || cfg.HideToTray || cfg.Dark {
		t.Error("Expected boolean settings to default to false")
	}
}

func TestValueAndSetValue(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewManager(dir)

	var changed []string
	m.RegisterChangeCallback(func(key string) { changed = append(changed, key) })

	if err := m.SetValue("baudrate", 115200); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if err := m.SetValue("default_port", "COM3"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	v, err := m.Value("baudrate")
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if v.(float64) != 115200 {
		t.Errorf("Expected baudrate 115200, got %v", v)
	}
	if len(changed) != 2 || changed[0] != "baudrate" || changed[1] != "default_port" {
		t.Errorf("Expected change callbacks for both keys, got %v", changed)
	}

	reloaded, _ := NewManager(dir)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := reloaded.Get(); got.Baudrate != 115200 || got.DefaultPort != "COM3" {
		t.Errorf("Expected persisted values, got %+v", got)
	}
}

func TestSetValueRejectsBadInput(t *testing.T) {
	m, _ := NewManager(t.TempDir())

	if err := m.SetValue("colour", "red"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Expected ErrUnknownKey, got %v", err)
	}
	if _, err := m.Value("colour"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Expected ErrUnknownKey, got %v", err)
	}
	if err := m.SetValue("baudrate", "fast"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue, got %v", err)
	}
	if got := m.Get().Baudrate; got != 9600 {
		t.Errorf("Expected rejected value to leave baudrate at 9600, got %d", got)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewManager(dir)
	if err := os.WriteFile(m.Path(), []byte(`{"dark": true}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := m.Get()
	if !cfg.Dark {
		t.Error("Expected dark to be loaded")
	}
	if cfg.Baudrate != 9600 {
		t.Errorf("Expected default baudrate to survive partial file, got %d", cfg.Baudrate)
	}
}

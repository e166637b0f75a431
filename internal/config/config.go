// Package config provides settings management for the buttonbox client.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
)

// AppName is the name of the per-user application directory
const AppName = "Buttonbox"

var (
	// ErrUnknownKey is returned when a setting does not exist
	ErrUnknownKey = errors.New("config: unknown key")
	// ErrInvalidValue is returned when a value has the wrong type for its setting
	ErrInvalidValue = errors.New("config: invalid value")
)

// Config represents the application settings
type Config struct {
	// DefaultPort is the serial port opened at startup (empty picks the first port found)
	DefaultPort string `json:"default_port"`

	// Baudrate is the serial link speed
	Baudrate int `json:"baudrate"`

	// AutoDetectProfiles enables foreground based profile selection
	AutoDetectProfiles bool `json:"auto_detect_profiles"`

	// HideToTray keeps the client in the tray only
	HideToTray bool `json:"hide_to_tray"`

	// Dark selects the dark theme for graphical front ends
	Dark bool `json:"dark"`

	// ActiveProfile is the profile selected at startup ("none" for no profile)
	ActiveProfile string `json:"active_profile"`

	// APIEnabled enables the local HTTP control API
	APIEnabled bool `json:"api_enabled"`

	// APIPort is the port for the API server
	APIPort int `json:"api_port"`

	// APIToken is an optional bearer token for API requests
	APIToken string `json:"api_token,omitempty"`

	// LogLevel is the minimum level written to latest.log
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns a new Config with the default settings
func DefaultConfig() *Config {
	return &Config{
		Baudrate:      9600,
		ActiveProfile: "none",
		APIEnabled:    true,
		APIPort:       18400,
		LogLevel:      "info",
	}
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  []func(key string)
}

// NewManager creates a configuration manager storing config.json in dir
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Manager{
		configPath: filepath.Join(dir, "config.json"),
		config:     DefaultConfig(),
	}, nil
}

// AppDir returns the per-user application directory, creating it if needed
func AppDir() (string, error) {
	var dir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support", AppName)
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		dir = filepath.Join(appData, AppName)
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config", "buttonbox")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// Path returns the location of the configuration file
func (m *Manager) Path() string {
	return m.configPath
}

// Load reads the configuration from disk. Missing keys keep their defaults.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", m.configPath, err)
	}
	m.config = cfg
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}

	log.Debug().Str("path", m.configPath).Int("bytes", len(data)).Msg("Config: saving configuration")
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.config
}

// Value returns a single setting by its JSON key
func (m *Manager) Value(key string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	values, err := m.valuesLocked()
	if err != nil {
		return nil, err
	}
	v, ok := values[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return v, nil
}

// Values returns every setting keyed by its JSON name
func (m *Manager) Values() (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valuesLocked()
}

// SetValue updates a single setting and persists the configuration.
// The value must have the JSON type of the setting.
func (m *Manager) SetValue(key string, value any) error {
	m.mu.Lock()

	values, err := m.valuesLocked()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if _, ok := values[key]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	values[key] = value

	data, err := json.Marshal(values)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w for %s: %v", ErrInvalidValue, key, err)
	}
	m.config = cfg
	err = m.saveLocked()
	callbacks := m.onChanged
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(key)
	}
	return err
}

func (m *Manager) valuesLocked() (map[string]any, error) {
	data, err := json.Marshal(m.config)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any)
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	// omitempty fields are still valid keys
	if _, ok := values["api_token"]; !ok {
		values["api_token"] = ""
	}
	return values, nil
}

// RegisterChangeCallback registers a function called with the key of every changed setting
func (m *Manager) RegisterChangeCallback(fn func(key string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = append(m.onChanged, fn)
}

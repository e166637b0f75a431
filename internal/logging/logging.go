// Package logging configures the application log sinks.
//
// latest.log receives "[LEVEL] [timestamp] message" lines from the whole
// application, mcdebug.log receives "[timestamp] [LEVEL] message" lines
// forwarded by the microcontroller. Both files are truncated on start.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	AppLogName    = "latest.log"
	DeviceLogName = "mcdebug.log"

	timeFormat = "2006-01-02T15:04:05.000000Z07:00"
)

// Sinks owns the open log files
type Sinks struct {
	appFile    *os.File
	deviceFile *os.File
	device     zerolog.Logger
}

// Setup truncates the log files in dir and installs the global logger.
// Output is also copied to console when it is not nil.
func Setup(dir, level string, console io.Writer) (*Sinks, error) {
	appFile, err := os.Create(filepath.Join(dir, AppLogName))
	if err != nil {
		return nil, fmt.Errorf("create app log: %w", err)
	}
	deviceFile, err := os.Create(filepath.Join(dir, DeviceLogName))
	if err != nil {
		appFile.Close()
		return nil, fmt.Errorf("create device log: %w", err)
	}

	zerolog.TimeFieldFormat = timeFormat

	var out io.Writer = appFile
	if console != nil {
		out = io.MultiWriter(appFile, console)
	}
	log.Logger = zerolog.New(NewWriter(out)).Level(ParseLevel(level)).With().Timestamp().Logger()

	s := &Sinks{
		appFile:    appFile,
		deviceFile: deviceFile,
		device:     zerolog.New(NewDeviceWriter(deviceFile)).With().Timestamp().Logger(),
	}
	return s, nil
}

// NewWriter formats events as "[LEVEL] [timestamp] message key=value".
func NewWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    true,
		TimeFormat: timeFormat,
		PartsOrder: []string{
			zerolog.LevelFieldName,
			zerolog.TimestampFieldName,
			zerolog.MessageFieldName,
		},
		FormatLevel:     formatLevel,
		FormatTimestamp: bracket,
	}
}

// NewDeviceWriter formats events as "[timestamp] [LEVEL] message".
func NewDeviceWriter(out io.Writer) zerolog.ConsoleWriter {
	w := NewWriter(out)
	w.PartsOrder = []string{
		zerolog.TimestampFieldName,
		zerolog.LevelFieldName,
		zerolog.MessageFieldName,
	}
	return w
}

// Device logs a line forwarded by the microcontroller.
func (s *Sinks) Device(level, text string) {
	s.device.WithLevel(levelFromName(level)).Msg(text)
}

// Close closes both log files
func (s *Sinks) Close() error {
	err := s.appFile.Close()
	if derr := s.deviceFile.Close(); err == nil {
		err = derr
	}
	return err
}

// Critical starts a CRITICAL event on the global logger. Unlike Fatal it does not exit.
func Critical() *zerolog.Event {
	return log.WithLevel(zerolog.FatalLevel)
}

// ParseLevel maps a configured level name to a zerolog level, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	lvl := levelFromName(name)
	if lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func levelFromName(name string) zerolog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARNING", "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "CRITICAL", "FATAL":
		return zerolog.FatalLevel
	}
	return zerolog.NoLevel
}

func formatLevel(i any) string {
	name, _ := i.(string)
	switch name {
	case zerolog.LevelWarnValue:
		name = "WARNING"
	case zerolog.LevelFatalValue, zerolog.LevelPanicValue:
		name = "CRITICAL"
	case "":
		name = "INFO"
	default:
		name = strings.ToUpper(name)
	}
	return "[" + name + "]"
}

func bracket(i any) string {
	return fmt.Sprintf("[%v]", i)
}

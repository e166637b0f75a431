//go:build !windows

package autostart

import (
	"os"

	"github.com/rs/zerolog/log"
)

func enable(execPath string) error {
	path, err := itemPath()
	if err != nil {
		return err
	}
	if err := writeItem(path, execPath); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("Autostart: enabled")
	return nil
}

func disable() error {
	path, err := itemPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	log.Info().Str("path", path).Msg("Autostart: disabled")
	return nil
}

func isEnabled() bool {
	path, err := itemPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

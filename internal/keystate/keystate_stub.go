//go:build !windows

package keystate

import "github.com/rs/zerolog/log"

func (t *Tracker) startPlatform() error {
	log.Info().Msg("Key listener: global hooks not supported on this platform")
	return nil
}

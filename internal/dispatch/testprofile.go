package dispatch

import (
	"strings"

	"buttonbox/internal/game"
	"buttonbox/internal/profile"
	"buttonbox/internal/protocol"
)

// testProfile lights the LED of a button's column while it is held
var testProfile = newTestProfile()

func newTestProfile() *profile.Profile {
	p := profile.New("Test")
	columns := []protocol.LED{protocol.LEDLeft, protocol.LEDMiddle, protocol.LEDRight}
	for r := 0; r < profile.Rows; r++ {
		for c := 0; c < profile.Cols; c++ {
			p.Bind(profile.Coord{Row: r, Col: c}, profile.GameAction(game.TestID, ledAction(columns[c%len(columns)])))
		}
	}
	p.ButtonSingle = profile.GameAction(game.TestID, ledAction(protocol.LEDExtra))
	return p
}

func ledAction(led protocol.LED) string {
	return "led_" + strings.ToLower(led.String())
}

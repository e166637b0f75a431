// Package tray provides system tray functionality using getlantern/systray.
package tray

import (
	"slices"
	"sync"

	"github.com/getlantern/systray"
)

// NoneTitle is the profile menu entry that clears the selection
const NoneTitle = "None"

// Actions are invoked from menu clicks. Nil actions hide their item.
// SelectProfile receives "" for the none entry.
type Actions struct {
	SelectProfile func(name string)
	SetPaused     func(paused bool)
	Reconnect     func()
	ExportHistory func()
	SetTestMode   func(enabled bool)
	Quit          func()
}

type profileItem struct {
	item *systray.MenuItem
	name string
}

// Tray manages the system tray icon and menu
type Tray struct {
	tooltip string
	actions Actions
	readyCh chan struct{}
	quitCh  chan struct{}

	mu       sync.Mutex
	ready    bool
	status   string
	names    []string
	active   string
	paused   bool
	testMode bool

	statusItem   *systray.MenuItem
	profilesMenu *systray.MenuItem
	profileItems []*profileItem
	pauseItem    *systray.MenuItem
	testItem     *systray.MenuItem
}

// New creates a new system tray
func New(tooltip string, actions Actions) *Tray {
	return &Tray{
		tooltip: tooltip,
		actions: actions,
		readyCh: make(chan struct{}),
		quitCh:  make(chan struct{}),
		status:  "Undetected",
	}
}

// Run starts the tray event loop (blocks)
func (t *Tray) Run() {
	systray.Run(t.setupMenu, func() { close(t.quitCh) })
}

// Ready is closed once the menu exists
func (t *Tray) Ready() <-chan struct{} {
	return t.readyCh
}

// Stop stops the tray
func (t *Tray) Stop() {
	systray.Quit()
}

// setupMenu is called when systray is ready
func (t *Tray) setupMenu() {
	systray.SetTitle("Buttonbox")
	systray.SetTooltip(t.tooltip)
	systray.SetIcon(getIcon())

	t.mu.Lock()
	defer t.mu.Unlock()

	t.statusItem = systray.AddMenuItem(t.status, "Device status")
	t.statusItem.Disable()
	systray.AddSeparator()

	t.profilesMenu = systray.AddMenuItem("Profile", "Select the active profile")
	t.applyProfilesLocked()

	systray.AddSeparator()
	t.pauseItem = systray.AddMenuItemCheckbox("Pause", "Suspend serial communication", t.paused)
	t.onClick(t.pauseItem, t.actions.SetPaused != nil, func() {
		t.actions.SetPaused(!t.pauseItem.Checked())
	})
	reconnect := systray.AddMenuItem("Reconnect", "Reopen the serial port")
	t.onClick(reconnect, t.actions.Reconnect != nil, func() { t.actions.Reconnect() })
	export := systray.AddMenuItem("Export serial history", "Write the serial history to a file")
	t.onClick(export, t.actions.ExportHistory != nil, func() { t.actions.ExportHistory() })
	t.testItem = systray.AddMenuItemCheckbox("Test mode", "Mirror buttons on the LEDs", t.testMode)
	t.onClick(t.testItem, t.actions.SetTestMode != nil, func() {
		t.actions.SetTestMode(!t.testItem.Checked())
	})

	systray.AddSeparator()
	quit := systray.AddMenuItem("Quit", "Quit Buttonbox")
	t.onClick(quit, true, func() {
		if t.actions.Quit != nil {
			t.actions.Quit()
		}
		systray.Quit()
	})

	t.ready = true
	close(t.readyCh)
}

// onClick runs fn for every click of item until the tray exits
func (t *Tray) onClick(item *systray.MenuItem, enabled bool, fn func()) {
	if !enabled {
		item.Hide()
		return
	}
	go func() {
		for {
			select {
			case <-item.ClickedCh:
				fn()
			case <-t.quitCh:
				return
			}
		}
	}()
}

// SetStatus shows the device status at the top of the menu
func (t *Tray) SetStatus(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = text
	if t.ready {
		t.statusItem.SetTitle(text)
	}
}

// SetProfiles replaces the profile entries and marks the active one
func (t *Tray) SetProfiles(names []string, active string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if slices.Equal(t.names, names) && t.active == active {
		return
	}
	t.names = append([]string(nil), names...)
	t.active = active
	if t.ready {
		t.applyProfilesLocked()
	}
}

// SetActive marks the active profile
func (t *Tray) SetActive(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = name
	if t.ready {
		t.checkProfilesLocked()
	}
}

// SetPaused updates the pause checkbox
func (t *Tray) SetPaused(paused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = paused
	if t.ready {
		setChecked(t.pauseItem, paused)
	}
}

// SetTestMode updates the test mode checkbox
func (t *Tray) SetTestMode(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.testMode = enabled
	if t.ready {
		setChecked(t.testItem, enabled)
	}
}

// applyProfilesLocked reuses existing submenu items, adds missing ones and hides the rest
func (t *Tray) applyProfilesLocked() {
	titles := profileTitles(t.names)
	for i, title := range titles {
		// the none entry selects ""
		name := ""
		if i > 0 {
			name = title
		}
		if i < len(t.profileItems) {
			pi := t.profileItems[i]
			pi.name = name
			pi.item.SetTitle(title)
			pi.item.Show()
			continue
		}
		pi := &profileItem{item: t.profilesMenu.AddSubMenuItemCheckbox(title, "", false), name: name}
		t.profileItems = append(t.profileItems, pi)
		t.onClick(pi.item, t.actions.SelectProfile != nil, func() {
			t.mu.Lock()
			name := pi.name
			t.mu.Unlock()
			t.actions.SelectProfile(name)
		})
	}
	for _, pi := range t.profileItems[len(titles):] {
		pi.item.Hide()
	}
	t.checkProfilesLocked()
}

func (t *Tray) checkProfilesLocked() {
	titles := profileTitles(t.names)
	checked := checkedIndex(titles, t.active)
	for i, pi := range t.profileItems {
		setChecked(pi.item, i < len(titles) && i == checked)
	}
}

// profileTitles returns the menu titles: the none entry followed by the profile names
func profileTitles(names []string) []string {
	return append([]string{NoneTitle}, names...)
}

// checkedIndex returns the index of the active profile in titles, 0 for none
func checkedIndex(titles []string, active string) int {
	for i, title := range titles[1:] {
		if title == active {
			return i + 1
		}
	}
	return 0
}

func setChecked(item *systray.MenuItem, checked bool) {
	if checked {
		item.Check()
	} else {
		item.Uncheck()
	}
}

// getIcon returns a 16x16 32-bit ICO with a filled square
func getIcon() []byte {
	icon := make([]byte, 1118)
	// ICO Header
	copy(icon[0:6], []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00})
	// Icon Directory
	copy(icon[6:22], []byte{
		0x10, 0x10, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00,
		0x48, 0x04, 0x00, 0x00,
		0x16, 0x00, 0x00, 0x00,
	})
	// DIB Header
	copy(icon[22:62], []byte{
		0x28, 0x00, 0x00, 0x00,
		0x10, 0x00, 0x00, 0x00,
		0x20, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x20, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x04, 0x00, 0x00,
	})
	// BGRA pixels, bottom-up; a 2 pixel transparent border around an orange square
	for y := 2; y < 14; y++ {
		for x := 2; x < 14; x++ {
			p := 62 + (y*16+x)*4
			copy(icon[p:p+4], []byte{0x1E, 0x8C, 0xF0, 0xFF})
		}
	}
	return icon
}

// Buttonbox - desktop companion for the serial button box
// Maps device buttons and the rotary encoder to shell commands, key shortcuts, game actions and macros.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"buttonbox/internal/api"
	"buttonbox/internal/autostart"
	"buttonbox/internal/config"
	"buttonbox/internal/connection"
	"buttonbox/internal/dispatch"
	"buttonbox/internal/game"
	"buttonbox/internal/input"
	"buttonbox/internal/keystate"
	"buttonbox/internal/logging"
	"buttonbox/internal/macro"
	"buttonbox/internal/osutils"
	"buttonbox/internal/serialport"
	"buttonbox/internal/store"
	"buttonbox/internal/tray"
)

var (
	version   = "1.0.0"
	showVer   = flag.Bool("version", false, "Show version")
	listPorts = flag.Bool("list-ports", false, "List serial ports")
	sendLine  = flag.String("send", "", "Send one command to the device and exit")
	autoStart = flag.String("autostart", "", "Enable or disable start at login (on|off)")
	portFlag  = flag.String("port", "", "Serial port (saved as default_port)")
	baudFlag  = flag.Int("baud", 0, "Baud rate (saved as baudrate)")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("buttonbox version %s\n", version)
		return
	}

	if *listPorts {
		printPorts()
		return
	}

	if *autoStart != "" {
		setAutostart(*autoStart)
		return
	}

	dir, err := config.AppDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve app directory: %v\n", err)
		os.Exit(1)
	}

	cfgMgr, err := config.NewManager(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize config: %v\n", err)
		os.Exit(1)
	}
	loadErr := cfgMgr.Load()

	sinks, err := logging.Setup(dir, cfgMgr.Get().LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log files: %v\n", err)
		os.Exit(1)
	}
	defer sinks.Close()
	if loadErr != nil {
		log.Warn().Err(loadErr).Msg("Config: failed to load, using defaults")
	}

	applyFlags(cfgMgr)

	if *sendLine != "" {
		if err := sendOnce(cfgMgr.Get(), *sendLine); err != nil {
			log.Error().Err(err).Msg("Send failed")
			sinks.Close()
			os.Exit(1)
		}
		return
	}

	runService(cfgMgr, sinks, dir)
}

func printPorts() {
	ports, err := serialport.ListPorts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list ports: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Serial Ports:")
	fmt.Println("-------------")
	for _, p := range ports {
		fmt.Printf("%s\n", p.Name)
		if p.IsUSB {
			fmt.Printf("  USB: %s:%s\n", p.VID, p.PID)
		}
		if p.Product != "" {
			fmt.Printf("  Product: %s\n", p.Product)
		}
		if p.SerialNumber != "" {
			fmt.Printf("  Serial: %s\n", p.SerialNumber)
		}
	}
	if len(ports) == 0 {
		fmt.Println("(none)")
	}
}

func setAutostart(mode string) {
	var err error
	switch strings.ToLower(mode) {
	case "on":
		err = autostart.Enable()
	case "off":
		err = autostart.Disable()
	default:
		err = fmt.Errorf("unknown mode %q, use on or off", mode)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Autostart: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Autostart enabled: %v\n", autostart.IsEnabled())
}

// applyFlags persists -port and -baud so the settings survive the session
func applyFlags(cfgMgr *config.Manager) {
	if *portFlag != "" {
		if err := cfgMgr.SetValue("default_port", *portFlag); err != nil {
			log.Warn().Err(err).Msg("Config: failed to save port")
		}
	}
	if *baudFlag > 0 {
		if err := cfgMgr.SetValue("baudrate", *baudFlag); err != nil {
			log.Warn().Err(err).Msg("Config: failed to save baud rate")
		}
	}
}

// resolvePort falls back to the first enumerated port when none is configured
func resolvePort(configured string) string {
	if configured != "" {
		return configured
	}
	ports, err := serialport.ListPorts()
	if err != nil || len(ports) == 0 {
		log.Warn().Err(err).Msg("Serial: no port configured and none found")
		return ""
	}
	log.Info().Str("port", ports[0].Name).Msg("Serial: using first available port")
	return ports[0].Name
}

// sendOnce connects, waits for the handshake and writes a single command
func sendOnce(cfg config.Config, line string) error {
	conn := connection.New(resolvePort(cfg.DefaultPort), cfg.Baudrate, connection.Options{})
	if err := conn.Enqueue(line); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		conn.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("device did not accept %q: %w", line, ctx.Err())
		case <-ticker.C:
			if st := conn.Status(); st.Handshaked && st.Queued == 0 {
				fmt.Printf("Sent: %s\n", line)
				return nil
			}
		}
	}
}

// startWorker runs w until ctx is done; the returned channel closes once Run has returned
func startWorker(ctx context.Context, w interface{ Run(context.Context) }) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	return done
}

func waitStopped(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func statusText(st connection.Status) string {
	switch {
	case st.Paused:
		return "Paused"
	case st.Handshaked:
		return fmt.Sprintf("Connected (%s)", st.Port)
	case st.Connected:
		return fmt.Sprintf("Handshaking (%s)", st.Port)
	default:
		return "Undetected"
	}
}

func runService(cfgMgr *config.Manager, sinks *logging.Sinks, dir string) {
	log.Info().Str("version", version).Msg("Buttonbox starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		t         *tray.Tray
		apiServer *api.Server
		engine    *macro.Engine
		connDone  <-chan struct{}
	)
	shutdown := func() {
		cancel()
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		if connDone != nil {
			if err := waitStopped(sctx, connDone); err != nil {
				log.Warn().Err(err).Msg("Serial: port not closed before exit")
			}
		}
		if engine != nil {
			if err := engine.Shutdown(sctx); err != nil {
				log.Warn().Err(err).Msg("Macros: workers still running at exit")
			}
		}
		if apiServer != nil {
			if err := apiServer.Shutdown(sctx); err != nil {
				log.Warn().Err(err).Msg("API: shutdown failed")
			}
		}
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Critical().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("Fatal error")
			if t != nil {
				t.Stop()
			}
			shutdown()
			sinks.Close()
			os.Exit(1)
		}
	}()

	st, err := store.New(dir)
	if err != nil {
		log.Error().Err(err).Msg("Store: failed to open")
		return
	}

	cfg := cfgMgr.Get()
	conn := connection.New(resolvePort(cfg.DefaultPort), cfg.Baudrate, connection.Options{})

	tracker := keystate.NewTracker()
	if err := tracker.Start(); err != nil {
		log.Warn().Err(err).Msg("Keystate: listener failed to start, held modifiers are not preserved")
	}
	controller := input.NewController(input.NewInjector(), tracker)

	engine = macro.NewEngine(controller)
	if macros, err := st.Macros(); err != nil {
		log.Error().Err(err).Msg("Store: failed to load macros")
	} else {
		engine.SetMacros(macros)
	}

	registry := game.NewRegistry()
	custom, err := game.RegisterBuiltins(registry, game.Env{
		LEDs:       conn,
		Keys:       controller,
		Shortcuts:  st,
		Macros:     engine,
		Foreground: osutils.ForegroundProcess,
	})
	if err != nil {
		panic(err)
	}
	if actions, err := st.CustomActions(); err != nil {
		log.Error().Err(err).Msg("Store: failed to load custom actions")
	} else {
		custom.SetActions(actions)
	}

	disp := dispatch.New(dispatch.Options{
		Device:     conn,
		Executor:   dispatch.NewExecutor(registry, dispatch.ShellRunner{}),
		Registry:   registry,
		Keys:       controller,
		DeviceLog:  sinks.Device,
		AutoDetect: func() bool { return cfgMgr.Get().AutoDetectProfiles },
	})
	if set, err := st.LoadProfiles(); err != nil {
		log.Error().Err(err).Msg("Store: failed to load profiles")
	} else {
		disp.SetProfiles(set)
	}
	if name := cfg.ActiveProfile; name != "" && name != dispatch.NoProfile {
		if err := disp.SelectProfile(name); err != nil {
			log.Warn().Err(err).Str("profile", name).Msg("Dispatch: saved profile not available")
		}
	}

	cfgMgr.RegisterChangeCallback(func(key string) {
		c := cfgMgr.Get()
		switch key {
		case "default_port":
			conn.SetPort(resolvePort(c.DefaultPort))
		case "baudrate":
			conn.SetBaud(c.Baudrate)
		}
	})

	if cfg.APIEnabled {
		apiServer = api.NewServer(api.Deps{
			Config:     cfgMgr,
			Conn:       conn,
			Dispatcher: disp,
			Store:      st,
			Games:      registry,
			Custom:     custom,
			Macros:     engine,
			ExportDir:  dir,
		})
		go func() {
			if err := apiServer.Start(cfg.APIPort); err != nil {
				log.Error().Err(err).Msg("API server error")
			}
		}()
		if !cfg.HideToTray {
			log.Info().Str("url", fmt.Sprintf("http://127.0.0.1:%d/api/status", cfg.APIPort)).Msg("Control API available")
		}
	}

	t = tray.New("Buttonbox", tray.Actions{
		SelectProfile: func(name string) {
			if err := disp.SelectProfile(name); err != nil {
				log.Warn().Err(err).Str("profile", name).Msg("Tray: profile selection failed")
				return
			}
			if err := cfgMgr.SetValue("active_profile", disp.ActiveName()); err != nil {
				log.Warn().Err(err).Msg("Config: failed to save active profile")
			}
		},
		SetPaused: func(paused bool) {
			if paused {
				conn.Pause()
			} else {
				conn.Resume()
			}
		},
		Reconnect: conn.Reconnect,
		ExportHistory: func() {
			path := filepath.Join(dir, api.HistoryFile)
			if err := conn.ExportHistory(path); err != nil {
				log.Error().Err(err).Msg("Tray: history export failed")
				return
			}
			log.Info().Str("path", path).Msg("Serial history exported")
		},
		SetTestMode: disp.SetTestMode,
	})

	refreshProfiles := func() {
		var names []string
		for _, p := range disp.Profiles().Ordered() {
			names = append(names, p.Name)
		}
		t.SetProfiles(names, disp.ActiveName())
	}
	disp.Subscribe(func(ev dispatch.Event) {
		switch ev.Type {
		case dispatch.EventProfile:
			if name, ok := ev.Data.(string); ok {
				t.SetActive(name)
			}
		case dispatch.EventTest:
			if on, ok := ev.Data.(bool); ok {
				t.SetTestMode(on)
			}
		}
	})

	connDone = startWorker(ctx, conn)
	go disp.Run(ctx)

	go func() {
		select {
		case <-t.Ready():
		case <-ctx.Done():
			return
		}
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			refreshProfiles()
			s := conn.Status()
			t.SetStatus(statusText(s))
			t.SetPaused(s.Paused)
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down...")
		t.Stop()
	}()

	log.Info().Msg("Buttonbox running. Press Ctrl+C to stop.")
	t.Run()

	shutdown()
	log.Info().Msg("Buttonbox stopped")
}

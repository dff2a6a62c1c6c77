package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/JeanRibes/looper/config"
	"github.com/JeanRibes/looper/input"
	"github.com/JeanRibes/looper/music"
	. "github.com/JeanRibes/looper/shared"
	"github.com/JeanRibes/looper/ui"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

func main() {
	configFile := flag.String("config", "looper.yaml", "config file")
	writeConfig := flag.Bool("write-config", false, "write the current config to -config and exit")
	inPort := flag.String("input", "", "MIDI input port name, overrides the config")
	outPort := flag.String("output", "", "MIDI output port name, overrides the config")
	useSerial := flag.Bool("serial", false, "read the serial key matrix")
	session := flag.String("session", "", "session file to load at start")
	prefsFile := flag.String("prefs", "looper-prefs.yaml", "recent sessions file")
	headless := flag.Bool("headless", false, "no terminal UI, stop with ctrl+c")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *writeConfig {
		if err := cfg.Save(*configFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if *inPort != "" {
		cfg.MIDI.Input = *inPort
	}
	if *outPort != "" {
		cfg.MIDI.Output = *outPort
	}

	logFile := cfg.Log.File
	if logFile == "" && !*headless {
		// the terminal belongs to the UI
		logFile = "looper.log"
	}
	var logOut io.Writer = os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger := charmlog.NewWithOptions(logOut, charmlog.Options{
		Level:           cfg.LogLevel(),
		ReportCaller:    cfg.Log.Caller,
		ReportTimestamp: true,
		Prefix:          "looper",
	})
	logger.Info("start", "config", *configFile)

	if err := run(cfg, logger, *useSerial, *session, *prefsFile, *headless); err != nil {
		logger.Error(err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Info("stop")
}

func run(cfg *config.Config, logger *charmlog.Logger, useSerial bool, session, prefsFile string, headless bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	withLogger := func(prefix string) context.Context {
		return context.WithValue(ctx, charmlog.ContextKey, logger.WithPrefix(prefix))
	}

	defer midi.CloseDriver()
	in, out, err := openPorts(logger, cfg.MIDI.Input, cfg.MIDI.Output)
	if err != nil {
		return err
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return fmt.Errorf("impossible d'ouvrir ce port MIDI en sortie: %w", err)
	}
	if err := send(midi.Reset()); err != nil {
		logger.Error(err)
	}

	playCtx := withLogger("render")
	renderer := music.NewMIDIRenderer(playCtx, music.Scheduler(playCtx, send), cfg.RendererOptions())
	defer renderer.Silence(send)

	opts, err := cfg.Options(logger.WithPrefix("sequencer"))
	if err != nil {
		return err
	}
	seq, err := music.New(renderer, opts)
	if err != nil {
		return err
	}
	go renderer.Follow(ctx, seq.Subscribe())

	sink := make(chan Message, 64)

	controller := input.NewController(cfg.Controllers)
	controller.Thru = send
	go func() {
		if err := controller.Listen(withLogger("midi"), in, sink); err != nil {
			logger.Error("midi input", "err", err)
		}
	}()

	if useSerial {
		keyboard, err := input.NewKeyboard(cfg.Keys, cfg.Drums, cfg.Kit)
		if err != nil {
			return err
		}
		keymap, err := input.LoadKeymapFile(cfg.Serial.Keymap)
		if err != nil {
			return fmt.Errorf("keymap: %w", err)
		}
		matrix := input.NewKeyMatrix(keymap, keyboard)
		go func() {
			if err := matrix.OpenSerial(withLogger("serial"), cfg.Serial.Port, cfg.Serial.Baud, sink); err != nil {
				logger.Error("serial input", "err", err)
			}
		}()
	}

	if session != "" {
		sink <- Message{Type: StateImport, String: session}
	}

	done := make(chan error, 1)
	go func() {
		done <- music.Run(withLogger("loop"), seq, renderer, cfg.TickInterval, sink)
		cancel()
	}()

	if headless {
		<-ctx.Done()
		return <-done
	}

	prefs, err := ui.LoadPreferences(prefsFile)
	if err != nil {
		logger.Warn("preferences", "err", err)
	}
	if session != "" {
		prefs.AddSession(session)
	}
	p := ui.Program(ui.NewModel(seq.Subscribe(), sink, prefs, opts.Transport))
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return err
	}
	cancel()
	return <-done
}

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/JeanRibes/looper/music"

	charmlog "github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

type Transport struct {
	BPM         float64 `yaml:"bpm"`
	BeatsPerBar int     `yaml:"beats_per_bar"`
	BarsPerLoop int     `yaml:"bars_per_loop"`
}

type Queue struct {
	Size     int    `yaml:"size"`
	Overflow string `yaml:"overflow"`
}

type Log struct {
	Level  string `yaml:"level"`
	Caller bool   `yaml:"caller"`
	File   string `yaml:"file"`
}

type MIDI struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	// voice name -> MIDI channel, 0-based
	Channels map[string]uint8 `yaml:"channels"`
}

type Serial struct {
	Port   string `yaml:"port"`
	Baud   int    `yaml:"baud"`
	Keymap string `yaml:"keymap"`
}

type Config struct {
	Transport         Transport     `yaml:"transport"`
	Queue             Queue         `yaml:"queue"`
	TickInterval      time.Duration `yaml:"tick_interval"`
	RecordOnFirstNote bool          `yaml:"record_on_first_note"`
	Quantize          bool          `yaml:"quantize"`
	Log               Log           `yaml:"log"`

	// computer keyboard: action name -> key code
	Keys map[string]int `yaml:"keys"`
	// computer keyboard: drum piece -> key code
	Drums map[string]int `yaml:"drums"`
	// drum piece -> MIDI note played by the delta voice
	Kit map[string]uint8 `yaml:"kit"`
	// MIDI controller: function -> control change number
	Controllers map[string]uint8 `yaml:"controllers"`

	MIDI   MIDI   `yaml:"midi"`
	Serial Serial `yaml:"serial"`
}

// Key actions understood by the keyboard translator.
var KeyActions = []string{
	"record", "erase", "schedule", "mute", "microphone", "animate",
	"alpha", "beta", "gamma", "delta",
	"track1", "track2", "track3", "track4", "track5", "track6", "track7", "track8",
}

// Controller functions understood by the MIDI translator. record, erase and
// mute are the first of NumTracks consecutive controllers.
var ControllerFunctions = []string{
	"record", "erase", "mute", "schedule_mode", "erase_mode", "sustain_pedal",
	"microphone", "animate",
}

func Default() *Config {
	t := music.DefaultTransport()
	return &Config{
		Transport: Transport{
			BPM:         t.BPM,
			BeatsPerBar: t.BeatsPerBar,
			BarsPerLoop: t.BarsPerLoop,
		},
		Queue:        Queue{Size: 256, Overflow: "reject"},
		TickInterval: music.DEFAULT_TICK,
		Log:          Log{Level: "info"},
		Keys: map[string]int{
			"record":     32,
			"erase":      16,
			"microphone": 77,
			"animate":    190,
			"alpha":      90,
			"beta":       88,
			"gamma":      67,
			"delta":      86,
			"schedule":   83,
			"mute":       78,
			"track1":     49,
			"track2":     50,
			"track3":     51,
			"track4":     52,
			"track5":     53,
			"track6":     54,
			"track7":     55,
			"track8":     56,
		},
		Drums: map[string]int{
			"kick":        48,
			"snare":       49,
			"closedHihat": 50,
			"openHihat":   51,
			"crash":       52,
			"highTom":     53,
			"midTom":      54,
			"lowTom":      55,
			"cowbell":     56,
		},
		Kit: copyKit(music.DefaultDrums),
		Controllers: map[string]uint8{
			"record":        20,
			"erase":         30,
			"mute":          40,
			"schedule_mode": 50,
			"erase_mode":    51,
			"microphone":    52,
			"animate":       53,
			"sustain_pedal": 64,
		},
		MIDI: MIDI{
			Input:    "",
			Output:   "",
			Channels: map[string]uint8{"alpha": 0, "beta": 1, "gamma": 2, "delta": 9},
		},
		Serial: Serial{Baud: 115200, Keymap: "keymap.txt"},
	}
}

func copyKit(kit map[string]uint8) map[string]uint8 {
	out := make(map[string]uint8, len(kit))
	for k, v := range kit {
		out[k] = v
	}
	return out
}

// Load reads filename over the defaults. A missing file gives the defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", music.ErrInvalidConfig, filename, err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// Validate reports every problem at once, each wrapping music.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{music.ErrInvalidConfig}, args...)...))
	}

	if err := c.MusicTransport().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Queue.Size < 0 {
		invalid("queue size %d", c.Queue.Size)
	}
	if _, err := music.ParseOverflowPolicy(c.Queue.Overflow); err != nil {
		errs = append(errs, err)
	}
	if c.TickInterval <= 0 {
		invalid("tick interval %s", c.TickInterval)
	}
	if _, err := charmlog.ParseLevel(c.Log.Level); err != nil {
		invalid("log level: %v", err)
	}

	known := map[string]bool{}
	for _, k := range KeyActions {
		known[k] = true
	}
	for _, name := range sortedKeys(c.Keys) {
		if !known[name] {
			invalid("unknown key action %q", name)
		}
	}
	for _, piece := range sortedKeys(c.Drums) {
		if _, ok := c.Kit[piece]; !ok {
			invalid("drum key %q is not in the kit", piece)
		}
	}
	for _, piece := range sortedKeys(c.Kit) {
		if c.Kit[piece] > 127 {
			invalid("kit note %q out of range: %d", piece, c.Kit[piece])
		}
	}

	known = map[string]bool{}
	for _, f := range ControllerFunctions {
		known[f] = true
	}
	for _, name := range sortedKeys(c.Controllers) {
		if !known[name] {
			invalid("unknown controller %q", name)
		}
		cc := int(c.Controllers[name])
		if name == "record" || name == "erase" || name == "mute" {
			cc += music.NumTracks - 1
		}
		if cc > 127 {
			invalid("controller %q out of range", name)
		}
	}

	for _, name := range sortedKeys(c.MIDI.Channels) {
		if _, err := music.ParseVoice(name); err != nil {
			invalid("midi channel: %v", err)
		}
		if c.MIDI.Channels[name] > 15 {
			invalid("midi channel for %s out of range: %d", name, c.MIDI.Channels[name])
		}
	}
	if c.Serial.Baud <= 0 {
		invalid("serial baud %d", c.Serial.Baud)
	}
	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Config) MusicTransport() music.Transport {
	return music.Transport{
		BPM:         c.Transport.BPM,
		BeatsPerBar: c.Transport.BeatsPerBar,
		BarsPerLoop: c.Transport.BarsPerLoop,
	}
}

// Options builds the sequencer options. logger may be nil.
func (c *Config) Options(logger *charmlog.Logger) (music.Options, error) {
	if err := c.Validate(); err != nil {
		return music.Options{}, err
	}
	overflow, _ := music.ParseOverflowPolicy(c.Queue.Overflow)
	voices := music.DefaultVoices()
	voices[music.Delta] = music.DrumKit{Label: "delta", Pieces: copyKit(c.Kit)}
	return music.Options{
		Transport:         c.MusicTransport(),
		QueueLimit:        c.Queue.Size,
		Overflow:          overflow,
		RecordOnFirstNote: c.RecordOnFirstNote,
		Voices:            voices,
		Logger:            logger,
	}, nil
}

// RendererOptions builds the MIDI renderer options.
func (c *Config) RendererOptions() music.RendererOptions {
	channels := music.DefaultChannels()
	for name, ch := range c.MIDI.Channels {
		if v, err := music.ParseVoice(name); err == nil {
			channels[v] = ch
		}
	}
	return music.RendererOptions{
		Quantize: c.Quantize,
		Channels: channels,
		BPM:      c.Transport.BPM,
	}
}

// LogLevel returns the configured level, info when it does not parse.
func (c *Config) LogLevel() charmlog.Level {
	level, err := charmlog.ParseLevel(c.Log.Level)
	if err != nil {
		return charmlog.InfoLevel
	}
	return level
}

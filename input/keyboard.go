package input

import (
	"fmt"

	"github.com/JeanRibes/looper/music"
	. "github.com/JeanRibes/looper/shared"
)

// Keyboard turns computer key codes into bus messages. record, erase,
// schedule and mute are held like modifier keys: holding erase or schedule
// switches the input mode until released, and a track key only acts while
// record, mute or one of the mode keys is held. Without a modifier the digit
// row plays the drum kit.
type Keyboard struct {
	actions map[int]string
	drums   map[int]uint8
	down    map[int]bool
	playing map[int]bool

	record, erase, schedule, mute bool
}

// NewKeyboard builds a translator from action and drum key codes. kit gives
// the note of each drum piece.
func NewKeyboard(keys map[string]int, drums map[string]int, kit map[string]uint8) (*Keyboard, error) {
	k := &Keyboard{
		actions: make(map[int]string, len(keys)),
		drums:   make(map[int]uint8, len(drums)),
		down:    make(map[int]bool),
		playing: make(map[int]bool),
	}
	for name, code := range keys {
		if other, ok := k.actions[code]; ok {
			return nil, fmt.Errorf("%w: key %d bound to %s and %s", music.ErrInvalidConfig, code, other, name)
		}
		k.actions[code] = name
	}
	for piece, code := range drums {
		note, ok := kit[piece]
		if !ok {
			return nil, fmt.Errorf("%w: no note for drum %q", music.ErrInvalidConfig, piece)
		}
		k.drums[code] = note
	}
	return k, nil
}

func (k *Keyboard) modifier() bool {
	return k.record || k.erase || k.schedule || k.mute
}

func (k *Keyboard) mode() string {
	switch {
	case k.erase:
		return ModeErase
	case k.schedule:
		return ModeSchedule
	}
	return ModeImmediate
}

// Down handles a key press. Auto-repeat presses are ignored.
func (k *Keyboard) Down(code int) []Message {
	if k.down[code] {
		return nil
	}
	k.down[code] = true

	name, isAction := k.actions[code]
	if track, ok := trackKey(name); ok && (k.modifier() || !k.isDrum(code)) {
		if !k.modifier() {
			return nil
		}
		if k.mute {
			return []Message{{Type: MuteToggle, Number: track}}
		}
		return []Message{{Type: RecordToggle, Number: track}}
	}
	if note, ok := k.drums[code]; ok && !k.modifier() {
		k.playing[code] = true
		return []Message{{Type: Note, Number: int(note), Number2: 100, Boolean: true}}
	}
	if !isAction {
		return nil
	}

	switch name {
	case "record":
		k.record = true
	case "mute":
		k.mute = true
	case "erase", "schedule":
		before := k.mode()
		if name == "erase" {
			k.erase = true
		} else {
			k.schedule = true
		}
		if m := k.mode(); m != before {
			return []Message{{Type: InputMode, String: m}}
		}
	case "microphone":
		return []Message{{Type: MicToggle}}
	case "animate":
		return []Message{{Type: AnimateToggle}}
	default:
		if v, err := music.ParseVoice(name); err == nil {
			return []Message{{Type: ModeSwitch, Number: int(v)}}
		}
	}
	return nil
}

// Up handles a key release.
func (k *Keyboard) Up(code int) []Message {
	if !k.down[code] {
		return nil
	}
	delete(k.down, code)

	switch k.actions[code] {
	case "record":
		k.record = false
	case "mute":
		k.mute = false
	case "erase", "schedule":
		before := k.mode()
		if k.actions[code] == "erase" {
			k.erase = false
		} else {
			k.schedule = false
		}
		if m := k.mode(); m != before {
			return []Message{{Type: InputMode, String: m}}
		}
	default:
		if k.playing[code] {
			delete(k.playing, code)
			return []Message{{Type: Note, Number: int(k.drums[code]), Boolean: false}}
		}
	}
	return nil
}

func (k *Keyboard) isDrum(code int) bool {
	_, ok := k.drums[code]
	return ok
}

// trackKey parses "track1".."track8" into a 0-based index.
func trackKey(name string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(name, "track%d", &n); err != nil {
		return 0, false
	}
	if n < 1 || n > NUM_TRACKS {
		return 0, false
	}
	return n - 1, true
}

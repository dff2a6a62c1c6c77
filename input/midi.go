package input

import (
	"context"
	"fmt"

	"github.com/JeanRibes/looper/music"
	. "github.com/JeanRibes/looper/shared"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Controller translates a MIDI controller: notes are played, control changes
// drive the looper and program changes select the voice.
type Controller struct {
	controllers map[string]uint8
	// Thru, when set, gets every note and sustain message as received.
	Thru func(midi.Message) error
}

func NewController(controllers map[string]uint8) *Controller {
	return &Controller{controllers: controllers}
}

// bank returns the track addressed by cc in the NumTracks controllers
// starting at the one named fn.
func (c *Controller) bank(fn string, cc uint8) (int, bool) {
	base, ok := c.controllers[fn]
	if !ok || cc < base || int(cc) >= int(base)+NUM_TRACKS {
		return 0, false
	}
	return int(cc - base), true
}

func (c *Controller) is(fn string, cc uint8) bool {
	v, ok := c.controllers[fn]
	return ok && v == cc
}

// Translate turns one MIDI message into bus messages.
func (c *Controller) Translate(msg midi.Message) []Message {
	var ch, key, vel, cc, val, prog uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return []Message{{Type: Note, Number: int(key), Number2: int(vel), Boolean: true}}
	case msg.GetNoteEnd(&ch, &key):
		return []Message{{Type: Note, Number: int(key), Boolean: false}}
	case msg.GetProgramChange(&ch, &prog):
		if music.VoiceID(prog) >= music.NumVoices {
			return nil
		}
		return []Message{{Type: ModeSwitch, Number: int(prog)}}
	case msg.GetControlChange(&ch, &cc, &val):
		return c.control(cc, val)
	}
	return nil
}

func (c *Controller) control(cc, val uint8) []Message {
	on := val > 0
	switch {
	case c.is("sustain_pedal", cc):
		return []Message{{Type: Pedal, Boolean: val >= 64}}
	case c.is("schedule_mode", cc):
		if on {
			return []Message{{Type: InputMode, String: ModeSchedule}}
		}
		return []Message{{Type: InputMode, String: ModeImmediate}}
	case c.is("erase_mode", cc):
		if on {
			return []Message{{Type: InputMode, String: ModeErase}}
		}
		return []Message{{Type: InputMode, String: ModeImmediate}}
	}
	if !on {
		// buttons act on press
		return nil
	}
	switch {
	case c.is("microphone", cc):
		return []Message{{Type: MicToggle}}
	case c.is("animate", cc):
		return []Message{{Type: AnimateToggle}}
	}
	if track, ok := c.bank("record", cc); ok {
		return []Message{{Type: RecordToggle, Number: track}}
	}
	if track, ok := c.bank("erase", cc); ok {
		return []Message{{Type: EraseToggle, Number: track}}
	}
	if track, ok := c.bank("mute", cc); ok {
		return []Message{{Type: MuteToggle, Number: track}}
	}
	return nil
}

// Listen forwards translated messages from in to sink until ctx is done.
// The logger is taken from ctx.
func (c *Controller) Listen(ctx context.Context, in drivers.In, sink chan<- Message) error {
	logger := charmlog.FromContext(ctx)
	if in == nil {
		return fmt.Errorf("no MIDI input port")
	}
	stop, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		var ch, key, vel uint8
		if c.Thru != nil && (msg.GetNoteStart(&ch, &key, &vel) || msg.GetNoteEnd(&ch, &key) ||
			(msg.GetControlChange(&ch, &key, &vel) && c.is("sustain_pedal", key))) {
			if err := c.Thru(msg); err != nil {
				logger.Error("thru", "err", err)
			}
		}
		for _, m := range c.Translate(msg) {
			select {
			case sink <- m:
			case <-ctx.Done():
				return
			}
		}
	})
	if err != nil {
		return err
	}
	logger.Info("listening", "input", in.String())
	<-ctx.Done()
	stop()
	return nil
}

package input_test

import (
	"testing"

	"github.com/JeanRibes/looper/config"
	"github.com/JeanRibes/looper/input"
	. "github.com/JeanRibes/looper/shared"

	"gitlab.com/gomidi/midi/v2"
)

func TestControllerTranslate(t *testing.T) {
	c := input.NewController(config.Default().Controllers)
	for _, tc := range []struct {
		name string
		msg  midi.Message
		want []Message
	}{
		{"note on", midi.NoteOn(0, 60, 90), []Message{{Type: Note, Number: 60, Number2: 90, Boolean: true}}},
		{"note off", midi.NoteOff(0, 60), []Message{{Type: Note, Number: 60}}},
		{"zero velocity", midi.NoteOn(3, 61, 0), []Message{{Type: Note, Number: 61}}},
		{"record bank", midi.ControlChange(0, 23, 127), []Message{{Type: RecordToggle, Number: 3}}},
		{"erase bank", midi.ControlChange(0, 30, 127), []Message{{Type: EraseToggle, Number: 0}}},
		{"mute bank", midi.ControlChange(0, 47, 1), []Message{{Type: MuteToggle, Number: 7}}},
		{"button release", midi.ControlChange(0, 23, 0), nil},
		{"past the bank", midi.ControlChange(0, 28, 127), nil},
		{"schedule held", midi.ControlChange(0, 50, 127), []Message{{Type: InputMode, String: ModeSchedule}}},
		{"schedule released", midi.ControlChange(0, 50, 0), []Message{{Type: InputMode, String: ModeImmediate}}},
		{"erase mode", midi.ControlChange(0, 51, 127), []Message{{Type: InputMode, String: ModeErase}}},
		{"pedal down", midi.ControlChange(0, 64, 100), []Message{{Type: Pedal, Boolean: true}}},
		{"pedal half", midi.ControlChange(0, 64, 30), []Message{{Type: Pedal}}},
		{"microphone", midi.ControlChange(0, 52, 127), []Message{{Type: MicToggle}}},
		{"animate", midi.ControlChange(0, 53, 127), []Message{{Type: AnimateToggle}}},
		{"program", midi.ProgramChange(0, 3), []Message{{Type: ModeSwitch, Number: 3}}},
		{"unknown program", midi.ProgramChange(0, 12), nil},
		{"pitch bend", midi.Pitchbend(0, 100), nil},
	} {
		got := c.Translate(tc.msg)
		want(t, tc.name, got, tc.want...)
	}
}

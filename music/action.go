package music

import (
	"fmt"
	"time"
)

type ActionKind int

const (
	RecordToggle ActionKind = iota
	EraseToggle
	MuteToggle
	MicToggle
	ModeSwitch
	AnimateToggle
	SetInputMode
	SetTempo
	NoteInput
	PedalChange
)

func (k ActionKind) String() string {
	switch k {
	case RecordToggle:
		return "record"
	case EraseToggle:
		return "erase"
	case MuteToggle:
		return "mute"
	case MicToggle:
		return "microphone"
	case ModeSwitch:
		return "voice"
	case AnimateToggle:
		return "animate"
	case SetInputMode:
		return "input-mode"
	case SetTempo:
		return "tempo"
	case NoteInput:
		return "note"
	case PedalChange:
		return "pedal"
	default:
		return fmt.Sprintf("action(%d)", int(k))
	}
}

// tracked reports whether the action addresses a single track.
func (k ActionKind) tracked() bool {
	return k == RecordToggle || k == EraseToggle || k == MuteToggle
}

type InputMode int

const (
	ModeImmediate InputMode = iota
	ModeErase
	ModeSchedule
)

func (m InputMode) String() string {
	switch m {
	case ModeImmediate:
		return "immediate"
	case ModeErase:
		return "erase"
	case ModeSchedule:
		return "schedule"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseInputMode(s string) (InputMode, error) {
	switch s {
	case "immediate", "":
		return ModeImmediate, nil
	case "erase":
		return ModeErase, nil
	case "schedule":
		return ModeSchedule, nil
	}
	return ModeImmediate, fmt.Errorf("unknown input mode %q", s)
}

// Action is a request from an input collaborator. At and Seq are stamped by
// the queue on arrival.
type Action struct {
	Kind     ActionKind
	Track    int
	Voice    VoiceID
	Mode     InputMode
	BPM      float64
	Note     uint8
	Velocity uint8
	On       bool

	At  time.Time
	Seq uint64
}

func (a Action) String() string {
	switch {
	case a.Kind.tracked():
		return fmt.Sprintf("%s(%d)", a.Kind, a.Track)
	case a.Kind == ModeSwitch:
		return fmt.Sprintf("%s(%s)", a.Kind, a.Voice)
	case a.Kind == SetInputMode:
		return fmt.Sprintf("%s(%s)", a.Kind, a.Mode)
	case a.Kind == SetTempo:
		return fmt.Sprintf("%s(%g)", a.Kind, a.BPM)
	case a.Kind == NoteInput:
		return fmt.Sprintf("%s(%d,%t)", a.Kind, a.Note, a.On)
	default:
		return a.Kind.String()
	}
}

func ToggleRecord(track int) Action { return Action{Kind: RecordToggle, Track: track} }
func ToggleErase(track int) Action  { return Action{Kind: EraseToggle, Track: track} }
func ToggleMute(track int) Action   { return Action{Kind: MuteToggle, Track: track} }
func ToggleMic() Action             { return Action{Kind: MicToggle} }
func ToggleAnimate() Action         { return Action{Kind: AnimateToggle} }

func SwitchVoice(v VoiceID) Action {
	return Action{Kind: ModeSwitch, Voice: v}
}

func ChangeInputMode(m InputMode) Action {
	return Action{Kind: SetInputMode, Mode: m}
}

func ChangeTempo(bpm float64) Action {
	return Action{Kind: SetTempo, BPM: bpm}
}

func PlayNote(note, velocity uint8, on bool) Action {
	return Action{Kind: NoteInput, Note: note, Velocity: velocity, On: on}
}

func SetPedal(down bool) Action {
	return Action{Kind: PedalChange, On: down}
}

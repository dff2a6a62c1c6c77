package shared

import "fmt"

type Event int

const (
	Quit Event = iota
	RecordToggle
	EraseToggle
	MuteToggle
	MicToggle
	AnimateToggle
	ModeSwitch
	InputMode
	Tempo
	Note
	Pedal
	StateImport
	StateExport
)

func (e Event) String() string {
	switch e {
	case Quit:
		return "quit"
	case RecordToggle:
		return "record"
	case EraseToggle:
		return "erase"
	case MuteToggle:
		return "mute"
	case MicToggle:
		return "microphone"
	case AnimateToggle:
		return "animate"
	case ModeSwitch:
		return "voice"
	case InputMode:
		return "input-mode"
	case Tempo:
		return "tempo"
	case Note:
		return "note"
	case Pedal:
		return "pedal"
	case StateImport:
		return "import"
	case StateExport:
		return "export"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Message travels on the bus between the input sources, the UI and the loop.
// Number is the track index for track actions, the note for Note messages and
// the tempo for Tempo; Number2 carries the velocity of a Note.
type Message struct {
	Type    Event
	Number  int
	Boolean bool
	String  string
	Number2 int
}

// Input modes carried in Message.String for InputMode messages.
const (
	ModeImmediate = "immediate"
	ModeErase     = "erase"
	ModeSchedule  = "schedule"
)

const NUM_TRACKS = 8

func TrackName(track int) string {
	return fmt.Sprintf("piste %d", track+1)
}

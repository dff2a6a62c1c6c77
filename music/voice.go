package music

import "fmt"

type VoiceID int

const (
	Alpha VoiceID = iota
	Beta
	Gamma
	Delta
	NumVoices
)

func (v VoiceID) String() string {
	switch v {
	case Alpha:
		return "alpha"
	case Beta:
		return "beta"
	case Gamma:
		return "gamma"
	case Delta:
		return "delta"
	default:
		return fmt.Sprintf("voice(%d)", int(v))
	}
}

func ParseVoice(s string) (VoiceID, error) {
	for v := Alpha; v < NumVoices; v++ {
		if v.String() == s {
			return v, nil
		}
	}
	return Alpha, fmt.Errorf("unknown voice %q", s)
}

// Voice is something the renderer can play. Resolve maps an incoming note to
// the sample that should sound, if any.
type Voice interface {
	Name() string
	Resolve(note uint8) (sample string, ok bool)
}

// SingleSample plays one sample pitched by the note.
type SingleSample struct {
	Label  string
	Sample string
}

func (s SingleSample) Name() string { return s.Label }

func (s SingleSample) Resolve(note uint8) (string, bool) {
	return s.Sample, true
}

// DrumKit maps drum pieces to the notes that trigger them.
type DrumKit struct {
	Label  string
	Pieces map[string]uint8
}

func (d DrumKit) Name() string { return d.Label }

func (d DrumKit) Resolve(note uint8) (string, bool) {
	for piece, n := range d.Pieces {
		if n == note {
			return piece, true
		}
	}
	return "", false
}

// GM percussion notes for the default kit.
var DefaultDrums = map[string]uint8{
	"kick":        36,
	"snare":       38,
	"closedHihat": 42,
	"openHihat":   46,
	"crash":       49,
	"highTom":     50,
	"midTom":      47,
	"lowTom":      45,
	"cowbell":     56,
}

type Voices [NumVoices]Voice

func DefaultVoices() Voices {
	return Voices{
		Alpha: SingleSample{Label: "alpha"},
		Beta:  SingleSample{Label: "beta"},
		Gamma: SingleSample{Label: "gamma"},
		Delta: DrumKit{Label: "delta", Pieces: DefaultDrums},
	}
}

// PerformanceState is what the player is doing right now, apart from the loops.
type PerformanceState struct {
	Selected  VoiceID
	PedalDown bool
	Mic       bool
	Animate   bool
}

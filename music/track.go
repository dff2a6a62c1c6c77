package music

import (
	"fmt"

	"github.com/JeanRibes/looper/shared"
)

const NumTracks = shared.NUM_TRACKS

type TrackState int

const (
	Idle TrackState = iota
	Armed
	Recording
	Playing
	Muted
)

func (s TrackState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Recording:
		return "recording"
	case Playing:
		return "playing"
	case Muted:
		return "muted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// HasLoop reports whether the track holds finished content.
func (s TrackState) HasLoop() bool {
	return s == Playing || s == Muted
}

// Track is one loop slot. The buffer behind Token belongs to the renderer;
// the track only keeps the handle alive.
type Track struct {
	ID        int
	State     TrackState
	LoopBeats int
	Token     Token
	Voice     VoiceID

	recordStart int64 // beat the content is aligned on
	recordLimit int   // grid length captured when recording began
	lastCycle   int64 // beat RenderLoop was last called on
}

// ScheduleEntry holds the actions waiting for the next bar boundary.
type ScheduleEntry struct {
	Record bool
	Mute   bool
}

func (e ScheduleEntry) Empty() bool {
	return !e.Record && !e.Mute
}

func (t *Track) arm() {
	t.State = Armed
}

func (t *Track) startRecording(abs int64, limit int, tok Token, voice VoiceID) {
	t.State = Recording
	t.Token = tok
	t.Voice = voice
	t.LoopBeats = 0
	t.recordStart = abs
	t.recordLimit = limit
}

// elapsed is the number of whole beats recorded so far.
func (t *Track) elapsed(abs int64) int {
	return int(abs - t.recordStart)
}

// stopRecording fixes the loop length: whole beats elapsed, at least one,
// never more than the grid the recording started on.
func (t *Track) stopRecording(abs int64) {
	beats := t.elapsed(abs)
	if beats < 1 {
		beats = 1
	}
	if beats > t.recordLimit {
		beats = t.recordLimit
	}
	t.LoopBeats = beats
	t.State = Playing
	t.lastCycle = abs
}

// erase resets the track and hands back the token it held.
func (t *Track) erase() Token {
	tok := t.Token
	*t = Track{ID: t.ID}
	return tok
}

func (t *Track) toggleMute() {
	if t.State == Muted {
		t.State = Playing
	} else {
		t.State = Muted
	}
}

// wraps reports whether beat abs starts a new cycle of the loop.
func (t *Track) wraps(abs int64) bool {
	if !t.State.HasLoop() || t.LoopBeats <= 0 || abs == t.lastCycle {
		return false
	}
	return (abs-t.recordStart)%int64(t.LoopBeats) == 0
}

package music

import (
	"fmt"

	charmlog "github.com/charmbracelet/log"
)

// cursor is where the clock stands when an action or boundary is resolved.
type cursor struct {
	abs    int64
	phase  float64
	grid   int
	voice  VoiceID
	voices *Voices
}

// Resolver decides when actions reach the tracks. It is the only code that
// moves a track from one state to another and the only writer of the
// schedule entries.
type Resolver struct {
	tracks   [NumTracks]Track
	schedule [NumTracks]ScheduleEntry
	mode     InputMode

	renderer  Renderer
	feed      *Feed
	logger    *charmlog.Logger
	armOnNote bool
}

func newResolver(r Renderer, feed *Feed, logger *charmlog.Logger, armOnNote bool) *Resolver {
	res := &Resolver{
		renderer:  r,
		feed:      feed,
		logger:    logger,
		armOnNote: armOnNote,
	}
	for i := range res.tracks {
		res.tracks[i].ID = i
	}
	return res
}

func (r *Resolver) Mode() InputMode { return r.mode }

func (r *Resolver) SetMode(m InputMode) error {
	if m < ModeImmediate || m > ModeSchedule {
		return fmt.Errorf("unknown input mode %d", int(m))
	}
	if m == r.mode {
		return nil
	}
	r.logger.Debug("input mode", "from", r.mode, "to", m)
	r.mode = m
	r.feed.Publish(ModeChanged{Mode: m})
	return nil
}

// Resolve applies or defers one dequeued track action.
func (r *Resolver) Resolve(a Action, at cursor) error {
	if a.Kind == NoteInput {
		return r.note(a, at)
	}
	if a.Track < 0 || a.Track >= NumTracks {
		return trackErr(a.Track, a.Kind, ErrUnknownTrack)
	}

	kind := a.Kind
	if kind == RecordToggle && r.mode == ModeErase {
		kind = EraseToggle
	}

	var err error
	switch kind {
	case EraseToggle:
		r.erase(a.Track, at)
	case RecordToggle:
		if r.mode == ModeSchedule {
			r.pend(a.Track, ScheduleEntry{Record: true})
			return nil
		}
		err = r.record(a.Track, at, r.armOnNote)
	case MuteToggle:
		if r.mode == ModeSchedule {
			r.pend(a.Track, ScheduleEntry{Mute: true})
			return nil
		}
		err = r.mute(a.Track, at)
	default:
		err = fmt.Errorf("not a track action: %s", kind)
	}
	if err != nil {
		return trackErr(a.Track, kind, err)
	}
	return nil
}

// pend overwrites the pending fields set in e. Writing the same field twice
// in one bar is the same as writing it once.
func (r *Resolver) pend(id int, e ScheduleEntry) {
	entry := r.schedule[id]
	if e.Record {
		entry.Record = true
	}
	if e.Mute {
		entry.Mute = true
	}
	if entry == r.schedule[id] {
		return
	}
	r.schedule[id] = entry
	r.logger.Debug("scheduled", "track", id, "record", entry.Record, "mute", entry.Mute)
	r.feed.Publish(ScheduleChanged{Track: id, Entry: entry})
}

// busy returns the track other than id that holds the recorder, or -1.
func (r *Resolver) busy(id int) int {
	for i := range r.tracks {
		if i == id {
			continue
		}
		if s := r.tracks[i].State; s == Recording || s == Armed {
			return i
		}
	}
	return -1
}

func (r *Resolver) record(id int, at cursor, arm bool) error {
	t := &r.tracks[id]
	switch t.State {
	case Idle:
		if other := r.busy(id); other >= 0 {
			return fmt.Errorf("%w (track %d)", ErrTrackBusy, other)
		}
		if arm {
			r.transition(t, Armed, at.abs, t.arm)
			return nil
		}
		return r.startRecording(t, at)
	case Armed:
		return r.startRecording(t, at)
	case Recording:
		r.stopRecording(t, at.abs)
		return nil
	default:
		return ErrOverdub
	}
}

func (r *Resolver) startRecording(t *Track, at cursor) error {
	tok, err := r.renderer.AllocateBuffer(t.ID)
	if err != nil {
		if t.State != Idle {
			r.transition(t, Idle, at.abs, func() { t.erase() })
		}
		return fmt.Errorf("%w: %w", ErrBufferUnavailable, err)
	}
	r.transition(t, Recording, at.abs, func() {
		t.startRecording(at.abs, at.grid, tok, at.voice)
	})
	return nil
}

func (r *Resolver) stopRecording(t *Track, abs int64) {
	r.transition(t, Playing, abs, func() { t.stopRecording(abs) })
	r.renderer.RenderLoop(t.Token, t.LoopBeats)
}

// erase is never deferred. It also drops whatever was scheduled for the track.
func (r *Resolver) erase(id int, at cursor) {
	if !r.schedule[id].Empty() {
		r.schedule[id] = ScheduleEntry{}
		r.feed.Publish(ScheduleChanged{Track: id})
	}
	t := &r.tracks[id]
	if t.State == Idle && t.Token == 0 {
		return
	}
	var tok Token
	r.transition(t, Idle, at.abs, func() { tok = t.erase() })
	if tok != 0 {
		r.renderer.ReleaseBuffer(tok)
	}
}

func (r *Resolver) mute(id int, at cursor) error {
	t := &r.tracks[id]
	if !t.State.HasLoop() {
		return ErrNoContent
	}
	next := Muted
	if t.State == Muted {
		next = Playing
	}
	r.transition(t, next, at.abs, t.toggleMute)
	if m, ok := r.renderer.(Muter); ok {
		m.MuteLoop(t.Token, next == Muted)
	}
	return nil
}

// note starts an armed track on the first key down, then feeds the
// recording track.
func (r *Resolver) note(a Action, at cursor) error {
	for i := range r.tracks {
		t := &r.tracks[i]
		if t.State == Armed && a.On {
			if err := r.startRecording(t, at); err != nil {
				return trackErr(i, NoteInput, err)
			}
		}
		if t.State != Recording {
			continue
		}
		c, ok := r.renderer.(Capturer)
		if !ok {
			return nil
		}
		sample, known := "", true
		if at.voices != nil && at.voices[at.voice] != nil {
			sample, known = at.voices[at.voice].Resolve(a.Note)
		}
		if !known && a.On {
			return nil
		}
		c.Capture(t.Token, NoteEvent{
			Note:     a.Note,
			Velocity: a.Velocity,
			On:       a.On,
			Voice:    at.voice,
			Sample:   sample,
			Beat:     float64(t.elapsed(at.abs)) + at.phase,
		})
		return nil
	}
	return nil
}

// Boundary runs the effects due at one crossed beat: recordings that filled
// their grid stop, the schedule fires on bar boundaries, loops start over.
func (r *Resolver) Boundary(b Boundary, at cursor) []error {
	var errs []error
	for i := range r.tracks {
		t := &r.tracks[i]
		if t.State == Recording && t.elapsed(b.Abs) >= t.recordLimit {
			r.logger.Debug("grid filled", "track", i, "beats", t.recordLimit)
			r.stopRecording(t, b.Abs)
		}
	}
	if b.Kind == BarBoundary {
		errs = r.applySchedule(at)
	}
	for i := range r.tracks {
		t := &r.tracks[i]
		if !t.wraps(b.Abs) {
			continue
		}
		t.lastCycle = b.Abs
		if t.State == Playing {
			r.renderer.RenderLoop(t.Token, t.LoopBeats)
		}
		r.feed.Publish(LoopCycle{Track: i, LoopBeats: t.LoopBeats, Abs: b.Abs})
	}
	return errs
}

// applySchedule fires every pending entry in one pass. Mutes and stops go
// first so a recorder freed at this bar can be taken by another track.
// A mute pending together with a record wins over it.
func (r *Resolver) applySchedule(at cursor) []error {
	pending := r.schedule
	r.schedule = [NumTracks]ScheduleEntry{}

	var errs []error
	for i, e := range pending {
		if e.Empty() {
			continue
		}
		r.feed.Publish(ScheduleChanged{Track: i})
		switch {
		case e.Mute:
			if err := r.mute(i, at); err != nil {
				errs = append(errs, trackErr(i, MuteToggle, err))
			}
			pending[i].Record = false
		case r.tracks[i].State == Recording:
			r.stopRecording(&r.tracks[i], at.abs)
			pending[i].Record = false
		}
	}
	for i, e := range pending {
		if !e.Record {
			continue
		}
		if err := r.record(i, at, false); err != nil {
			errs = append(errs, trackErr(i, RecordToggle, err))
		}
	}
	return errs
}

// restore puts a loaded loop on an idle track, aligned on beat abs.
func (r *Resolver) restore(l Loop, abs int64) error {
	if l.Track < 0 || l.Track >= NumTracks {
		return trackErr(l.Track, RecordToggle, ErrUnknownTrack)
	}
	t := &r.tracks[l.Track]
	if t.State != Idle {
		return trackErr(l.Track, RecordToggle, ErrOverdub)
	}
	if l.LoopBeats <= 0 || l.Token == 0 {
		return trackErr(l.Track, RecordToggle, ErrNoContent)
	}
	next := Playing
	if l.Muted {
		next = Muted
	}
	r.transition(t, next, abs, func() {
		t.State = next
		t.Token = l.Token
		t.Voice = l.Voice
		t.LoopBeats = l.LoopBeats
		t.recordStart = abs
		t.recordLimit = l.LoopBeats
		t.lastCycle = abs
	})
	if m, ok := r.renderer.(Muter); ok && l.Muted {
		m.MuteLoop(t.Token, true)
	}
	if next == Playing {
		r.renderer.RenderLoop(t.Token, t.LoopBeats)
	}
	return nil
}

func (r *Resolver) transition(t *Track, next TrackState, abs int64, apply func()) {
	old := t.State
	apply()
	t.State = next
	r.logger.Debug("track", "id", t.ID, "from", old, "to", next, "beats", t.LoopBeats, "abs", abs)
	r.feed.Publish(TrackStateChanged{
		Track:     t.ID,
		Old:       old,
		New:       next,
		LoopBeats: t.LoopBeats,
		Abs:       abs,
	})
}

// recorders counts tracks currently recording; it must never exceed one.
func (r *Resolver) recorders() int {
	n := 0
	for i := range r.tracks {
		if r.tracks[i].State == Recording {
			n++
		}
	}
	return n
}

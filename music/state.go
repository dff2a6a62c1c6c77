package music

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const STATE_PREALLOCATION = 128

// bank holds the notes of one loop and its player.
type bank struct {
	track  int
	notes  RecTrack
	held   map[uint8]int // key -> index in notes of the note still down
	beats  int
	muted  bool
	fresh  bool // recorded, not yet played
	cancel context.CancelFunc
}

// MIDIRenderer keeps loops as MIDI notes and plays them on a MIDI output.
// Its methods are safe for concurrent use.
type MIDIRenderer struct {
	mu       sync.Mutex
	banks    map[Token]*bank
	next     Token
	maxBanks int
	quantize bool
	channels [NumVoices]uint8

	ctx  context.Context
	send func(midi.Message) error
	bpm  atomic.Uint64
}

type RendererOptions struct {
	// MaxBanks caps the number of live buffers, NumTracks when zero.
	MaxBanks int
	// Quantize snaps a new loop to the grid before its first cycle.
	Quantize bool
	// Channels maps each voice to a MIDI channel.
	Channels [NumVoices]uint8
	BPM      float64
}

func DefaultChannels() [NumVoices]uint8 {
	return [NumVoices]uint8{Alpha: 0, Beta: 1, Gamma: 2, Delta: 9}
}

// NewMIDIRenderer plays through send until ctx is done. The logger is taken
// from ctx.
func NewMIDIRenderer(ctx context.Context, send func(midi.Message) error, opts RendererOptions) *MIDIRenderer {
	if opts.MaxBanks <= 0 {
		opts.MaxBanks = NumTracks
	}
	if opts.BPM <= 0 {
		opts.BPM = DefaultTransport().BPM
	}
	r := &MIDIRenderer{
		banks:    make(map[Token]*bank),
		maxBanks: opts.MaxBanks,
		quantize: opts.Quantize,
		channels: opts.Channels,
		ctx:      ctx,
		send:     send,
	}
	r.SetBPM(opts.BPM)
	return r
}

func (r *MIDIRenderer) SetBPM(bpm float64) {
	r.bpm.Store(math.Float64bits(bpm))
}

func (r *MIDIRenderer) BPM() float64 {
	return math.Float64frombits(r.bpm.Load())
}

func (r *MIDIRenderer) AllocateBuffer(track int) (Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.banks) >= r.maxBanks {
		return 0, fmt.Errorf("all %d banks in use", r.maxBanks)
	}
	r.next++
	r.banks[r.next] = &bank{
		track: track,
		notes: make(RecTrack, 0, STATE_PREALLOCATION),
		held:  make(map[uint8]int),
		fresh: true,
	}
	return r.next, nil
}

func (r *MIDIRenderer) ReleaseBuffer(tok Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.banks[tok]
	if !ok {
		return
	}
	if b.cancel != nil {
		b.cancel()
	}
	delete(r.banks, tok)
}

func (r *MIDIRenderer) Capture(tok Token, ev NoteEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.banks[tok]
	if !ok {
		return
	}
	at := beatTicks(ev.Beat)
	if ev.On {
		b.held[ev.Note] = len(b.notes)
		b.notes = append(b.notes, RecEvent{
			note:    ev.Note,
			vel:     ev.Velocity,
			channel: r.channels[ev.Voice],
			delta:   at,
		})
		return
	}
	if i, ok := b.held[ev.Note]; ok {
		if at > b.notes[i].delta {
			b.notes[i].duration = at - b.notes[i].delta
		}
		delete(b.held, ev.Note)
	}
}

func (r *MIDIRenderer) MuteLoop(tok Token, muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.banks[tok]; ok {
		b.muted = muted
	}
}

// RenderLoop starts one cycle of the loop, cutting the previous one short.
// The first call closes the notes still held when recording stopped.
func (r *MIDIRenderer) RenderLoop(tok Token, loopBeats int) {
	r.mu.Lock()
	b, ok := r.banks[tok]
	if !ok {
		r.mu.Unlock()
		return
	}
	loopTicks := uint32(loopBeats) * uint32(TICKS)
	for key, i := range b.held {
		if b.notes[i].delta < loopTicks {
			b.notes[i].duration = loopTicks - b.notes[i].delta
		}
		delete(b.held, key)
	}
	b.notes = b.notes.fit(loopTicks)
	b.notes.sort()
	b.beats = loopBeats
	if b.cancel != nil {
		b.cancel()
	}
	ctx, cancel := context.WithCancel(r.ctx)
	b.cancel = cancel
	fresh := b.fresh
	b.fresh = false
	notes := append(RecTrack(nil), b.notes...)
	r.mu.Unlock()

	logger := charmlog.FromContext(r.ctx)
	go func() {
		if fresh && r.quantize && len(notes) > 0 {
			q, err := quantize(notes, r.BPM())
			if err != nil {
				logger.Warn("quantize", "track", b.track, "err", err)
			} else {
				notes = q
				r.replace(tok, q)
			}
		}
		muted := func() bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			return b.muted
		}
		if err := PlayRTrack(ctx, notes, loopTicks, r.BPM, muted, r.send); err != nil {
			logger.Error("play", "track", b.track, "err", err)
		}
	}()
}

func (r *MIDIRenderer) replace(tok Token, notes RecTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.banks[tok]; ok {
		b.notes = notes
	}
}

// Notes returns how many notes a buffer holds.
func (r *MIDIRenderer) Notes(tok Token) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.banks[tok]; ok {
		return len(b.notes)
	}
	return 0
}

// Follow keeps the playback tempo in step with the clock until the
// subscription is closed or ctx is done.
func (r *MIDIRenderer) Follow(ctx context.Context, sub *Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-sub.C():
			if !ok {
				return
			}
			if cb, ok := n.(ClockBoundary); ok && cb.BPM != r.BPM() {
				r.SetBPM(cb.BPM)
			}
		}
	}
}

// Silence stops every player and sends all-notes-off on the voice channels
// through send, which may bypass a stopped scheduler.
func (r *MIDIRenderer) Silence(send func(midi.Message) error) {
	r.mu.Lock()
	for _, b := range r.banks {
		if b.cancel != nil {
			b.cancel()
		}
	}
	r.mu.Unlock()
	for _, ch := range r.channels {
		send(midi.ControlChange(ch, 123, 0))
	}
}

const conductorText = "looper bars=%d"
const trackText = "track=%d beats=%d voice=%s muted=%t"

// SaveSession writes the transport and every loop to a MIDI file. Track 0
// carries tempo, meter and loop size, then one track per loop.
func (r *MIDIRenderer) SaveSession(filepath string, t Transport, tracks [NumTracks]Track) (errs error) {
	f := smf.New()
	f.TimeFormat = TICKS

	conductor := smf.Track{}
	conductor.Add(0, smf.MetaTempo(t.BPM))
	conductor.Add(0, smf.MetaMeter(uint8(t.BeatsPerBar), 4))
	conductor.Add(0, smf.MetaText(fmt.Sprintf(conductorText, t.BarsPerLoop)))
	conductor.Close(0)
	if err := f.Add(conductor); err != nil {
		errs = errors.Join(errs, err)
	}

	r.mu.Lock()
	for _, tr := range tracks {
		if !tr.State.HasLoop() {
			continue
		}
		b, ok := r.banks[tr.Token]
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("track %d: buffer %d is gone", tr.ID, tr.Token))
			continue
		}
		header := smf.MetaText(fmt.Sprintf(trackText, tr.ID, tr.LoopBeats, tr.Voice, tr.State == Muted))
		if err := f.Add(b.notes.Convert(header)); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	r.mu.Unlock()

	if err := f.WriteFile(filepath); err != nil {
		errs = errors.Join(errs, err)
	}
	return errs
}

// LoadSession reads a file written by SaveSession. Every loop gets a fresh
// buffer; the caller hands them to the sequencer with Restore.
func (r *MIDIRenderer) LoadSession(filepath string) (Transport, []Loop, error) {
	t := DefaultTransport()
	f, err := smf.ReadFile(filepath)
	if err != nil {
		return t, nil, err
	}
	if f.NumTracks() < 1 {
		return t, nil, errors.New("no tracks in file")
	}

	for _, ev := range f.Tracks[0] {
		var bpm float64
		var num, denom uint8
		var text string
		switch {
		case ev.Message.GetMetaTempo(&bpm):
			t.BPM = bpm
		case ev.Message.GetMetaMeter(&num, &denom):
			t.BeatsPerBar = int(num)
		case ev.Message.GetMetaText(&text):
			fmt.Sscanf(text, conductorText, &t.BarsPerLoop)
		}
	}
	if err := t.Validate(); err != nil {
		return t, nil, err
	}

	var loops []Loop
	var errs error
	for i, tr := range f.Tracks[1:] {
		l, ok := readHeader(tr)
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("track %d: no loop header", i+1))
			continue
		}
		tok, err := r.AllocateBuffer(l.Track)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("track %d: %w", l.Track, err))
			continue
		}
		r.replace(tok, Convert(tr))
		r.mu.Lock()
		r.banks[tok].fresh = false
		r.mu.Unlock()
		l.Token = tok
		loops = append(loops, l)
	}
	sort.Slice(loops, func(i, j int) bool { return loops[i].Track < loops[j].Track })
	return t, loops, errs
}

func readHeader(tr smf.Track) (Loop, bool) {
	for _, ev := range tr {
		var text string
		if !ev.Message.GetMetaText(&text) || !strings.HasPrefix(text, "track=") {
			continue
		}
		var l Loop
		var voice string
		if _, err := fmt.Sscanf(text, trackText, &l.Track, &l.LoopBeats, &voice, &l.Muted); err != nil {
			return l, false
		}
		v, err := ParseVoice(voice)
		if err != nil {
			return l, false
		}
		l.Voice = v
		return l, true
	}
	return Loop{}, false
}

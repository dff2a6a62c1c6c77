package music_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/JeanRibes/looper/music"

	charmlog "github.com/charmbracelet/log"
)

const beat = 500 * time.Millisecond // at 120 bpm

type rendered struct {
	tok   music.Token
	beats int
}

// fakeRenderer records every call made by the sequencer.
type fakeRenderer struct {
	next     music.Token
	live     map[music.Token]int
	released []music.Token
	renders  []rendered
	muted    map[music.Token]bool
	captured map[music.Token][]music.NoteEvent
	fail     bool
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		live:     map[music.Token]int{},
		muted:    map[music.Token]bool{},
		captured: map[music.Token][]music.NoteEvent{},
	}
}

func (r *fakeRenderer) AllocateBuffer(track int) (music.Token, error) {
	if r.fail {
		return 0, errors.New("out of memory")
	}
	r.next++
	r.live[r.next] = track
	return r.next, nil
}

func (r *fakeRenderer) ReleaseBuffer(tok music.Token) {
	delete(r.live, tok)
	r.released = append(r.released, tok)
}

func (r *fakeRenderer) RenderLoop(tok music.Token, loopBeats int) {
	r.renders = append(r.renders, rendered{tok, loopBeats})
}

func (r *fakeRenderer) MuteLoop(tok music.Token, muted bool) {
	r.muted[tok] = muted
}

func (r *fakeRenderer) Capture(tok music.Token, ev music.NoteEvent) {
	r.captured[tok] = append(r.captured[tok], ev)
}

func quietLogger() *charmlog.Logger {
	return charmlog.New(io.Discard)
}

func newSequencer(t *testing.T, opts music.Options) (*music.Sequencer, *fakeRenderer) {
	t.Helper()
	if opts.Transport == (music.Transport{}) {
		opts.Transport = music.DefaultTransport()
	}
	opts.Logger = quietLogger()
	r := newFakeRenderer()
	seq, err := music.New(r, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return seq, r
}

// do enqueues the actions and runs a tick that does not move the clock.
func do(t *testing.T, seq *music.Sequencer, actions ...music.Action) error {
	t.Helper()
	for _, a := range actions {
		if err := seq.Enqueue(a); err != nil {
			t.Fatalf("Enqueue(%s): %v", a, err)
		}
	}
	return seq.Tick(0)
}

// mustDo is do for actions expected to succeed.
func mustDo(t *testing.T, seq *music.Sequencer, actions ...music.Action) {
	t.Helper()
	if err := do(t, seq, actions...); err != nil {
		t.Fatalf("tick: %v", err)
	}
}

// beats moves the clock n whole beats, one tick per beat.
func beats(t *testing.T, seq *music.Sequencer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := seq.Tick(beat); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
}

func wantState(t *testing.T, seq *music.Sequencer, track int, state music.TrackState) {
	t.Helper()
	if got := seq.Track(track).State; got != state {
		t.Fatalf("track %d: state %s, want %s", track, got, state)
	}
}

// next reads one notification or fails after a second.
func next(t *testing.T, sub *music.Subscription) music.Notification {
	t.Helper()
	select {
	case n, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription closed")
		}
		return n
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
	return nil
}

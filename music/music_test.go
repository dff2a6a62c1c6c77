package music_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/JeanRibes/looper/music"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

type sent chan midi.Message

func (s sent) send(m midi.Message) error {
	s <- m
	return nil
}

// expect waits for a message of the given type.
func (s sent) expect(t *testing.T, typ midi.Type) midi.Message {
	t.Helper()
	select {
	case m := <-s:
		if m.Type() != typ {
			t.Fatalf("got %s, want %s", m, typ)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("no %s sent", typ)
	}
	return nil
}

func newMIDIRenderer(t *testing.T, bpm float64, maxBanks int) (*music.MIDIRenderer, sent) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	out := make(sent, 64)
	r := music.NewMIDIRenderer(ctx, out.send, music.RendererOptions{
		MaxBanks: maxBanks,
		Channels: music.DefaultChannels(),
		BPM:      bpm,
	})
	return r, out
}

func TestRendererBanks(t *testing.T) {
	r, _ := newMIDIRenderer(t, 120, 2)
	a, err := r.AllocateBuffer(0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.AllocateBuffer(1)
	if err != nil || a == b {
		t.Fatalf("second buffer %d, %v", b, err)
	}
	if _, err := r.AllocateBuffer(2); err == nil {
		t.Fatal("allocated past the limit")
	}
	r.ReleaseBuffer(a)
	r.ReleaseBuffer(a)
	if _, err := r.AllocateBuffer(2); err != nil {
		t.Fatalf("released buffer not reusable: %v", err)
	}
}

func TestRendererPlaysCapturedNotes(t *testing.T) {
	r, out := newMIDIRenderer(t, 6000, 0) // 10ms beats
	tok, _ := r.AllocateBuffer(0)
	r.Capture(tok, music.NoteEvent{Note: 38, Velocity: 90, On: true, Voice: music.Delta, Beat: 0})
	r.Capture(tok, music.NoteEvent{Note: 38, On: false, Voice: music.Delta, Beat: 0.5})
	if r.Notes(tok) != 1 {
		t.Fatalf("%d notes", r.Notes(tok))
	}

	r.RenderLoop(tok, 1)
	var ch, key, vel uint8
	on := out.expect(t, midi.NoteOnMsg)
	if !on.GetNoteOn(&ch, &key, &vel) || ch != 9 || key != 38 || vel != 90 {
		t.Errorf("note on %s", on)
	}
	out.expect(t, midi.NoteOffMsg)
}

func TestRendererClosesHeldNotes(t *testing.T) {
	r, out := newMIDIRenderer(t, 6000, 0)
	tok, _ := r.AllocateBuffer(0)
	// the key is still down when recording stops
	r.Capture(tok, music.NoteEvent{Note: 60, Velocity: 100, On: true, Beat: 0.25})
	r.RenderLoop(tok, 2)
	out.expect(t, midi.NoteOnMsg)
	out.expect(t, midi.NoteOffMsg)
}

func TestRendererMute(t *testing.T) {
	r, out := newMIDIRenderer(t, 6000, 0)
	tok, _ := r.AllocateBuffer(0)
	r.Capture(tok, music.NoteEvent{Note: 60, Velocity: 100, On: true, Beat: 0})
	r.Capture(tok, music.NoteEvent{Note: 60, On: false, Beat: 0.5})
	r.MuteLoop(tok, true)
	r.RenderLoop(tok, 1)
	select {
	case m := <-out:
		t.Fatalf("muted loop sent %s", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPlayRTrackNeverLeavesANoteOn(t *testing.T) {
	tr := smf.Track{}
	tr.Add(0, midi.NoteOn(0, 64, 100))
	tr.Add(4*uint32(music.TICKS), midi.NoteOff(0, 64))
	tr.Close(0)
	rt := music.Convert(tr)
	if len(rt) != 1 {
		t.Fatalf("converted %d notes", len(rt))
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(sent, 8)
	done := make(chan error, 1)
	go func() {
		done <- music.PlayRTrack(ctx, rt, 4*uint32(music.TICKS),
			func() float64 { return 120 },
			func() bool { return false },
			out.send)
	}()
	out.expect(t, midi.NoteOnMsg)
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	out.expect(t, midi.NoteOffMsg)
}

func TestConvertRoundTrip(t *testing.T) {
	tr := smf.Track{}
	tr.Add(0, midi.NoteOn(1, 60, 100))
	tr.Add(0, midi.NoteOn(1, 64, 100))
	tr.Add(480, midi.NoteOff(1, 60))
	tr.Add(0, midi.NoteOn(1, 60, 80)) // same key again
	tr.Add(480, midi.NoteOff(1, 64))
	tr.Add(0, midi.NoteOff(1, 60))
	tr.Close(0)

	rt := music.Convert(tr)
	if len(rt) != 3 {
		t.Fatalf("got %d notes, want 3", len(rt))
	}
	back := music.Convert(rt.Convert())
	if len(back) != 3 {
		t.Fatalf("round trip kept %d notes", len(back))
	}
	ons := 0
	var ch, key, vel uint8
	for _, ev := range rt.Convert(smf.MetaText("header")) {
		if midi.Message(ev.Message).GetNoteStart(&ch, &key, &vel) {
			ons++
		}
	}
	if ons != 3 {
		t.Errorf("%d note ons", ons)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	r, _ := newMIDIRenderer(t, 100, 0)
	a, _ := r.AllocateBuffer(0)
	r.Capture(a, music.NoteEvent{Note: 60, Velocity: 100, On: true, Beat: 0})
	r.Capture(a, music.NoteEvent{Note: 60, On: false, Beat: 1})
	r.Capture(a, music.NoteEvent{Note: 62, Velocity: 100, On: true, Beat: 2})
	r.Capture(a, music.NoteEvent{Note: 62, On: false, Beat: 3})
	b, _ := r.AllocateBuffer(3)
	r.Capture(b, music.NoteEvent{Note: 36, Velocity: 120, On: true, Voice: music.Delta, Beat: 0})
	r.Capture(b, music.NoteEvent{Note: 36, On: false, Voice: music.Delta, Beat: 0.25})

	var tracks [music.NumTracks]music.Track
	for i := range tracks {
		tracks[i].ID = i
	}
	tracks[0] = music.Track{ID: 0, State: music.Playing, LoopBeats: 4, Token: a, Voice: music.Alpha}
	tracks[3] = music.Track{ID: 3, State: music.Muted, LoopBeats: 2, Token: b, Voice: music.Delta}
	tracks[5] = music.Track{ID: 5, State: music.Recording, Token: 99}
	transport := music.Transport{BPM: 100, BeatsPerBar: 3, BarsPerLoop: 2}

	path := filepath.Join(t.TempDir(), "session.mid")
	if err := r.SaveSession(path, transport, tracks); err != nil {
		t.Fatal(err)
	}

	loader, _ := newMIDIRenderer(t, 120, 0)
	gotTransport, loops, err := loader.LoadSession(path)
	if err != nil {
		t.Fatal(err)
	}
	if gotTransport != transport {
		t.Errorf("transport %+v, want %+v", gotTransport, transport)
	}
	if len(loops) != 2 {
		t.Fatalf("loaded %d loops", len(loops))
	}
	if l := loops[0]; l.Track != 0 || l.LoopBeats != 4 || l.Voice != music.Alpha || l.Muted {
		t.Errorf("loop 0: %+v", l)
	}
	if l := loops[1]; l.Track != 3 || l.LoopBeats != 2 || l.Voice != music.Delta || !l.Muted {
		t.Errorf("loop 1: %+v", l)
	}
	if n := loader.Notes(loops[0].Token); n != 2 {
		t.Errorf("loop 0 has %d notes", n)
	}
	if n := loader.Notes(loops[1].Token); n != 1 {
		t.Errorf("loop 1 has %d notes", n)
	}

	if _, _, err := loader.LoadSession(filepath.Join(t.TempDir(), "missing.mid")); err == nil {
		t.Error("loaded a missing file")
	}
}

func TestEarlyStopCutsHeldNotes(t *testing.T) {
	r, _ := newMIDIRenderer(t, 120, 0)
	tok, _ := r.AllocateBuffer(0)
	r.Capture(tok, music.NoteEvent{Note: 60, Velocity: 100, On: true, Beat: 0})
	r.Capture(tok, music.NoteEvent{Note: 60, On: false, Beat: 0.5})
	// both still down when recording stops after 2.75 beats, floored to 2
	r.Capture(tok, music.NoteEvent{Note: 62, Velocity: 100, On: true, Beat: 1.5})
	r.Capture(tok, music.NoteEvent{Note: 64, Velocity: 100, On: true, Beat: 2.5})
	r.RenderLoop(tok, 2)
	if n := r.Notes(tok); n != 2 {
		t.Fatalf("%d notes kept, want 2", n)
	}

	var tracks [music.NumTracks]music.Track
	tracks[0] = music.Track{ID: 0, State: music.Playing, LoopBeats: 2, Token: tok}
	path := filepath.Join(t.TempDir(), "cut.mid")
	if err := r.SaveSession(path, music.DefaultTransport(), tracks); err != nil {
		t.Fatal(err)
	}

	f, err := smf.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var ch, key, vel uint8
	abs := uint32(0)
	for _, ev := range f.Tracks[1] {
		abs += ev.Delta
		msg := midi.Message(ev.Message)
		if (msg.GetNoteStart(&ch, &key, &vel) || msg.GetNoteEnd(&ch, &key)) && abs > 2*uint32(music.TICKS) {
			t.Errorf("%s at tick %d, past the loop end", msg, abs)
		}
	}

	loader, _ := newMIDIRenderer(t, 120, 0)
	_, loops, err := loader.LoadSession(path)
	if err != nil || len(loops) != 1 {
		t.Fatalf("loaded %d loops, %v", len(loops), err)
	}
	if n := loader.Notes(loops[0].Token); n != 2 {
		t.Errorf("reloaded %d notes, want 2", n)
	}
}

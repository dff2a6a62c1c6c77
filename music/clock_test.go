package music_test

import (
	"errors"
	"testing"
	"time"

	"github.com/JeanRibes/looper/music"
)

func newClock(t *testing.T, tr music.Transport) *music.Clock {
	t.Helper()
	c, err := music.NewClock(tr)
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}
	return c
}

func TestClockStartsOnBarOne(t *testing.T) {
	c := newClock(t, music.DefaultTransport())
	if c.Beat() != 1 || c.PrevBeat() != 1 || c.Bar() != 1 || c.Abs() != 0 {
		t.Errorf("start at beat %d prev %d bar %d abs %d", c.Beat(), c.PrevBeat(), c.Bar(), c.Abs())
	}
	if _, err := music.NewClock(music.Transport{BPM: -1, BeatsPerBar: 4, BarsPerLoop: 4}); !errors.Is(err, music.ErrInvalidConfig) {
		t.Errorf("got %v, want ErrInvalidConfig", err)
	}
}

func TestClockBoundaries(t *testing.T) {
	c := newClock(t, music.DefaultTransport())

	if got := c.Tick(499 * time.Millisecond); len(got) != 0 {
		t.Fatalf("boundary before the beat: %+v", got)
	}
	got := c.Tick(time.Millisecond)
	if len(got) != 1 {
		t.Fatalf("got %d boundaries, want 1", len(got))
	}
	if b := got[0]; b.Kind != music.BeatBoundary || b.Beat != 2 || b.Bar != 1 || b.Abs != 1 {
		t.Errorf("boundary %+v", b)
	}
	if c.PrevBeat() != 1 {
		t.Errorf("prev beat %d", c.PrevBeat())
	}

	c.Tick(250 * time.Millisecond)
	if p := c.Phase(); p != 0.5 {
		t.Errorf("phase %v, want 0.5", p)
	}
}

func TestClockCatchesUpAfterStall(t *testing.T) {
	c := newClock(t, music.DefaultTransport())
	got := c.Tick(17 * 500 * time.Millisecond)
	if len(got) != 17 {
		t.Fatalf("got %d boundaries, want 17", len(got))
	}
	for i, b := range got {
		abs := int64(i + 1)
		if b.Abs != abs {
			t.Fatalf("boundary %d has abs %d", i, b.Abs)
		}
		wantBar := abs%4 == 0
		if (b.Kind == music.BarBoundary) != wantBar {
			t.Errorf("abs %d: kind %s", abs, b.Kind)
		}
		if b.LoopStart != (abs == 16) {
			t.Errorf("abs %d: loop start %t", abs, b.LoopStart)
		}
	}
	if c.Beat() != 2 || c.Bar() != 1 {
		t.Errorf("ended at beat %d bar %d", c.Beat(), c.Bar())
	}
}

func TestClockTempoChangeWaitsForBar(t *testing.T) {
	c := newClock(t, music.DefaultTransport())
	c.Tick(500 * time.Millisecond)
	if err := c.SetBPM(60); err != nil {
		t.Fatal(err)
	}
	got := c.Tick(1500 * time.Millisecond)
	if len(got) != 3 {
		t.Fatalf("got %d boundaries, want 3", len(got))
	}
	if got[1].BPM != 120 || got[2].BPM != 60 || got[2].Kind != music.BarBoundary {
		t.Errorf("boundaries %+v", got)
	}
	if got := c.Tick(999 * time.Millisecond); len(got) != 0 {
		t.Fatalf("beat came early at 60 bpm")
	}
	if got := c.Tick(time.Millisecond); len(got) != 1 {
		t.Fatalf("got %d boundaries, want 1", len(got))
	}
	if err := c.SetBPM(0); !errors.Is(err, music.ErrInvalidConfig) {
		t.Errorf("got %v, want ErrInvalidConfig", err)
	}
}

func TestClockTransportChangeWaitsForLoop(t *testing.T) {
	c := newClock(t, music.DefaultTransport())
	next := music.Transport{BPM: 90, BeatsPerBar: 3, BarsPerLoop: 2}
	if err := c.SetTransport(next); err != nil {
		t.Fatal(err)
	}
	got := c.Tick(16 * 500 * time.Millisecond)
	if len(got) != 16 {
		t.Fatalf("got %d boundaries, want 16", len(got))
	}
	if got[3].Kind != music.BarBoundary || got[3].BPM != 120 {
		t.Errorf("bar 2 started with %+v", got[3])
	}
	if last := got[15]; !last.LoopStart || last.BPM != 90 {
		t.Errorf("loop start %+v", last)
	}
	if c.Transport() != next {
		t.Fatalf("transport %+v", c.Transport())
	}

	period := next.BeatPeriod()
	got = c.Tick(3 * period)
	if len(got) != 3 || got[2].Kind != music.BarBoundary || got[2].Bar != 2 {
		t.Errorf("3/4 bar: %+v", got)
	}
	if err := c.SetTransport(music.Transport{BPM: 90, BeatsPerBar: 0, BarsPerLoop: 2}); !errors.Is(err, music.ErrInvalidConfig) {
		t.Errorf("got %v, want ErrInvalidConfig", err)
	}
}

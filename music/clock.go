package music

import (
	"fmt"
	"time"
)

type BoundaryKind int

const (
	BeatBoundary BoundaryKind = iota
	BarBoundary
)

func (k BoundaryKind) String() string {
	if k == BarBoundary {
		return "bar"
	}
	return "beat"
}

// Boundary is one crossed beat. Beat and Bar are the position after the crossing.
type Boundary struct {
	Kind      BoundaryKind
	Beat      int
	Bar       int
	Abs       int64
	BPM       float64
	LoopStart bool // bar 1, beat 1
}

// Clock is the transport clock. Only the goroutine calling Tick may touch it.
type Clock struct {
	transport        Transport
	pendingBPM       float64
	pendingTransport *Transport

	curBeat   int
	prevBeat  int
	curBar    int
	abs       int64
	sinceBeat time.Duration
}

func NewClock(t Transport) (*Clock, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Clock{
		transport: t,
		curBeat:   1,
		prevBeat:  1,
		curBar:    1,
	}, nil
}

// Tick advances the clock and returns every beat boundary crossed, in order.
// A long elapsed value after a stall yields all the boundaries it spans.
func (c *Clock) Tick(elapsed time.Duration) []Boundary {
	var crossed []Boundary
	for elapsed > 0 {
		remaining := c.transport.BeatPeriod() - c.sinceBeat
		if elapsed < remaining {
			c.sinceBeat += elapsed
			break
		}
		elapsed -= remaining
		c.sinceBeat = 0
		crossed = append(crossed, c.advance())
	}
	return crossed
}

func (c *Clock) advance() Boundary {
	c.prevBeat = c.curBeat
	c.abs++
	c.curBeat++
	kind := BeatBoundary
	loopStart := false
	if c.curBeat > c.transport.BeatsPerBar {
		kind = BarBoundary
		c.curBeat = 1
		c.curBar++
		if c.curBar > c.transport.BarsPerLoop {
			c.curBar = 1
			loopStart = true
			if c.pendingTransport != nil {
				c.transport = *c.pendingTransport
				c.pendingTransport = nil
			}
		}
		if c.pendingBPM > 0 {
			c.transport.BPM = c.pendingBPM
			c.pendingBPM = 0
		}
	}
	return Boundary{
		Kind:      kind,
		Beat:      c.curBeat,
		Bar:       c.curBar,
		Abs:       c.abs,
		BPM:       c.transport.BPM,
		LoopStart: loopStart,
	}
}

// SetBPM takes effect at the next bar boundary.
func (c *Clock) SetBPM(bpm float64) error {
	if !(bpm > 0) {
		return fmt.Errorf("%w: bpm must be positive, got %v", ErrInvalidConfig, bpm)
	}
	if c.pendingTransport != nil {
		c.pendingTransport.BPM = bpm
	}
	c.pendingBPM = bpm
	return nil
}

// SetTransport replaces the whole grid at the start of the next loop cycle.
func (c *Clock) SetTransport(t Transport) error {
	if err := t.Validate(); err != nil {
		return err
	}
	c.pendingTransport = &t
	c.pendingBPM = 0
	return nil
}

func (c *Clock) Beat() int            { return c.curBeat }
func (c *Clock) PrevBeat() int        { return c.prevBeat }
func (c *Clock) Bar() int             { return c.curBar }
func (c *Clock) Abs() int64           { return c.abs }
func (c *Clock) BPM() float64         { return c.transport.BPM }
func (c *Clock) Transport() Transport { return c.transport }

// Phase is how far into the current beat the clock is, in [0, 1).
func (c *Clock) Phase() float64 {
	return float64(c.sinceBeat) / float64(c.transport.BeatPeriod())
}

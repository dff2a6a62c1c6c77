package music

import (
	"fmt"
	"time"
)

// Transport is the tempo and bar grid every loop is laid on.
type Transport struct {
	BPM         float64
	BeatsPerBar int
	BarsPerLoop int
}

func DefaultTransport() Transport {
	return Transport{BPM: 120, BeatsPerBar: 4, BarsPerLoop: 4}
}

func (t Transport) Validate() error {
	if !(t.BPM > 0) {
		return fmt.Errorf("%w: bpm must be positive, got %v", ErrInvalidConfig, t.BPM)
	}
	if t.BeatsPerBar <= 0 {
		return fmt.Errorf("%w: beats per bar must be positive, got %d", ErrInvalidConfig, t.BeatsPerBar)
	}
	if t.BarsPerLoop <= 0 {
		return fmt.Errorf("%w: bars per loop must be positive, got %d", ErrInvalidConfig, t.BarsPerLoop)
	}
	return nil
}

// LoopBeats is the length of one loop cycle in beats.
func (t Transport) LoopBeats() int {
	return t.BarsPerLoop * t.BeatsPerBar
}

func (t Transport) BeatPeriod() time.Duration {
	return time.Duration(float64(time.Minute) / t.BPM)
}

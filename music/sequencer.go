package music

import (
	"errors"
	"fmt"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
)

type Options struct {
	Transport         Transport
	QueueLimit        int
	Overflow          OverflowPolicy
	RecordOnFirstNote bool
	Voices            Voices
	Logger            *charmlog.Logger
}

// Loop is a finished loop handed back to a track, e.g. from a session file.
type Loop struct {
	Track     int
	Token     Token
	LoopBeats int
	Voice     VoiceID
	Muted     bool
}

// Sequencer ties the clock, the queue and the resolver together. Enqueue and
// Subscribe may be called from any goroutine; everything else belongs to the
// goroutine that calls Tick.
type Sequencer struct {
	clock    *Clock
	queue    *Queue
	resolver *Resolver
	feed     *Feed
	perf     PerformanceState
	voices   Voices
	logger   *charmlog.Logger
}

func New(r Renderer, opts Options) (*Sequencer, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: no renderer", ErrInvalidConfig)
	}
	if opts.QueueLimit < 0 {
		return nil, fmt.Errorf("%w: negative queue limit %d", ErrInvalidConfig, opts.QueueLimit)
	}
	clock, err := NewClock(opts.Transport)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
			Level:  charmlog.InfoLevel,
			Prefix: "sequencer",
		})
	}
	voices := DefaultVoices()
	for i, v := range opts.Voices {
		if v != nil {
			voices[i] = v
		}
	}
	feed := NewFeed()
	return &Sequencer{
		clock:    clock,
		queue:    NewQueue(opts.QueueLimit, opts.Overflow),
		resolver: newResolver(r, feed, logger, opts.RecordOnFirstNote),
		feed:     feed,
		voices:   voices,
		logger:   logger,
	}, nil
}

// Enqueue hands an action to the next tick.
func (s *Sequencer) Enqueue(a Action) error {
	if err := s.queue.Enqueue(a); err != nil {
		s.logger.Warn("queue", "err", err)
		return err
	}
	return nil
}

func (s *Sequencer) Subscribe() *Subscription {
	return s.feed.Subscribe()
}

// Tick runs one scheduler pass to completion: queued actions are resolved at
// the current position, then the clock moves and the effects of each crossed
// boundary are applied in order. A failure on one track is logged, published
// and returned, and does not stop the others or the clock.
func (s *Sequencer) Tick(elapsed time.Duration) error {
	var errs []error
	for _, a := range s.queue.Drain() {
		if err := s.apply(a); err != nil {
			s.report(err)
			errs = append(errs, err)
		}
		if n := s.resolver.recorders(); n > 1 {
			s.logger.Error("more than one track recording", "count", n, "action", a)
		}
	}
	for _, b := range s.clock.Tick(elapsed) {
		s.feed.Publish(ClockBoundary{
			Kind:      b.Kind,
			Beat:      b.Beat,
			Bar:       b.Bar,
			Abs:       b.Abs,
			BPM:       b.BPM,
			Transport: s.clock.Transport(),
		})
		at := s.cursor()
		at.abs = b.Abs
		at.phase = 0
		for _, err := range s.resolver.Boundary(b, at) {
			s.report(err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Sequencer) apply(a Action) error {
	s.logger.Debug("action", "action", a, "seq", a.Seq, "beat", s.clock.Beat(), "bar", s.clock.Bar())
	switch a.Kind {
	case SetTempo:
		return s.clock.SetBPM(a.BPM)
	case SetInputMode:
		return s.resolver.SetMode(a.Mode)
	case ModeSwitch:
		if a.Voice < Alpha || a.Voice >= NumVoices {
			return fmt.Errorf("unknown voice %d", int(a.Voice))
		}
		s.perf.Selected = a.Voice
	case PedalChange:
		s.perf.PedalDown = a.On
	case MicToggle:
		s.perf.Mic = !s.perf.Mic
	case AnimateToggle:
		s.perf.Animate = !s.perf.Animate
	default:
		return s.resolver.Resolve(a, s.cursor())
	}
	s.feed.Publish(PerformanceChanged{State: s.perf})
	return nil
}

func (s *Sequencer) report(err error) {
	track := -1
	var te *TrackError
	if errors.As(err, &te) {
		track = te.Track
	}
	if errors.Is(err, ErrTrackBusy) || errors.Is(err, ErrNoContent) || errors.Is(err, ErrOverdub) {
		s.logger.Warn("rejected", "track", track, "err", err)
	} else {
		s.logger.Error("tick", "track", track, "err", err)
	}
	s.feed.Publish(TrackFailed{Track: track, Err: err})
}

func (s *Sequencer) cursor() cursor {
	return cursor{
		abs:    s.clock.Abs(),
		phase:  s.clock.Phase(),
		grid:   s.clock.Transport().LoopBeats(),
		voice:  s.perf.Selected,
		voices: &s.voices,
	}
}

// Restore installs loaded loops on idle tracks, aligned on the current beat.
func (s *Sequencer) Restore(loops []Loop) error {
	var errs []error
	for _, l := range loops {
		if err := s.resolver.restore(l, s.clock.Abs()); err != nil {
			if l.Token != 0 {
				s.resolver.renderer.ReleaseBuffer(l.Token)
			}
			s.report(err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetTransport changes the grid at the start of the next loop cycle.
func (s *Sequencer) SetTransport(t Transport) error {
	return s.clock.SetTransport(t)
}

func (s *Sequencer) Track(id int) Track {
	if id < 0 || id >= NumTracks {
		return Track{ID: id}
	}
	return s.resolver.tracks[id]
}

func (s *Sequencer) Tracks() [NumTracks]Track {
	return s.resolver.tracks
}

func (s *Sequencer) Entry(id int) ScheduleEntry {
	if id < 0 || id >= NumTracks {
		return ScheduleEntry{}
	}
	return s.resolver.schedule[id]
}

func (s *Sequencer) Mode() InputMode               { return s.resolver.Mode() }
func (s *Sequencer) Performance() PerformanceState { return s.perf }
func (s *Sequencer) Voices() Voices                { return s.voices }
func (s *Sequencer) Clock() *Clock                 { return s.clock }

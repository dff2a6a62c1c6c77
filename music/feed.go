package music

import "sync"

// Notification is anything published on the feed.
type Notification interface {
	notification()
}

type TrackStateChanged struct {
	Track     int
	Old       TrackState
	New       TrackState
	LoopBeats int
	Abs       int64
}

type ClockBoundary struct {
	Kind      BoundaryKind
	Beat      int
	Bar       int
	Abs       int64
	BPM       float64
	Transport Transport
}

type ScheduleChanged struct {
	Track int
	Entry ScheduleEntry
}

type ModeChanged struct {
	Mode InputMode
}

type PerformanceChanged struct {
	State PerformanceState
}

// LoopCycle is published each time a playing loop starts over.
type LoopCycle struct {
	Track     int
	LoopBeats int
	Abs       int64
}

type TrackFailed struct {
	Track int
	Err   error
}

func (TrackStateChanged) notification()  {}
func (ClockBoundary) notification()      {}
func (ScheduleChanged) notification()    {}
func (ModeChanged) notification()        {}
func (PerformanceChanged) notification() {}
func (LoopCycle) notification()          {}
func (TrackFailed) notification()        {}

// Feed fans notifications out to subscribers. Publish never blocks: every
// subscription buffers what its reader has not taken yet.
type Feed struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[*Subscription]struct{})}
}

func (f *Feed) Publish(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs {
		s.push(n)
	}
}

func (f *Feed) Subscribe() *Subscription {
	s := &Subscription{
		feed: f,
		wake: make(chan struct{}, 1),
		out:  make(chan Notification),
		done: make(chan struct{}),
	}
	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()
	go s.pump()
	return s
}

func (f *Feed) remove(s *Subscription) {
	f.mu.Lock()
	delete(f.subs, s)
	f.mu.Unlock()
}

type Subscription struct {
	feed *Feed

	mu      sync.Mutex
	pending []Notification

	wake      chan struct{}
	out       chan Notification
	done      chan struct{}
	closeOnce sync.Once
}

// C delivers notifications in publish order. It is closed by Close.
func (s *Subscription) C() <-chan Notification {
	return s.out
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.feed.remove(s)
		close(s.done)
	})
}

func (s *Subscription) push(n Notification) {
	s.mu.Lock()
	s.pending = append(s.pending, n)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, n := range batch {
			select {
			case s.out <- n:
			case <-s.done:
				return
			}
		}

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

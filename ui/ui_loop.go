package ui

import (
	"time"

	"github.com/JeanRibes/looper/music"
	. "github.com/JeanRibes/looper/shared"

	tea "github.com/charmbracelet/bubbletea"
)

type feedMsg struct{ n music.Notification }

type feedClosed struct{}

func listen(sub *music.Subscription) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-sub.C()
		if !ok {
			return feedClosed{}
		}
		return feedMsg{n}
	}
}

func (m *Model) apply(n music.Notification) {
	switch n := n.(type) {
	case music.ClockBoundary:
		m.beat = n.Beat
		m.bar = n.Bar
		m.abs = n.Abs
		m.bpm = n.BPM
		m.grid = n.Transport
	case music.TrackStateChanged:
		t := &m.tracks[n.Track]
		t.state = n.New
		t.loopBeats = n.LoopBeats
		if n.New == music.Recording || n.Old == music.Recording || n.Old == music.Idle {
			t.cycleAt = n.Abs
		}
	case music.LoopCycle:
		m.tracks[n.Track].cycleAt = n.Abs
	case music.ScheduleChanged:
		m.tracks[n.Track].entry = n.Entry
	case music.ModeChanged:
		m.mode = n.Mode
	case music.PerformanceChanged:
		m.perf = n.State
	case music.TrackFailed:
		m.lastErr = n.Err.Error()
		m.errAt = time.Now()
		if n.Track >= 0 && n.Track < NUM_TRACKS {
			m.selected = n.Track
		}
	}
}

// Program builds the bubbletea program for the model.
func Program(m Model) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/JeanRibes/looper/music"
	. "github.com/JeanRibes/looper/shared"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("#444"))
	beatStyle     = lipgloss.NewStyle().Reverse(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f55"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888"))

	stateStyles = map[music.TrackState]lipgloss.Style{
		music.Idle:      dimStyle,
		music.Armed:     lipgloss.NewStyle().Foreground(lipgloss.Color("#fa0")),
		music.Recording: lipgloss.NewStyle().Foreground(lipgloss.Color("#f33")).Bold(true),
		music.Playing:   lipgloss.NewStyle().Foreground(lipgloss.Color("#3c3")),
		music.Muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("#36f")),
	}
	stateLabels = map[music.TrackState]string{
		music.Idle:      "vide",
		music.Armed:     "armée",
		music.Recording: "enregistre",
		music.Playing:   "joue",
		music.Muted:     "muette",
	}
)

type track struct {
	state     music.TrackState
	loopBeats int
	entry     music.ScheduleEntry
	cycleAt   int64
}

// Model is the terminal front-end. It only learns about the looper through
// the feed and only acts on it through bus messages.
type Model struct {
	sub   *music.Subscription
	sink  chan<- Message
	prefs *Preferences

	tracks   [NUM_TRACKS]track
	selected int
	beat     int
	bar      int
	abs      int64
	bpm      float64
	grid     music.Transport
	mode     music.InputMode
	perf     music.PerformanceState
	lastErr  string
	errAt    time.Time
	status   string
	browser  *browser
	quitting bool
}

func NewModel(sub *music.Subscription, sink chan<- Message, prefs *Preferences, t music.Transport) Model {
	return Model{
		sub:   sub,
		sink:  sink,
		prefs: prefs,
		beat:  1,
		bar:   1,
		bpm:   t.BPM,
		grid:  t,
	}
}

func (m Model) Init() tea.Cmd {
	return listen(m.sub)
}

// send puts a message on the bus without blocking the UI.
func (m Model) send(msg Message) tea.Cmd {
	sink := m.sink
	return func() tea.Msg {
		sink <- msg
		return nil
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.key(msg)
	case feedMsg:
		m.apply(msg.n)
		return m, listen(m.sub)
	case feedClosed:
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.browser != nil {
		return m.browse(msg)
	}
	switch k := msg.String(); k {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Sequence(m.send(Message{Type: Quit}), tea.Quit)
	case "1", "2", "3", "4", "5", "6", "7", "8":
		m.selected = int(k[0] - '1')
	case "up", "k":
		m.selected = (m.selected + NUM_TRACKS - 1) % NUM_TRACKS
	case "down", "j":
		m.selected = (m.selected + 1) % NUM_TRACKS
	case " ", "r":
		return m, m.send(Message{Type: RecordToggle, Number: m.selected})
	case "e":
		return m, m.send(Message{Type: EraseToggle, Number: m.selected})
	case "m":
		return m, m.send(Message{Type: MuteToggle, Number: m.selected})
	case "tab":
		next := []string{ModeImmediate, ModeErase, ModeSchedule}[(int(m.mode)+1)%3]
		return m, m.send(Message{Type: InputMode, String: next})
	case "z", "x", "c", "v":
		voice := strings.Index("zxcv", k)
		return m, m.send(Message{Type: ModeSwitch, Number: voice})
	case "+", "=":
		return m, m.send(Message{Type: Tempo, Number: int(m.bpm) + 5})
	case "-", "_":
		if m.bpm > 5 {
			return m, m.send(Message{Type: Tempo, Number: int(m.bpm) - 5})
		}
	case "a":
		return m, m.send(Message{Type: AnimateToggle})
	case "i":
		return m, m.send(Message{Type: MicToggle})
	case "w":
		name := "session-" + time.Now().Format("2006-01-02-15:04:05") + ".mid"
		m.status = "enregistré dans " + name
		m.remember(name)
		return m, m.send(Message{Type: StateExport, String: name})
	case "o":
		sessions := m.prefs.Sessions()
		if len(sessions) == 0 {
			m.status = "aucune session récente"
			return m, nil
		}
		m.browser = newBrowser(sessions)
	}
	return m, nil
}

// browse handles keys while the session list is open.
func (m Model) browse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Sequence(m.send(Message{Type: Quit}), tea.Quit)
	case "esc", "o", "q":
		m.browser = nil
	case "up", "k":
		m.browser.move(-1)
	case "down", "j":
		m.browser.move(1)
	case "enter":
		path, ok := m.browser.selected()
		m.browser = nil
		if !ok {
			return m, nil
		}
		m.status = "chargement de " + path
		m.remember(path)
		return m, m.send(Message{Type: StateImport, String: path})
	case "d", "delete":
		if path, ok := m.browser.remove(); ok && m.prefs != nil {
			m.prefs.DeleteSession(path)
			if err := m.prefs.Save(); err != nil {
				m.lastErr = err.Error()
				m.errAt = time.Now()
			}
		}
	}
	return m, nil
}

func (m *Model) remember(path string) {
	if m.prefs == nil {
		return
	}
	m.prefs.AddSession(path)
	if err := m.prefs.Save(); err != nil {
		m.lastErr = err.Error()
		m.errAt = time.Now()
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.browser != nil {
		return titleStyle.Render("sessions récentes") + "\n\n" + m.browser.View()
	}
	var b strings.Builder

	b.WriteString(titleStyle.Render("looper"))
	b.WriteString(statusStyle.Render(fmt.Sprintf("  %.0f bpm  %d/%d  mode %s  voix %s",
		m.bpm, m.grid.BeatsPerBar, m.grid.BarsPerLoop, m.mode, m.perf.Selected)))
	b.WriteString("\n\n")

	for beat := 1; beat <= m.grid.BeatsPerBar; beat++ {
		cell := fmt.Sprintf(" %d ", beat)
		if beat == m.beat {
			cell = beatStyle.Render(cell)
		}
		b.WriteString(cell)
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("  mesure %d/%d", m.bar, m.grid.BarsPerLoop)))
	b.WriteString("\n\n")

	for i, t := range m.tracks {
		line := fmt.Sprintf("%-8s %-10s", TrackName(i), stateLabels[t.state])
		if t.state.HasLoop() {
			pos := int(m.abs-t.cycleAt)%max(t.loopBeats, 1) + 1
			line += fmt.Sprintf(" %2d/%-2d", pos, t.loopBeats)
		} else {
			line += "      "
		}
		if t.entry.Record {
			line += " [rec]"
		}
		if t.entry.Mute {
			line += " [mute]"
		}
		line = stateStyles[t.state].Render(line)
		if i == m.selected {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	var flags []string
	if m.perf.PedalDown {
		flags = append(flags, "pédale")
	}
	if m.perf.Mic {
		flags = append(flags, "micro")
	}
	if m.perf.Animate {
		flags = append(flags, "animation")
	}
	if len(flags) > 0 {
		b.WriteString(statusStyle.Render(strings.Join(flags, " ")) + "\n")
	}
	if m.lastErr != "" && time.Since(m.errAt) < 5*time.Second {
		b.WriteString(errorStyle.Render(m.lastErr) + "\n")
	}
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status) + "\n")
	}
	b.WriteString(dimStyle.Render("1-8 piste  espace rec  e effacer  m muet  tab mode  zxcv voix  +/- tempo  w sauver  o sessions  q quitter"))
	return b.String()
}

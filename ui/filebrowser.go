package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// browser is the list of recent sessions shown when opening one.
type browser struct {
	rows   []row
	cursor int
}

type row struct {
	path string
	name string
	date string
}

var headerStyle = lipgloss.NewStyle().Underline(true)

func newBrowser(sessions RecentFiles) *browser {
	home, _ := os.UserHomeDir()
	b := &browser{}
	for _, s := range sessions {
		name := s.Path
		if home != "" {
			name = strings.Replace(name, home, "~", 1)
		}
		b.rows = append(b.rows, row{
			path: s.Path,
			name: name,
			date: time.Unix(s.Time, 0).Format("le 02/01 à 15h04"),
		})
	}
	return b
}

func (b *browser) move(delta int) {
	if len(b.rows) == 0 {
		return
	}
	b.cursor = (b.cursor + delta + len(b.rows)) % len(b.rows)
}

func (b *browser) selected() (string, bool) {
	if b.cursor >= len(b.rows) {
		return "", false
	}
	return b.rows[b.cursor].path, true
}

// remove drops the row under the cursor and returns its path.
func (b *browser) remove() (string, bool) {
	path, ok := b.selected()
	if !ok {
		return "", false
	}
	b.rows = append(b.rows[:b.cursor], b.rows[b.cursor+1:]...)
	if b.cursor >= len(b.rows) && b.cursor > 0 {
		b.cursor--
	}
	return path, true
}

func (b *browser) View() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(fmt.Sprintf("%-40s %s", "nom", "date")) + "\n")
	if len(b.rows) == 0 {
		s.WriteString(dimStyle.Render("aucune session récente") + "\n")
	}
	for i, r := range b.rows {
		line := fmt.Sprintf("%-40s %s", r.name, r.date)
		if i == b.cursor {
			line = selectedStyle.Render(line)
		}
		s.WriteString(line + "\n")
	}
	s.WriteString("\n" + dimStyle.Render("entrée ouvrir  d oublier  échap fermer"))
	return s.String()
}

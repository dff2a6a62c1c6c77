package ui

import (
	"errors"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RecentFile struct {
	Path string `yaml:"path"`
	Time int64  `yaml:"time"`
}
type RecentFiles []RecentFile

// Preferences remembers the sessions saved or loaded lately.
type Preferences struct {
	RecentSessions RecentFiles `yaml:"recent_sessions"`

	path string
}

const MAX_RECENT = 10

// LoadPreferences reads the preferences file; a missing or empty file gives
// empty preferences. The returned preferences are usable even with an error.
func LoadPreferences(path string) (*Preferences, error) {
	prefs := &Preferences{
		RecentSessions: RecentFiles{},
		path:           path,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return prefs, nil
		}
		return prefs, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return prefs, nil
	}
	if err := yaml.Unmarshal(data, prefs); err != nil {
		return &Preferences{RecentSessions: RecentFiles{}, path: path}, err
	}
	prefs.Refresh()
	return prefs, nil
}

// unique keeps the last occurrence of every path, in order.
func unique(sl RecentFiles) RecentFiles {
	seen := map[string]bool{}
	out := RecentFiles{}
	for i := len(sl) - 1; i >= 0; i-- {
		if seen[sl[i].Path] {
			continue
		}
		seen[sl[i].Path] = true
		out = append(out, sl[i])
	}
	slices.Reverse(out)
	return out
}

func (p *Preferences) Save() error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(p.path, data, 0644)
}

func (p *Preferences) AddSession(path string) {
	p.RecentSessions = unique(append(p.RecentSessions, RecentFile{
		Path: path,
		Time: time.Now().Unix(),
	}))
	if n := len(p.RecentSessions); n > MAX_RECENT {
		p.RecentSessions = p.RecentSessions[n-MAX_RECENT:]
	}
}

// Sessions lists the recent sessions, latest first.
func (p *Preferences) Sessions() RecentFiles {
	if p == nil {
		return nil
	}
	s := slices.Clone(p.RecentSessions)
	slices.Reverse(s)
	return s
}

// Refresh drops sessions whose file is gone and updates the others' time.
func (p *Preferences) Refresh() {
	p.RecentSessions = slices.DeleteFunc(p.RecentSessions, func(item RecentFile) bool {
		_, err := os.Stat(item.Path)
		return err != nil
	})
	for i, item := range p.RecentSessions {
		stat, err := os.Stat(item.Path)
		if err != nil {
			continue
		}
		item.Time = stat.ModTime().Unix()
		p.RecentSessions[i] = item
	}
}

func (p *Preferences) DeleteSession(filepath string) {
	p.RecentSessions = slices.DeleteFunc(p.RecentSessions, func(e RecentFile) bool {
		return e.Path == filepath
	})
}

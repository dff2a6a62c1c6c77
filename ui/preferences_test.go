package ui_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/JeanRibes/looper/ui"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPreferencesRecentSessions(t *testing.T) {
	dir := t.TempDir()
	prefs, err := ui.LoadPreferences(filepath.Join(dir, "prefs.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(prefs.Sessions()) != 0 {
		t.Fatal("new preferences are not empty")
	}

	var paths []string
	for i := 0; i < ui.MAX_RECENT+2; i++ {
		p := touch(t, dir, fmt.Sprintf("s%d.mid", i))
		paths = append(paths, p)
		prefs.AddSession(p)
	}
	prefs.AddSession(paths[5])

	s := prefs.Sessions()
	if len(s) != ui.MAX_RECENT {
		t.Fatalf("%d sessions kept", len(s))
	}
	if s[0].Path != paths[5] || s[1].Path != paths[len(paths)-1] {
		t.Errorf("latest sessions %q, %q", s[0].Path, s[1].Path)
	}
	for _, f := range s {
		if f.Path == paths[0] || f.Path == paths[1] {
			t.Errorf("%s should have been dropped", f.Path)
		}
	}

	prefs.DeleteSession(paths[5])
	if err := prefs.Save(); err != nil {
		t.Fatal(err)
	}
	os.Remove(paths[len(paths)-1])

	loaded, err := ui.LoadPreferences(filepath.Join(dir, "prefs.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	got := loaded.Sessions()
	if len(got) != ui.MAX_RECENT-2 {
		t.Fatalf("loaded %d sessions", len(got))
	}
	if got[0].Path != paths[len(paths)-2] {
		t.Errorf("latest loaded session %q", got[0].Path)
	}
}

func TestPreferencesBadFile(t *testing.T) {
	dir := t.TempDir()
	empty := touch(t, dir, "empty.yaml")
	if prefs, err := ui.LoadPreferences(empty); err != nil || len(prefs.Sessions()) != 0 {
		t.Errorf("empty file: %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("recent_sessions: {"), 0644)
	prefs, err := ui.LoadPreferences(bad)
	if err == nil {
		t.Error("no error for a broken file")
	}
	prefs.AddSession(empty)
	if len(prefs.Sessions()) != 1 {
		t.Error("preferences unusable after a load error")
	}
}

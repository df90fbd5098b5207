// Package prefs persists TUI preferences in ~/.config/fiscal/prefs.toml.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// DefaultPath is the preferences file used when none is given.
const DefaultPath = "~/.config/fiscal/prefs.toml"

// DefaultTheme is used when the file names no theme.
const DefaultTheme = "Dracula"

// Prefs holds TUI preferences. Keys missing from the file keep their
// Defaults value.
type Prefs struct {
	Theme string `toml:"theme"`
	// ShowAssigned lists targets that already have a team. When false the
	// table only shows unassigned targets.
	ShowAssigned bool `toml:"show_assigned"`
}

// Defaults returns the preferences of a fresh install.
func Defaults() Prefs {
	return Prefs{Theme: DefaultTheme, ShowAssigned: true}
}

// Load reads preferences from path. A missing file is not an error. An
// unreadable or malformed file returns Defaults together with the error so
// the caller can warn and carry on.
func Load(path string) (Prefs, error) {
	p := Defaults()
	resolved, err := resolvePath(path)
	if err != nil {
		return p, err
	}

	data, err := os.ReadFile(resolved)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read prefs: %w", err)
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return Defaults(), fmt.Errorf("parse prefs %s: %w", resolved, err)
	}
	if strings.TrimSpace(p.Theme) == "" {
		p.Theme = DefaultTheme
	}
	return p, nil
}

// Save writes p to path through a temporary file, creating directories as
// needed. A crash mid-write leaves the previous file intact.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return err
	}
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.toml")
	if err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), resolved); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		trimmed = DefaultPath
	}
	if rest, ok := strings.CutPrefix(trimmed, "~"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, rest)
	}
	return filepath.Abs(trimmed)
}

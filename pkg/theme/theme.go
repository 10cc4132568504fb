// Package theme holds the light/dark presentation state of the terminal
// client. The state is explicit: it is created from the persisted preference
// (ui.theme in config.toml) or, when none is stored, from the environment, and
// is passed to whatever renders output.
package theme

import (
	"strconv"
	"strings"
	"sync"
)

// Theme is a color scheme.
type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"

	// EnvTheme forces a theme from the environment.
	EnvTheme = "STUDIO_THEME"

	// envColorFgBg is set by many terminals to "fg;bg" color indexes.
	envColorFgBg = "COLORFGBG"
)

// Parse returns the theme named by s.
func Parse(s string) (Theme, bool) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case Light:
		return Light, true
	case Dark:
		return Dark, true
	}
	return "", false
}

// State is the current theme. It is safe for concurrent use.
type State struct {
	mu      sync.RWMutex
	current Theme

	// persisted reports whether current came from a stored preference
	// rather than environment detection.
	persisted bool
}

// Init resolves the starting theme: a valid persisted preference wins,
// otherwise the environment decides, otherwise Dark.
func Init(persisted string, getenv func(string) string) *State {
	return InitProbe(persisted, getenv, nil)
}

// InitProbe is Init with a terminal probe consulted after the environment
// and before falling back to Dark.
func InitProbe(persisted string, getenv func(string) string, probe func() (Theme, bool)) *State {
	if t, ok := Parse(persisted); ok {
		return &State{current: t, persisted: true}
	}
	if t, ok := fromEnv(getenv); ok {
		return &State{current: t}
	}
	if probe != nil {
		if t, ok := probe(); ok {
			return &State{current: t}
		}
	}
	return &State{current: Dark}
}

// Detect reads the theme signal from the environment.
func Detect(getenv func(string) string) Theme {
	if t, ok := fromEnv(getenv); ok {
		return t
	}
	return Dark
}

func fromEnv(getenv func(string) string) (Theme, bool) {
	if getenv == nil {
		return "", false
	}
	if t, ok := Parse(getenv(EnvTheme)); ok {
		return t, true
	}

	// COLORFGBG ends with the background color index. 7 and 15 are the
	// light greys and white of the 16 color palette.
	if v := getenv(envColorFgBg); v != "" {
		parts := strings.Split(v, ";")
		if bg, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			if bg == 7 || bg == 15 {
				return Light, true
			}
			return Dark, true
		}
	}

	return "", false
}

// Current returns the active theme.
func (s *State) Current() Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Persisted reports whether the active theme is a stored preference.
func (s *State) Persisted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persisted
}

// Toggle flips the theme and returns the new one. The result becomes an
// explicit preference that callers persist.
func (s *State) Toggle() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == Dark {
		s.current = Light
	} else {
		s.current = Dark
	}
	s.persisted = true
	return s.current
}

// GlamourStyle returns the glamour standard style matching the theme.
func (s *State) GlamourStyle() string {
	return string(s.Current())
}

// Package dotdir locates the .studio/ directory that holds config.toml and
// credentials.toml.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the directory studio looks for in the working directory and in
// the user's home.
const DirName = ".studio"

// Manager resolves .studio/ directories relative to the process working
// directory and $HOME at call time.
type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target resolves the .studio/ directory to use:
//
//  1. override, created when missing
//  2. ./.studio
//  3. ~/.studio
//
// It returns "" when no override is given and neither directory exists.
func (m *Manager) Target(override string) (string, error) {
	if override != "" {
		if err := os.MkdirAll(override, 0o755); err != nil {
			return "", fmt.Errorf("creating studio directory %s: %w", override, err)
		}
		return filepath.Abs(override)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	for _, dir := range []string{filepath.Join(cwd, DirName), filepath.Join(home, DirName)} {
		if isDir(dir) {
			return dir, nil
		}
	}
	return "", nil
}

// EnsureHome creates ~/.studio/ if needed and returns its path.
func (m *Manager) EnsureHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	dir := filepath.Join(home, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating studio directory %s: %w", dir, err)
	}
	return dir, nil
}

// File returns the path of name inside the resolved .studio/ directory,
// falling back to a freshly created ~/.studio/ when Target finds nothing.
func (m *Manager) File(override, name string) (string, error) {
	dir, err := m.Target(override)
	if err != nil {
		return "", err
	}
	if dir == "" {
		if dir, err = m.EnsureHome(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, name), nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

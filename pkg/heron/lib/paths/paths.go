// Package paths provides cross-platform path utilities for Heron.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDataDir returns the platform-specific default data directory for
// Heron: feature stores, word maps and occurrence files live under it.
// Returns ~/.heron/data on Unix-like systems and %USERPROFILE%\.heron\data on
// Windows. Falls back to "./data" if home directory cannot be determined.
func DefaultDataDir() string {
	home := userHomeDir()
	if home == "" {
		return filepath.FromSlash("./data")
	}
	return filepath.Join(home, ".heron", "data")
}

// DefaultCheckpointsDir returns the default directory for model weight
// snapshots. Falls back to "./checkpoints" if home directory cannot be
// determined.
func DefaultCheckpointsDir() string {
	home := userHomeDir()
	if home == "" {
		return filepath.FromSlash("./checkpoints")
	}
	return filepath.Join(home, ".heron", "checkpoints")
}

// userHomeDir returns the user's home directory in a cross-platform manner.
// On Unix: $HOME
// On Windows: %USERPROFILE% (preferred) or %HOMEDRIVE%%HOMEPATH%
// Note: On Windows, we check USERPROFILE first because $HOME from Git Bash/MSYS2
// may contain Unix-style paths (e.g., /c/Users/...) that don't work with Windows APIs.
func userHomeDir() string {
	// Windows-specific: check USERPROFILE first to avoid Unix-style $HOME from Git Bash
	if runtime.GOOS == "windows" {
		// USERPROFILE is the most reliable on Windows
		if home := os.Getenv("USERPROFILE"); home != "" {
			return home
		}
		// Fallback to HOMEDRIVE+HOMEPATH
		if drive, path := os.Getenv("HOMEDRIVE"), os.Getenv("HOMEPATH"); drive != "" && path != "" {
			return filepath.Join(drive, path)
		}
	}

	// Unix: use $HOME
	if home := os.Getenv("HOME"); home != "" {
		return home
	}

	// Use Go's built-in (Go 1.12+) as last resort
	home, _ := os.UserHomeDir()
	return home
}

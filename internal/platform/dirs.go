package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// ResolveDataDir returns the directory holding the recordings database,
// honoring an explicit override.
func ResolveDataDir(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	return DefaultDataDirFor(runtime.GOOS, homeDir, os.Getenv("XDG_DATA_HOME"))
}

// ResolveConfigDir returns the directory holding the preferences file,
// honoring an explicit override.
func ResolveConfigDir(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	return DefaultConfigDirFor(runtime.GOOS, homeDir, os.Getenv("XDG_CONFIG_HOME"))
}

func DefaultDataDirFor(goos, homeDir, xdgDataHome string) (string, error) {
	if homeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch goos {
	case "linux":
		if xdgDataHome != "" {
			return filepath.Join(xdgDataHome, "voicebox"), nil
		}
		return filepath.Join(homeDir, ".local", "share", "voicebox"), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", "voicebox"), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}

func DefaultConfigDirFor(goos, homeDir, xdgConfigHome string) (string, error) {
	if homeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch goos {
	case "linux":
		if xdgConfigHome != "" {
			return filepath.Join(xdgConfigHome, "voicebox"), nil
		}
		return filepath.Join(homeDir, ".config", "voicebox"), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", "voicebox"), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}

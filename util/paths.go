package util

import (
	"fmt"
	"os"
	"path/filepath"
)

const AppConfigDir = ".config/mammut"

// GetConfigDir returns ~/.config/mammut, creating it on first use.
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	dir := filepath.Join(home, AppConfigDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// ResolveFilePath locates a data or config file: the working directory
// wins, then the user config directory. When neither holds the file the
// user config path is returned so the caller can create it there.
func ResolveFilePath(filename string) string {
	if _, err := os.Stat(filename); err == nil {
		return filename
	}
	dir, err := GetConfigDir()
	if err != nil {
		return filename
	}
	return filepath.Join(dir, filename)
}

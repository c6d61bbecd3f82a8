package config

import (
	"os"
	"path/filepath"
)

// TriadPath returns the shared folder every Triad process points at.
// It uses $TRIAD_PATH if set, otherwise defaults to ~/.triad. Pointing
// TRIAD_PATH at a synchronized folder (Dropbox, Drive) lets workers on
// different machines share the same document store.
func TriadPath() string {
	if v := os.Getenv("TRIAD_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".triad")
	}
	return filepath.Join(home, ".triad")
}

// ConfigPath returns the path to the Triad config file.
func ConfigPath() string {
	return filepath.Join(TriadPath(), "config.jsonc")
}

// DotenvPath returns the path to the Triad .env file.
func DotenvPath() string {
	return filepath.Join(TriadPath(), ".env")
}

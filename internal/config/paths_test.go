package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTriadPath_Default(t *testing.T) {
	t.Setenv("TRIAD_PATH", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}

	got := TriadPath()
	want := filepath.Join(home, ".triad")
	if got != want {
		t.Errorf("TriadPath() = %q, want %q", got, want)
	}
}

func TestTriadPath_EnvOverride(t *testing.T) {
	t.Setenv("TRIAD_PATH", "/tmp/custom-triad")

	got := TriadPath()
	want := "/tmp/custom-triad"
	if got != want {
		t.Errorf("TriadPath() = %q, want %q", got, want)
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("TRIAD_PATH", "/tmp/test-triad")

	got := ConfigPath()
	want := "/tmp/test-triad/config.jsonc"
	if got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestDotenvPath(t *testing.T) {
	t.Setenv("TRIAD_PATH", "/tmp/test-triad")

	got := DotenvPath()
	want := "/tmp/test-triad/.env"
	if got != want {
		t.Errorf("DotenvPath() = %q, want %q", got, want)
	}
}

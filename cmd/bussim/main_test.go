package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func parseServeFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "serve"}
	addServeFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func TestResolveConfigPresetThenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bussim.yaml")
	if err := os.WriteFile(path, []byte("speed: 9\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cmd := parseServeFlags(t, "--preset", "rush", "--config", path)
	cfg, err := resolveConfig(cmd)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cfg.Speed != 9 {
		t.Errorf("expected speed 9 from file, got %d", cfg.Speed)
	}
	if cfg.TickInterval != 5*time.Millisecond {
		t.Errorf("expected rush tick interval to survive the file, got %s", cfg.TickInterval)
	}
}

func TestResolveConfigFlagsWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bussim.yaml")
	if err := os.WriteFile(path, []byte("buses: 4\nlisten: 127.0.0.1:1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cmd := parseServeFlags(t, "--config", path, "--buses", "6", "--tick", "7ms")
	cfg, err := resolveConfig(cmd)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cfg.Buses != 6 || cfg.TickInterval != 7*time.Millisecond {
		t.Errorf("flags should override the file: %+v", cfg)
	}
	if cfg.Listen != "127.0.0.1:1" {
		t.Errorf("expected listen from file, got %s", cfg.Listen)
	}
}

func TestResolveConfigUnknownPreset(t *testing.T) {
	cmd := parseServeFlags(t, "--preset", "warp")
	if _, err := resolveConfig(cmd); err == nil {
		t.Error("expected unknown preset error")
	}
}

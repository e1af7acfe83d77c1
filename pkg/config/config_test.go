package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:7777" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.WorkspaceRoot != filepath.Join(home, "workspaces") {
		t.Errorf("WorkspaceRoot = %q", cfg.WorkspaceRoot)
	}
	if cfg.AgentCommand != "claude -p" {
		t.Errorf("AgentCommand = %q", cfg.AgentCommand)
	}
	if cfg.ReopenClosedOnResume == nil || !*cfg.ReopenClosedOnResume {
		t.Error("ReopenClosedOnResume should default to true")
	}
	if cfg.HeartbeatInterval != 15*time.Second {
		t.Errorf("HeartbeatInterval = %v", cfg.HeartbeatInterval)
	}
}

func TestLoadAppliesFileValues(t *testing.T) {
	home := t.TempDir()
	body := `
listen = "0.0.0.0:9000"
agent_command = "mock-agent --stream"
reopen_closed_on_resume = false

[segments]
globs = ["~/code/*"]
creation_roots = ["~/code"]
`
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.AgentCommand != "mock-agent --stream" {
		t.Errorf("AgentCommand = %q", cfg.AgentCommand)
	}
	if cfg.ReopenClosedOnResume == nil || *cfg.ReopenClosedOnResume {
		t.Error("reopen_closed_on_resume = false should stick")
	}
	if len(cfg.Segments.Globs) != 1 || cfg.Segments.Globs[0] != "~/code/*" {
		t.Errorf("Segments.Globs = %v", cfg.Segments.Globs)
	}
	// Unset keys still get defaults.
	if cfg.DBPath != filepath.Join(home, "loom.db") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
}

func TestLoadRejectsMalformedToml(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte("listen = ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(home); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestHomeEnvOverride(t *testing.T) {
	t.Setenv("LOOM_HOME", "/tmp/loom-test-home")
	home, err := Home()
	if err != nil {
		t.Fatalf("Home: %v", err)
	}
	if home != "/tmp/loom-test-home" {
		t.Errorf("Home = %q", home)
	}
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"loom/pkg/config"
)

// Paths holds all resolved loom state file paths. Use ResolvePaths() to
// populate it with defaults plus env overrides.
type Paths struct {
	LoomHome    string // ~/.loom or LOOM_HOME
	ConfigPath  string // config.toml
	StateDBPath string // loom.db or LOOM_DB_PATH
	SessionPath string // session.json or LOOM_SESSION_PATH
}

// ResolvePaths returns all loom paths, respecting env var overrides.
// Environment variables:
//   - LOOM_HOME: base directory for all loom state (default: ~/.loom)
//   - LOOM_DB_PATH: state database (default: $LOOM_HOME/loom.db)
//   - LOOM_SESSION_PATH: saved client session (default: $LOOM_HOME/session.json)
func ResolvePaths() (*Paths, error) {
	home, err := config.Home()
	if err != nil {
		return nil, err
	}
	return &Paths{
		LoomHome:    home,
		ConfigPath:  filepath.Join(home, "config.toml"),
		StateDBPath: resolvePathWithEnv("LOOM_DB_PATH", home, "loom.db"),
		SessionPath: resolvePathWithEnv("LOOM_SESSION_PATH", home, "session.json"),
	}, nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins
// base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}

// bootstrapLoomDir creates the loom state directory with 0700 permissions.
// Idempotent.
func bootstrapLoomDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create loom dir %s: %w", dir, err)
	}
	return nil
}

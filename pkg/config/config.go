package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"loom/pkg/protocol"
)

// Config holds loomd configuration, loaded from ~/.loom/config.toml.
// Zero values are replaced by defaults after decode.
type Config struct {
	// Listen is the daemon bind address (default "127.0.0.1:7777").
	Listen string `toml:"listen"`

	// WorkspaceRoot is where ancillary worktrees are created
	// (default ~/.loom/workspaces).
	WorkspaceRoot string `toml:"workspace_root"`

	// AncillaryRoot is where per-ancillary state (work logs) lives
	// (default ~/.loom/ancillaries).
	AncillaryRoot string `toml:"ancillary_root"`

	// DBPath is the SQLite state database path (default ~/.loom/loom.db).
	DBPath string `toml:"db_path"`

	// AgentCommand launches the coding agent inside a workspace. Parsed
	// shell-style; the prompt is appended as the final argument
	// (default "claude -p").
	AgentCommand string `toml:"agent_command"`

	// Segments configures project discovery.
	Segments SegmentsConfig `toml:"segments"`

	// ReopenClosedOnResume controls whether resuming an assignment whose
	// bead was closed out-of-band reopens the bead (default true).
	ReopenClosedOnResume *bool `toml:"reopen_closed_on_resume"`

	// HeartbeatInterval is the client supervisor's heartbeat period
	// (default 15s).
	HeartbeatInterval time.Duration `toml:"heartbeat_interval"`

	// MaxReconnectAttempts bounds client auto-reconnect before giving up
	// (default 10).
	MaxReconnectAttempts int `toml:"max_reconnect_attempts"`

	// ShutdownTimeout is the graceful shutdown bound (default 10s).
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// SegmentsConfig lists where segments (projects) are found.
type SegmentsConfig struct {
	// Globs expand to segment directories, e.g. "~/code/*".
	Globs []string `toml:"globs"`

	// Paths are explicit segment directories.
	Paths []string `toml:"paths"`

	// CreationRoots are directories under which new segments may be created.
	CreationRoots []string `toml:"creation_roots"`
}

func (c *Config) withDefaults(home string) Config {
	out := *c
	if out.Listen == "" {
		out.Listen = "127.0.0.1:7777"
	}
	if out.WorkspaceRoot == "" {
		out.WorkspaceRoot = filepath.Join(home, "workspaces")
	}
	if out.AncillaryRoot == "" {
		out.AncillaryRoot = filepath.Join(home, "ancillaries")
	}
	if out.DBPath == "" {
		out.DBPath = filepath.Join(home, "loom.db")
	}
	if out.AgentCommand == "" {
		out.AgentCommand = "claude -p"
	}
	if out.ReopenClosedOnResume == nil {
		v := true
		out.ReopenClosedOnResume = &v
	}
	if out.HeartbeatInterval == 0 {
		out.HeartbeatInterval = 15 * time.Second
	}
	if out.MaxReconnectAttempts == 0 {
		out.MaxReconnectAttempts = 10
	}
	if out.ShutdownTimeout == 0 {
		out.ShutdownTimeout = 10 * time.Second
	}
	return out
}

// Load reads config.toml from the loom home directory. A missing file is not
// an error; defaults apply.
func Load(home string) (Config, error) {
	var cfg Config
	path := filepath.Join(home, "config.toml")
	data, err := os.ReadFile(path) //nolint:gosec // path is under the loom home
	if err != nil {
		if os.IsNotExist(err) {
			return cfg.withDefaults(home), nil
		}
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg.withDefaults(home), nil
}

// Home resolves the loom state directory: $LOOM_HOME or ~/.loom.
func Home() (string, error) {
	if h := os.Getenv("LOOM_HOME"); h != "" {
		return h, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(userHome, protocol.LoomDir), nil
}

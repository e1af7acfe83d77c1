package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"loom/pkg/protocol"
)

// HooksFile is the optional per-segment workspace lifecycle definition,
// read from .loom.yaml at the segment root:
//
//	setup:
//	  - npm install
//	destroy:
//	  - docker compose down
type HooksFile struct {
	Setup   []string `yaml:"setup"`
	Destroy []string `yaml:"destroy"`
}

// HookRunner executes workspace lifecycle hooks inside the workspace with
// LOOM_WORKSPACE and LOOM_ANCILLARY exported.
type HookRunner struct {
	runner CommandRunner
}

func loadHooks(segmentDir string) (HooksFile, error) {
	var hooks HooksFile
	data, err := os.ReadFile(filepath.Join(segmentDir, protocol.HooksFile)) //nolint:gosec // segmentDir comes from config
	if err != nil {
		if os.IsNotExist(err) {
			return hooks, nil
		}
		return hooks, fmt.Errorf("reading %s: %w", protocol.HooksFile, err)
	}
	if err := yaml.Unmarshal(data, &hooks); err != nil {
		return hooks, fmt.Errorf("parsing %s: %w", protocol.HooksFile, err)
	}
	return hooks, nil
}

// RunSetup runs the segment's setup hooks in the workspace. Any failure is
// returned so the caller can roll the workspace back.
func (h *HookRunner) RunSetup(ctx context.Context, segmentDir, workspacePath, ancillaryID string) error {
	hooks, err := loadHooks(segmentDir)
	if err != nil {
		return err
	}
	return h.run(ctx, hooks.Setup, workspacePath, ancillaryID)
}

// RunDestroy runs the segment's destroy hooks in the workspace. Best effort.
func (h *HookRunner) RunDestroy(ctx context.Context, segmentDir, workspacePath, ancillaryID string) error {
	hooks, err := loadHooks(segmentDir)
	if err != nil {
		return err
	}
	return h.run(ctx, hooks.Destroy, workspacePath, ancillaryID)
}

func (h *HookRunner) run(ctx context.Context, commands []string, workspacePath, ancillaryID string) error {
	for _, command := range commands {
		env := fmt.Sprintf("LOOM_WORKSPACE=%s LOOM_ANCILLARY=%s", workspacePath, ancillaryID)
		if _, err := h.runner.Run(ctx, workspacePath, "sh", "-c", env+" "+command); err != nil {
			return fmt.Errorf("hook %q: %w", command, err)
		}
	}
	return nil
}

// Package workspace provisions isolated git worktrees for ancillaries.
// Each workspace lives at {root}/{segment}/{ancillary-slug} on branch
// ancillary/{ancillary-slug}. Workspace existence is the authoritative
// signal that an ancillary name is occupied.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"loom/pkg/protocol"
)

// CommandRunner abstracts command execution for testability.
// Production implementation uses os/exec; tests provide a mock.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// Provisioner creates and destroys ancillary workspaces.
type Provisioner struct {
	root   string
	runner CommandRunner
	hooks  *HookRunner
}

// New returns a Provisioner rooted at root.
func New(root string, runner CommandRunner) *Provisioner {
	return &Provisioner{
		root:   root,
		runner: runner,
		hooks:  &HookRunner{runner: runner},
	}
}

// Path returns where the workspace for (segment, ancillary) lives.
func (p *Provisioner) Path(segment, ancillaryID string) string {
	return filepath.Join(p.root, segment, protocol.AncillarySlug(ancillaryID))
}

// Exists reports whether the workspace directory is present.
func (p *Provisioner) Exists(segment, ancillaryID string) bool {
	info, err := os.Stat(p.Path(segment, ancillaryID))
	return err == nil && info.IsDir()
}

// Create provisions a worktree for the ancillary off the segment repo.
// A healthy existing worktree is reused (resume); an orphaned directory
// that git no longer tracks is removed first. Setup hooks from the
// segment's hooks file run inside the new workspace; a hook failure rolls
// the workspace back so no orphan is left behind.
func (p *Provisioner) Create(ctx context.Context, segmentDir, segment, ancillaryID string) (string, error) {
	path := p.Path(segment, ancillaryID)
	branch := protocol.BranchPrefix + protocol.AncillarySlug(ancillaryID)

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if p.isHealthyWorktree(ctx, segmentDir, path) {
			return path, nil
		}
		// Orphaned directory: git lost track of it, clear it out.
		_, _ = p.runner.Run(ctx, segmentDir, "git", "worktree", "prune")
		if err := os.RemoveAll(path); err != nil {
			return "", &protocol.WorkspaceProvisionError{Segment: segment, Name: ancillaryID, Err: err}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", &protocol.WorkspaceProvisionError{Segment: segment, Name: ancillaryID, Err: err}
	}

	_, err := p.runner.Run(ctx, segmentDir, "git", "worktree", "add", path, "-b", branch)
	if err != nil {
		// The branch may survive a previously destroyed workspace; retry on it.
		if _, retryErr := p.runner.Run(ctx, segmentDir, "git", "worktree", "add", path, branch); retryErr != nil {
			return "", &protocol.WorkspaceProvisionError{Segment: segment, Name: ancillaryID, Err: err}
		}
	}

	if err := p.hooks.RunSetup(ctx, segmentDir, path, ancillaryID); err != nil {
		_ = p.destroyWorktree(ctx, segmentDir, path)
		return "", &protocol.WorkspaceProvisionError{Segment: segment, Name: ancillaryID, Err: err}
	}
	return path, nil
}

// Destroy removes the workspace. A missing workspace is a no-op. The
// directory is renamed aside first and deleted in the background so the
// caller returns fast; Prune sweeps any renamed remnants left by a crash.
func (p *Provisioner) Destroy(ctx context.Context, segmentDir, segment, ancillaryID string) error {
	path := p.Path(segment, ancillaryID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	_ = p.hooks.RunDestroy(ctx, segmentDir, path, ancillaryID)
	return p.destroyWorktree(ctx, segmentDir, path)
}

func (p *Provisioner) destroyWorktree(ctx context.Context, segmentDir, path string) error {
	_, _ = p.runner.Run(ctx, segmentDir, "git", "worktree", "remove", path, "--force")
	_, _ = p.runner.Run(ctx, segmentDir, "git", "worktree", "prune")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	// git may refuse (dirty or orphaned); rename aside and delete in the
	// background so Exists flips false immediately.
	aside := filepath.Join(filepath.Dir(path), ".cleanup-"+uuid.NewString())
	if err := os.Rename(path, aside); err != nil {
		return fmt.Errorf("renaming workspace for cleanup: %w", err)
	}
	go func() { _ = os.RemoveAll(aside) }()
	return nil
}

// Revision returns the workspace's current commit hash, or "" when it
// cannot be determined.
func (p *Provisioner) Revision(ctx context.Context, segment, ancillaryID string) string {
	path := p.Path(segment, ancillaryID)
	out, err := p.runner.Run(ctx, path, "git", "rev-parse", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// List returns the occupied ancillary slugs for a segment, from disk.
func (p *Provisioner) List(segment string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(p.root, segment))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing workspaces: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".cleanup-") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Prune sweeps stale .cleanup-* directories left by background deletes that
// never finished. Best effort; always returns nil so startup proceeds.
func (p *Provisioner) Prune() error {
	segs, err := os.ReadDir(p.root)
	if err != nil {
		return nil //nolint:nilerr // missing root is expected on first run
	}
	for _, seg := range segs {
		if !seg.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(p.root, seg.Name()))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() && strings.HasPrefix(e.Name(), ".cleanup-") {
				_ = os.RemoveAll(filepath.Join(p.root, seg.Name(), e.Name()))
			}
		}
	}
	return nil
}

// isHealthyWorktree reports whether path is a worktree git still tracks.
func (p *Provisioner) isHealthyWorktree(ctx context.Context, segmentDir, path string) bool {
	out, err := p.runner.Run(ctx, segmentDir, "git", "worktree", "list", "--porcelain")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "worktree ") && strings.TrimPrefix(line, "worktree ") == path {
			return true
		}
	}
	return false
}

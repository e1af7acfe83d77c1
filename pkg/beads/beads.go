// Package beads talks to the bd CLI, the source of truth for units of work.
// Commands run in the segment's directory so each segment keeps its own bead
// database.
package beads

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"loom/pkg/protocol"
)

// CommandRunner abstracts command execution for testability.
// Production implementation uses os/exec; tests provide a mock.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner is the production CommandRunner.
type ExecRunner struct{}

// Run executes name with args in dir and returns combined output on failure
// context, stdout on success.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // args come from daemon code, not clients
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s %v: %w: %s", name, args, err, ee.Stderr)
		}
		return nil, fmt.Errorf("%s %v: %w", name, args, err)
	}
	return out, nil
}

// Source is the bead operations the assignment manager needs.
type Source interface {
	Show(ctx context.Context, segmentDir, id string) (protocol.Bead, error)
	Ready(ctx context.Context, segmentDir string) ([]protocol.Bead, error)
	Create(ctx context.Context, segmentDir, title, body string) (protocol.Bead, error)
	Claim(ctx context.Context, segmentDir, id, assignee string) error
	UpdateStatus(ctx context.Context, segmentDir, id, status string) error
	UpdateAssignee(ctx context.Context, segmentDir, id, assignee string) error
}

// CLISource implements Source by shelling out to bd.
type CLISource struct {
	runner CommandRunner
}

// NewCLISource creates a CLISource backed by the given CommandRunner.
func NewCLISource(runner CommandRunner) *CLISource {
	return &CLISource{runner: runner}
}

// Show runs `bd show <id> --json`.
func (s *CLISource) Show(ctx context.Context, segmentDir, id string) (protocol.Bead, error) {
	out, err := s.runner.Run(ctx, segmentDir, "bd", "show", id, "--json")
	if err != nil {
		return protocol.Bead{}, &protocol.BeadNotFoundError{BeadID: id}
	}
	var bead protocol.Bead
	if err := json.Unmarshal(out, &bead); err != nil {
		return protocol.Bead{}, fmt.Errorf("parse bd show output: %w", err)
	}
	return bead, nil
}

// Ready runs `bd ready --json`.
func (s *CLISource) Ready(ctx context.Context, segmentDir string) ([]protocol.Bead, error) {
	out, err := s.runner.Run(ctx, segmentDir, "bd", "ready", "--json")
	if err != nil {
		return nil, fmt.Errorf("bd ready: %w", err)
	}
	var beads []protocol.Bead
	if err := json.Unmarshal(out, &beads); err != nil {
		return nil, fmt.Errorf("parse bd ready output: %w", err)
	}
	return beads, nil
}

// Create runs `bd create` for an ad-hoc prompt bead and returns it.
func (s *CLISource) Create(ctx context.Context, segmentDir, title, body string) (protocol.Bead, error) {
	args := []string{"create", title, "--json"}
	if body != "" {
		args = append(args, "--body="+body)
	}
	out, err := s.runner.Run(ctx, segmentDir, "bd", args...)
	if err != nil {
		return protocol.Bead{}, fmt.Errorf("bd create: %w", err)
	}
	var bead protocol.Bead
	if err := json.Unmarshal(out, &bead); err != nil {
		return protocol.Bead{}, fmt.Errorf("parse bd create output: %w", err)
	}
	return bead, nil
}

// Claim marks the bead in_progress with the given assignee.
func (s *CLISource) Claim(ctx context.Context, segmentDir, id, assignee string) error {
	if err := s.UpdateStatus(ctx, segmentDir, id, protocol.BeadInProgress); err != nil {
		return err
	}
	return s.UpdateAssignee(ctx, segmentDir, id, assignee)
}

// UpdateStatus runs `bd update <id> --status=<status>`.
func (s *CLISource) UpdateStatus(ctx context.Context, segmentDir, id, status string) error {
	if _, err := s.runner.Run(ctx, segmentDir, "bd", "update", id, "--status="+status); err != nil {
		return fmt.Errorf("bd update %s status: %w", id, err)
	}
	return nil
}

// UpdateAssignee runs `bd update <id> --assignee=<assignee>`.
func (s *CLISource) UpdateAssignee(ctx context.Context, segmentDir, id, assignee string) error {
	if _, err := s.runner.Run(ctx, segmentDir, "bd", "update", id, "--assignee="+assignee); err != nil {
		return fmt.Errorf("bd update %s assignee: %w", id, err)
	}
	return nil
}

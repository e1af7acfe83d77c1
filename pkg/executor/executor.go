// Package executor runs the coding agent for one assignment and feeds its
// output into the work log. The agent is opaque: loom spawns it, streams
// its stdout, and relays client input to its stdin.
package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"

	"loom/pkg/protocol"
	"loom/pkg/worklog"
)

// WorkStatus values for a running agent.
const (
	WorkStarting      = protocol.StatusStarting
	WorkWorking       = protocol.StatusWorking
	WorkAwaitingInput = protocol.StatusAwaitingInput
	WorkCompleted     = protocol.StatusCompleted
	WorkFailed        = protocol.StatusFailed
)

// Process is a running agent subprocess.
type Process interface {
	Stdout() io.ReadCloser
	Stdin() io.WriteCloser
	Wait() error
	Kill() error
}

// Spawner starts agent processes. Production uses os/exec; tests provide a
// scripted fake.
type Spawner interface {
	Spawn(ctx context.Context, workdir, prompt string) (Process, error)
}

// CommandSpawner invokes the configured agent command, shell-style split,
// with the prompt appended as the final argument.
type CommandSpawner struct {
	Command string
}

// Spawn starts the agent in workdir.
func (s *CommandSpawner) Spawn(ctx context.Context, workdir, prompt string) (Process, error) {
	name, args, err := splitCommand(s.Command)
	if err != nil {
		return nil, err
	}
	args = append(args, prompt)
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // command comes from operator config
	cmd.Dir = workdir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("agent stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("agent stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start agent: %w", err)
	}
	return &cmdProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

type cmdProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (p *cmdProcess) Stdout() io.ReadCloser { return p.stdout }
func (p *cmdProcess) Stdin() io.WriteCloser { return p.stdin }

func (p *cmdProcess) Wait() error {
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("agent process wait: %w", err)
	}
	return nil
}

func (p *cmdProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill agent process: %w", err)
	}
	return nil
}

// splitCommand splits an agent command string on spaces, honoring single
// and double quotes.
func splitCommand(s string) (string, []string, error) {
	var parts []string
	var cur strings.Builder
	var quote rune
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ' ' || r == '\t':
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if quote != 0 {
		return "", nil, fmt.Errorf("unbalanced quote in agent command %q", s)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("empty agent command")
	}
	return parts[0], parts[1:], nil
}

// StatusFunc receives agent status transitions. The daemon wires this to
// the session registry.
type StatusFunc func(ancillaryID, status string)

// Work is one running agent bound to a work log.
type Work struct {
	AncillaryID string
	BeadID      string

	log      *worklog.Log
	onStatus StatusFunc

	mu     sync.Mutex
	proc   Process
	status string
	done   chan struct{}
}

// Start spawns the agent in the workspace and begins translating its stream
// into the work log.
func Start(ctx context.Context, spawner Spawner, workdir, prompt string, wl *worklog.Log, ancillaryID, beadID string, onStatus StatusFunc) (*Work, error) {
	proc, err := spawner.Spawn(ctx, workdir, prompt)
	if err != nil {
		return nil, fmt.Errorf("spawning agent: %w", err)
	}
	w := &Work{
		AncillaryID: ancillaryID,
		BeadID:      beadID,
		log:         wl,
		onStatus:    onStatus,
		proc:        proc,
		status:      WorkStarting,
		done:        make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Status returns the current work status.
func (w *Work) Status() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Done is closed when the agent exits and the stream is fully drained.
func (w *Work) Done() <-chan struct{} { return w.done }

// Interrupt kills the agent process. The run loop observes the stream
// closing and finishes.
func (w *Work) Interrupt() error {
	w.mu.Lock()
	proc := w.proc
	w.mu.Unlock()
	if proc == nil {
		return nil
	}
	return proc.Kill()
}

// Message records client input in the work log and forwards it to the
// agent's stdin as a JSON line.
func (w *Work) Message(content, clientID string) error {
	if _, err := w.log.Append(protocol.UserMessage(content, clientID)); err != nil {
		return err
	}
	w.mu.Lock()
	proc := w.proc
	w.mu.Unlock()
	if proc == nil {
		return fmt.Errorf("agent for %s is not running", w.AncillaryID)
	}
	line, err := json.Marshal(struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}{Type: "user", Content: content})
	if err != nil {
		return fmt.Errorf("encoding agent input: %w", err)
	}
	if _, err := proc.Stdin().Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing to agent stdin: %w", err)
	}
	w.setStatus(WorkWorking)
	return nil
}

func (w *Work) setStatus(status string) {
	w.mu.Lock()
	if w.status == status {
		w.mu.Unlock()
		return
	}
	w.status = status
	w.mu.Unlock()
	if w.onStatus != nil {
		w.onStatus(w.AncillaryID, status)
	}
}

// run drains the agent's stdout until it exits. A work log append failure
// is fatal to the session: the run fails and a final status_change{failed}
// is broadcast best effort.
func (w *Work) run() {
	defer close(w.done)
	w.setStatus(WorkWorking)

	parser := NewParser()
	var result *Result

	scanner := bufio.NewScanner(w.proc.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		ops, res, err := parser.ParseLine(scanner.Text())
		if err != nil {
			log.Printf("executor %s: %v", w.AncillaryID, err)
			continue
		}
		for _, op := range ops {
			if _, err := w.log.Append(op); err != nil {
				log.Printf("executor %s: work log append failed: %v", w.AncillaryID, err)
				w.fail("work log write failed: " + err.Error())
				_ = w.proc.Kill()
				_ = w.proc.Wait()
				return
			}
		}
		if res != nil {
			result = res
		}
	}

	waitErr := w.proc.Wait()
	switch {
	case result != nil && !result.IsError && waitErr == nil:
		w.setStatus(WorkCompleted)
	case result != nil && result.IsError:
		w.fail(result.Text)
	case waitErr != nil:
		w.fail(waitErr.Error())
	default:
		// Exited cleanly without a result message: the agent is waiting
		// on the next user turn in a long-running session.
		w.setStatus(WorkAwaitingInput)
	}
}

func (w *Work) fail(reason string) {
	_, _ = w.log.Append(protocol.AssignmentFailed(reason))
	w.setStatus(WorkFailed)
}

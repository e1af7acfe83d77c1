package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"loom/pkg/protocol"
	"loom/pkg/worklog"
)

// fakeProcess serves scripted stdout lines and records stdin writes.
type fakeProcess struct {
	stdout io.ReadCloser
	stdin  *lockedBuffer
	killed chan struct{}
	once   sync.Once
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Close() error { return nil }

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newFakeProcess(lines ...string) *fakeProcess {
	return &fakeProcess{
		stdout: io.NopCloser(strings.NewReader(strings.Join(lines, "\n"))),
		stdin:  &lockedBuffer{},
		killed: make(chan struct{}),
	}
}

func (p *fakeProcess) Stdout() io.ReadCloser { return p.stdout }
func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *fakeProcess) Wait() error           { return nil }
func (p *fakeProcess) Kill() error {
	p.once.Do(func() { close(p.killed) })
	return nil
}

type fakeSpawner struct {
	proc *fakeProcess
}

func (s *fakeSpawner) Spawn(context.Context, string, string) (Process, error) {
	return s.proc, nil
}

func openLog(t *testing.T) *worklog.Log {
	t.Helper()
	l, err := worklog.Open(t.TempDir(), "Calculator One", "loom-a1b2")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close("test done") })
	return l
}

func waitDone(t *testing.T, w *Work) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("work did not finish")
	}
}

func TestWorkStreamsOpsIntoLog(t *testing.T) {
	wl := openLog(t)
	spawner := &fakeSpawner{proc: newFakeProcess(
		`{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}`,
		`{"type":"result","subtype":"success","result":"all done"}`,
	)}

	var statuses []string
	var mu sync.Mutex
	w, err := Start(context.Background(), spawner, "/w", "fix it", wl, "Calculator One", "loom-a1b2",
		func(_, status string) {
			mu.Lock()
			statuses = append(statuses, status)
			mu.Unlock()
		})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, w)

	if w.Status() != WorkCompleted {
		t.Errorf("status = %q, want completed", w.Status())
	}
	evs, err := wl.ReadFrom(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 || evs[0].Op.Type != protocol.OpAssistantMessage {
		t.Errorf("log events = %d", len(evs))
	}
	mu.Lock()
	defer mu.Unlock()
	if len(statuses) == 0 || statuses[len(statuses)-1] != WorkCompleted {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestWorkErrorResultFailsAssignment(t *testing.T) {
	wl := openLog(t)
	spawner := &fakeSpawner{proc: newFakeProcess(
		`{"type":"result","subtype":"error_during_execution","is_error":true,"result":"crashed"}`,
	)}

	w, err := Start(context.Background(), spawner, "/w", "fix it", wl, "Calculator One", "loom-a1b2", nil)
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, w)

	if w.Status() != WorkFailed {
		t.Errorf("status = %q, want failed", w.Status())
	}
	evs, _ := wl.ReadFrom(0)
	var failed bool
	for _, ev := range evs {
		if ev.Op.Type == protocol.OpAssignmentFailed {
			failed = true
		}
	}
	if !failed {
		t.Error("assignment_failed not logged")
	}
}

func TestMessageLogsAndForwards(t *testing.T) {
	wl := openLog(t)
	proc := newFakeProcess() // no stdout; run loop finishes quickly
	spawner := &fakeSpawner{proc: proc}

	w, err := Start(context.Background(), spawner, "/w", "fix it", wl, "Calculator One", "loom-a1b2", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Message("try again", "client-7"); err != nil {
		t.Fatalf("Message: %v", err)
	}
	waitDone(t, w)

	evs, _ := wl.ReadFrom(0)
	var logged bool
	for _, ev := range evs {
		if ev.Op.Type == protocol.OpUserMessage && ev.Op.UserMessage.ClientID == "client-7" {
			logged = true
		}
	}
	if !logged {
		t.Error("user_message not logged")
	}
	if !strings.Contains(proc.stdin.String(), "try again") {
		t.Errorf("stdin = %q", proc.stdin.String())
	}
}

func TestMessageEncodesStdinAsJSON(t *testing.T) {
	wl := openLog(t)
	proc := newFakeProcess()
	spawner := &fakeSpawner{proc: proc}

	w, err := Start(context.Background(), spawner, "/w", "fix it", wl, "Calculator One", "loom-a1b2", nil)
	if err != nil {
		t.Fatal(err)
	}
	// Control and non-ASCII characters must survive the trip intact.
	content := "réessaie\tavec\a\nsoin"
	if err := w.Message(content, "client-7"); err != nil {
		t.Fatalf("Message: %v", err)
	}
	waitDone(t, w)

	line := strings.TrimSpace(proc.stdin.String())
	var got struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("stdin is not valid JSON: %v\nline: %s", err, line)
	}
	if got.Type != "user" || got.Content != content {
		t.Errorf("decoded input = %+v", got)
	}
}

func TestManagerLifecycle(t *testing.T) {
	wl := openLog(t)
	proc := newFakeProcess(
		`{"type":"result","subtype":"success","result":"done"}`,
	)
	m := NewManager(&fakeSpawner{proc: proc}, nil)

	w, err := m.StartWork(context.Background(), "Calculator One", "loom-a1b2", "/w", "fix it", wl)
	if err != nil {
		t.Fatalf("StartWork: %v", err)
	}
	if _, err := m.StartWork(context.Background(), "Calculator One", "loom-a1b2", "/w", "fix it", wl); err == nil {
		t.Error("second StartWork for the same ancillary should fail")
	}
	waitDone(t, w)

	// The reaper clears the entry once the agent exits.
	deadline := time.Now().Add(2 * time.Second)
	for m.HasActiveWork("Calculator One") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.HasActiveWork("Calculator One") {
		t.Error("work entry not reaped after completion")
	}

	m.StopWork("Calculator One") // no-op on missing entry
}

func TestStopWorkInterrupts(t *testing.T) {
	wl := openLog(t)
	// Stdout that never closes on its own.
	pr, pw := io.Pipe()
	proc := &fakeProcess{stdout: pr, stdin: &lockedBuffer{}, killed: make(chan struct{})}
	m := NewManager(&fakeSpawner{proc: proc}, nil)

	if _, err := m.StartWork(context.Background(), "Calculator One", "loom-a1b2", "/w", "fix it", wl); err != nil {
		t.Fatal(err)
	}
	go func() {
		<-proc.killed
		_ = pw.Close()
	}()
	done := make(chan struct{})
	go func() {
		m.StopWork("Calculator One")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StopWork did not return after interrupt")
	}
	if m.HasActiveWork("Calculator One") {
		t.Error("work still tracked after StopWork")
	}
}

package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"loom/pkg/protocol"
)

// fakeGit simulates git worktree commands: "worktree add" creates the
// directory, "worktree list" reports the ones it created. Other commands
// are recorded and succeed.
type fakeGit struct {
	calls     []string
	worktrees map[string]bool
	failAdd   bool
	hookErr   error
}

func newFakeGit() *fakeGit {
	return &fakeGit{worktrees: make(map[string]bool)}
}

func (f *fakeGit) Run(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	if name == "sh" && f.hookErr != nil {
		return nil, f.hookErr
	}
	if name != "git" || len(args) < 2 || args[0] != "worktree" {
		if name == "git" && len(args) > 0 && args[0] == "rev-parse" {
			return []byte("abc123\n"), nil
		}
		return nil, nil
	}
	switch args[1] {
	case "add":
		if f.failAdd {
			return nil, errors.New("fatal: could not create work tree")
		}
		path := args[2]
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
		f.worktrees[path] = true
		return nil, nil
	case "remove":
		path := args[2]
		if f.worktrees[path] {
			delete(f.worktrees, path)
			return nil, os.RemoveAll(path)
		}
		return nil, errors.New("fatal: not a working tree")
	case "list":
		var b strings.Builder
		for path := range f.worktrees {
			b.WriteString("worktree " + path + "\n")
		}
		return []byte(b.String()), nil
	}
	_ = dir
	return nil, nil
}

func TestCreateProvisionsWorktree(t *testing.T) {
	git := newFakeGit()
	p := New(t.TempDir(), git)

	path, err := p.Create(context.Background(), t.TempDir(), "calculator", "Calculator One")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if path != p.Path("calculator", "Calculator One") {
		t.Errorf("path = %q", path)
	}
	if !p.Exists("calculator", "Calculator One") {
		t.Error("Exists = false after Create")
	}

	var added bool
	for _, c := range git.calls {
		if strings.Contains(c, "worktree add") && strings.Contains(c, "-b ancillary/calculator-one") {
			added = true
		}
	}
	if !added {
		t.Errorf("no branch-creating worktree add in %v", git.calls)
	}
}

func TestCreateReusesHealthyWorktree(t *testing.T) {
	git := newFakeGit()
	p := New(t.TempDir(), git)
	seg := t.TempDir()

	first, err := p.Create(context.Background(), seg, "calculator", "Calculator One")
	if err != nil {
		t.Fatal(err)
	}
	calls := len(git.calls)

	second, err := p.Create(context.Background(), seg, "calculator", "Calculator One")
	if err != nil {
		t.Fatalf("re-Create: %v", err)
	}
	if second != first {
		t.Errorf("reuse returned different path: %q vs %q", second, first)
	}
	for _, c := range git.calls[calls:] {
		if strings.Contains(c, "worktree add") {
			t.Errorf("healthy worktree was re-added: %v", git.calls[calls:])
		}
	}
}

func TestCreateFailureIsTypedAndLeavesNothing(t *testing.T) {
	git := newFakeGit()
	git.failAdd = true
	p := New(t.TempDir(), git)

	_, err := p.Create(context.Background(), t.TempDir(), "calculator", "Calculator One")
	var provErr *protocol.WorkspaceProvisionError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected WorkspaceProvisionError, got %v", err)
	}
	if p.Exists("calculator", "Calculator One") {
		t.Error("failed provisioning left a workspace behind")
	}
}

func TestSetupHookFailureRollsBack(t *testing.T) {
	git := newFakeGit()
	git.hookErr = errors.New("npm install failed")
	p := New(t.TempDir(), git)
	seg := t.TempDir()
	hooks := "setup:\n  - npm install\n"
	if err := os.WriteFile(filepath.Join(seg, protocol.HooksFile), []byte(hooks), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := p.Create(context.Background(), seg, "calculator", "Calculator One")
	if err == nil {
		t.Fatal("expected setup hook failure")
	}
	ok := pollFor(func() bool { return !p.Exists("calculator", "Calculator One") })
	if !ok {
		t.Error("workspace not rolled back after hook failure")
	}
}

func TestDestroyMissingWorkspaceIsNoOp(t *testing.T) {
	p := New(t.TempDir(), newFakeGit())
	if err := p.Destroy(context.Background(), t.TempDir(), "calculator", "Calculator One"); err != nil {
		t.Errorf("Destroy of missing workspace: %v", err)
	}
}

func TestDestroyRemovesWorkspace(t *testing.T) {
	git := newFakeGit()
	p := New(t.TempDir(), git)
	seg := t.TempDir()

	if _, err := p.Create(context.Background(), seg, "calculator", "Calculator One"); err != nil {
		t.Fatal(err)
	}
	if err := p.Destroy(context.Background(), seg, "calculator", "Calculator One"); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	ok := pollFor(func() bool { return !p.Exists("calculator", "Calculator One") })
	if !ok {
		t.Error("workspace still exists after Destroy")
	}
}

func TestListSkipsCleanupDirs(t *testing.T) {
	root := t.TempDir()
	p := New(root, newFakeGit())
	for _, d := range []string{"calculator-one", ".cleanup-xyz"} {
		if err := os.MkdirAll(filepath.Join(root, "calculator", d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	got, err := p.List("calculator")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "calculator-one" {
		t.Errorf("List = %v", got)
	}
}

func TestPruneSweepsCleanupDirs(t *testing.T) {
	root := t.TempDir()
	p := New(root, newFakeGit())
	stale := filepath.Join(root, "calculator", ".cleanup-old")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := p.Prune(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale cleanup dir survived Prune")
	}
}

// pollFor waits for background deletes, which have no handle to join on.
func pollFor(check func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return check()
}

package segments

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"loom/pkg/config"
	"loom/pkg/protocol"
)

func TestDiscoveryFromGlobsAndPaths(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"calculator", "weaver"} {
		if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	extra := t.TempDir()

	s, err := New(config.SegmentsConfig{
		Globs: []string{filepath.Join(root, "*")},
		Paths: []string{extra},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("discovered %d segments, want 3: %v", len(list), list)
	}

	seg, err := s.Get("Calculator")
	if err != nil {
		t.Fatalf("Get is case-insensitive: %v", err)
	}
	if seg.Name != "calculator" {
		t.Errorf("seg = %+v", seg)
	}
}

func TestGetUnknownSegmentIsTyped(t *testing.T) {
	s, err := New(config.SegmentsConfig{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Get("ghost")
	var unknown *protocol.SegmentUnknownError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected SegmentUnknownError, got %v", err)
	}
}

func TestDiscoveryDedupesByCanonicalPath(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "calculator")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	// Same directory reachable through glob and explicit path.
	s, err := New(config.SegmentsConfig{
		Globs: []string{filepath.Join(root, "*")},
		Paths: []string{dir},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := len(s.List()); got != 1 {
		t.Errorf("got %d segments, want 1", got)
	}
}

func TestCreateRequiresConfiguredRoot(t *testing.T) {
	root := t.TempDir()
	s, err := New(config.SegmentsConfig{CreationRoots: []string{root}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Create("newseg", t.TempDir()); err == nil {
		t.Error("Create outside creation roots should fail")
	}

	seg, err := s.Create("newseg", root)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if seg.Path != filepath.Join(root, "newseg") {
		t.Errorf("seg.Path = %q", seg.Path)
	}
	if _, err := os.Stat(seg.Path); err != nil {
		t.Errorf("segment directory missing: %v", err)
	}
	if _, err := s.Get("newseg"); err != nil {
		t.Errorf("created segment not registered: %v", err)
	}

	if _, err := s.Create("newseg", root); err == nil {
		t.Error("re-creating an existing segment should fail")
	}
}

func TestCreateRejectsBadNames(t *testing.T) {
	root := t.TempDir()
	s, err := New(config.SegmentsConfig{CreationRoots: []string{root}})
	if err != nil {
		t.Fatal(err)
	}
	for _, bad := range []string{"", "a/b", "has space"} {
		if _, err := s.Create(bad, root); err == nil {
			t.Errorf("Create(%q) should fail", bad)
		}
	}
}

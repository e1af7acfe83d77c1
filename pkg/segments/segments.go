// Package segments discovers the projects ancillaries can work on. A
// segment is a directory holding a git repo plus its bead database; the set
// comes from config globs, explicit paths, and creation roots.
package segments

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"loom/pkg/config"
	"loom/pkg/protocol"
)

// Segment is one discovered project.
type Segment struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Store resolves segment names to directories.
type Store struct {
	cfg config.SegmentsConfig

	mu       sync.RWMutex
	segments map[string]Segment
}

// New builds a Store and runs the initial discovery.
func New(cfg config.SegmentsConfig) (*Store, error) {
	s := &Store{cfg: cfg, segments: make(map[string]Segment)}
	if err := s.Refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh rediscovers segments from the configured globs and paths. Entries
// are deduped by canonical path; the segment name is the directory basename,
// lowercased.
func (s *Store) Refresh() error {
	found := make(map[string]Segment)
	seen := make(map[string]bool)

	add := func(dir string) {
		canonical, err := filepath.EvalSymlinks(dir)
		if err != nil {
			canonical = filepath.Clean(dir)
		}
		if seen[canonical] {
			return
		}
		info, err := os.Stat(canonical)
		if err != nil || !info.IsDir() {
			return
		}
		seen[canonical] = true
		name := strings.ToLower(filepath.Base(canonical))
		found[name] = Segment{Name: name, Path: canonical}
	}

	for _, g := range s.cfg.Globs {
		matches, err := filepath.Glob(expandHome(g))
		if err != nil {
			return fmt.Errorf("bad segment glob %q: %w", g, err)
		}
		for _, m := range matches {
			add(m)
		}
	}
	for _, p := range s.cfg.Paths {
		add(expandHome(p))
	}

	s.mu.Lock()
	s.segments = found
	s.mu.Unlock()
	return nil
}

// Get resolves a segment by name (case-insensitive).
func (s *Store) Get(name string) (Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segments[strings.ToLower(name)]
	if !ok {
		return Segment{}, &protocol.SegmentUnknownError{Segment: name}
	}
	return seg, nil
}

// List returns all segments sorted by name.
func (s *Store) List() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Segment, 0, len(s.segments))
	for _, seg := range s.segments {
		out = append(out, seg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Roots returns the configured creation roots.
func (s *Store) Roots() []string {
	out := make([]string, 0, len(s.cfg.CreationRoots))
	for _, r := range s.cfg.CreationRoots {
		out = append(out, expandHome(r))
	}
	return out
}

// Create makes a new segment directory under a configured creation root and
// registers it. The root must be one of the configured creation roots.
func (s *Store) Create(name, root string) (Segment, error) {
	root = expandHome(root)
	allowed := false
	for _, r := range s.Roots() {
		if filepath.Clean(r) == filepath.Clean(root) {
			allowed = true
			break
		}
	}
	if !allowed {
		return Segment{}, fmt.Errorf("%s is not a configured creation root", root)
	}
	name = strings.ToLower(name)
	if name == "" || strings.ContainsAny(name, "/ ") {
		return Segment{}, fmt.Errorf("invalid segment name %q", name)
	}

	dir := filepath.Join(root, name)
	if _, err := os.Stat(dir); err == nil {
		return Segment{}, fmt.Errorf("segment directory %s already exists", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Segment{}, fmt.Errorf("creating segment directory: %w", err)
	}

	seg := Segment{Name: name, Path: dir}
	s.mu.Lock()
	s.segments[name] = seg
	s.mu.Unlock()
	return seg, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

package segments

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// refreshFallback bounds how stale the segment set can get when fsnotify
// misses events (network filesystems, editors that replace directories).
const refreshFallback = 30 * time.Second

// WatchDirs returns the directories whose contents determine the segment
// set: glob parents, explicit segment parents, and creation roots.
func (s *Store) WatchDirs() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(dir string) {
		dir = filepath.Clean(dir)
		if dir == "" || dir == "." || seen[dir] {
			return
		}
		seen[dir] = true
		out = append(out, dir)
	}
	for _, g := range s.cfg.Globs {
		add(filepath.Dir(expandHome(g)))
	}
	for _, p := range s.cfg.Paths {
		add(filepath.Dir(expandHome(p)))
	}
	for _, r := range s.cfg.CreationRoots {
		add(expandHome(r))
	}
	return out
}

// Watch refreshes the store whenever a watched directory gains or loses
// entries, with a periodic refresh as fallback. It blocks until ctx is
// canceled. Directories that do not exist yet are skipped.
func (s *Store) Watch(ctx context.Context, dirs []string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating segment watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			log.Printf("segments: not watching %s: %v", dir, err)
		}
	}

	ticker := time.NewTicker(refreshFallback)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.Refresh(); err != nil {
				log.Printf("segments: refresh after %s: %v", ev.Name, err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("segments: watcher: %v", err)
		case <-ticker.C:
			if err := s.Refresh(); err != nil {
				log.Printf("segments: periodic refresh: %v", err)
			}
		}
	}
}

package main

import (
	"path/filepath"
	"testing"
)

func TestOpenDBAndInitSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.db")
	db, err := openDB(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	if err := initStateDB(db); err != nil {
		t.Fatal(err)
	}
	// Second init is a no-op thanks to IF NOT EXISTS plus try/ignore
	// migrations.
	if err := initStateDB(db); err != nil {
		t.Errorf("re-init: %v", err)
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q", mode)
	}

	for _, table := range []string{"assignments", "completion_history", "sessions", "events"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

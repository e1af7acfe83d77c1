package main

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"loom/pkg/protocol"
)

func seedEventDB(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("LOOM_HOME", home)
	path := filepath.Join(home, "loom.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		t.Fatal(err)
	}
	rows := [][3]string{
		{"assign", "loom-a1", "Calculator One"},
		{"complete", "loom-a1", "Calculator One"},
		{"assign", "loom-b2", "Calculator Two"},
	}
	for _, r := range rows {
		if _, err := db.Exec(
			`INSERT INTO events (type, source, bead_id, ancillary_id) VALUES (?, 'daemon', ?, ?)`,
			r[0], r[1], r[2],
		); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestLogsCommandPrintsEvents(t *testing.T) {
	seedEventDB(t)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"logs"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("printed %d lines:\n%s", len(lines), out.String())
	}
	// Chronological order: oldest first.
	if !strings.Contains(lines[0], "assign") || !strings.Contains(lines[0], "loom-a1") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[2], "Calculator Two") {
		t.Errorf("last line = %q", lines[2])
	}
}

func TestLogsCommandFiltersByAncillary(t *testing.T) {
	seedEventDB(t)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"logs", "Calculator Two"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(out.String(), "\n"); got != 1 {
		t.Errorf("printed %d lines:\n%s", got, out.String())
	}
}

func TestLogsCommandMissingDatabase(t *testing.T) {
	t.Setenv("LOOM_HOME", t.TempDir())

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"logs"})
	if err := root.Execute(); err == nil {
		t.Error("logs against a missing database should error")
	}
}

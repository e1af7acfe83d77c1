package protocol_test

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"loom/pkg/protocol"
)

func TestSchemaExecsCleanly(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()

	_, err = db.Exec(protocol.SchemaDDL)
	if err != nil {
		t.Fatalf("exec schema DDL: %v", err)
	}
}

func TestSchemaCreatesExpectedTables(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()

	_, err = db.Exec(protocol.SchemaDDL)
	if err != nil {
		t.Fatalf("exec schema DDL: %v", err)
	}

	expected := []string{"assignments", "completion_history", "sessions", "events"}
	for _, table := range expected {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestSchemaIsIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()

	for i := 0; i < 2; i++ {
		if _, err := db.Exec(protocol.SchemaDDL); err != nil {
			t.Fatalf("exec %d: %v", i, err)
		}
	}
}

func TestAncillaryUniqueConstraint(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		t.Fatal(err)
	}

	insert := `INSERT INTO assignments (id, ancillary_id, bead_id, segment, workspace_path)
	           VALUES (?, ?, ?, ?, ?)`
	if _, err := db.Exec(insert, "a1", "Calculator One", "loom-1", "calculator", "/w/1"); err != nil {
		t.Fatal(err)
	}
	// One active assignment per ancillary is enforced at the schema level.
	if _, err := db.Exec(insert, "a2", "Calculator One", "loom-2", "calculator", "/w/2"); err == nil {
		t.Error("second active assignment for the same ancillary should violate UNIQUE")
	}
}

package security

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"loom/pkg/protocol"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		t.Fatalf("exec schema: %v", err)
	}
	return db
}

func TestPairingTokenFromEnv(t *testing.T) {
	t.Setenv(PairingTokenEnv, "123456")
	m, err := NewManager(openTestDB(t))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.PairingToken() != "123456" {
		t.Errorf("PairingToken = %q", m.PairingToken())
	}
}

func TestPairingTokenGenerated(t *testing.T) {
	t.Setenv(PairingTokenEnv, "")
	m, err := NewManager(openTestDB(t))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	tok := m.PairingToken()
	if len(tok) != 6 {
		t.Fatalf("pairing token %q not 6 digits", tok)
	}
	for _, c := range tok {
		if c < '0' || c > '9' {
			t.Fatalf("pairing token %q contains non-digit", tok)
		}
	}
}

func TestPairAndValidate(t *testing.T) {
	t.Setenv(PairingTokenEnv, "123456")
	m, err := NewManager(openTestDB(t))
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := m.Pair("000000"); err == nil {
		t.Error("wrong pairing token should be rejected")
	}

	sessionID, token, err := m.Pair("123456")
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if len(token) != sessionTokenLen {
		t.Errorf("token length = %d", len(token))
	}

	gotID, ok := m.Validate(token)
	if !ok || gotID != sessionID {
		t.Errorf("Validate = (%q, %v), want (%q, true)", gotID, ok, sessionID)
	}
	if _, ok := m.Validate("not-a-token"); ok {
		t.Error("bogus token validated")
	}
}

func TestSessionsSurviveRestart(t *testing.T) {
	t.Setenv(PairingTokenEnv, "123456")
	db := openTestDB(t)

	m1, err := NewManager(db)
	if err != nil {
		t.Fatal(err)
	}
	sessionID, token, err := m1.Pair("123456")
	if err != nil {
		t.Fatal(err)
	}

	// A fresh manager over the same database sees the persisted session.
	m2, err := NewManager(db)
	if err != nil {
		t.Fatal(err)
	}
	gotID, ok := m2.Validate(token)
	if !ok || gotID != sessionID {
		t.Errorf("persisted session did not reload: (%q, %v)", gotID, ok)
	}
}

func TestRevoke(t *testing.T) {
	t.Setenv(PairingTokenEnv, "123456")
	m, err := NewManager(openTestDB(t))
	if err != nil {
		t.Fatal(err)
	}
	sessionID, token, err := m.Pair("123456")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Revoke(sessionID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, ok := m.Validate(token); ok {
		t.Error("revoked token still validates")
	}
}

package assignment

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"loom/pkg/protocol"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		t.Fatal(err)
	}
	return NewStore(db)
}

func testAssignment(id, ancillary, bead string) protocol.Assignment {
	return protocol.Assignment{
		ID:            id,
		AncillaryID:   ancillary,
		BeadID:        bead,
		Segment:       "calculator",
		WorkspacePath: "/w/" + ancillary,
		Source:        protocol.SourceBead,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.Insert(testAssignment("a1", "Calculator One", "loom-1")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	byID, ok, err := s.Get("a1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if byID.Status != "active" || byID.CreatedAt == "" {
		t.Errorf("defaults not applied: %+v", byID)
	}

	if a, ok, _ := s.GetByAncillary("Calculator One"); !ok || a.ID != "a1" {
		t.Errorf("GetByAncillary = %+v ok=%v", a, ok)
	}
	if a, ok, _ := s.GetByBead("loom-1"); !ok || a.ID != "a1" {
		t.Errorf("GetByBead = %+v ok=%v", a, ok)
	}
	if _, ok, _ := s.Get("missing"); ok {
		t.Error("Get of missing id reported ok")
	}
}

func TestStoreDeleteReportsWinner(t *testing.T) {
	s := newTestStore(t)
	if err := s.Insert(testAssignment("a1", "Calculator One", "loom-1")); err != nil {
		t.Fatal(err)
	}
	deleted, err := s.Delete("a1")
	if err != nil || !deleted {
		t.Fatalf("first Delete = %v, %v", deleted, err)
	}
	deleted, err = s.Delete("a1")
	if err != nil || deleted {
		t.Fatalf("second Delete = %v, %v; the loser must see deleted=false", deleted, err)
	}
}

func TestStoreOriginalPromptNullability(t *testing.T) {
	s := newTestStore(t)
	a := testAssignment("a1", "Calculator One", "loom-1")
	a.Source = protocol.SourcePrompt
	a.OriginalPrompt = "do a thing"
	if err := s.Insert(a); err != nil {
		t.Fatal(err)
	}
	got, _, err := s.Get("a1")
	if err != nil {
		t.Fatal(err)
	}
	if got.OriginalPrompt != "do a thing" {
		t.Errorf("OriginalPrompt = %q", got.OriginalPrompt)
	}
}

func TestStoreHistoryOrder(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"a1", "a2"} {
		if err := s.RecordCompletion(protocol.CompletionRecord{
			AssignmentID: id, AncillaryID: "Calculator One", BeadID: "loom-1",
			Segment: "calculator", Outcome: protocol.OutcomeCompleted,
		}); err != nil {
			t.Fatal(err)
		}
	}
	recs, err := s.History(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].AssignmentID != "a2" {
		t.Errorf("history order = %+v", recs)
	}
}

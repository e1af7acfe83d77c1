package assignment

import (
	"database/sql"
	"errors"
	"fmt"

	"loom/pkg/protocol"
)

// Store persists assignments, completion history, and daemon ops events in
// the state database.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open state database. The schema must already be applied.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert writes a new active assignment.
func (s *Store) Insert(a protocol.Assignment) error {
	_, err := s.db.Exec(`
		INSERT INTO assignments (id, ancillary_id, bead_id, segment, workspace_path, source, original_prompt)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AncillaryID, a.BeadID, a.Segment, a.WorkspacePath, a.Source, nullable(a.OriginalPrompt),
	)
	if err != nil {
		return fmt.Errorf("inserting assignment: %w", err)
	}
	return nil
}

// Delete removes an assignment. Terminal state is row absence; returns
// whether a row was actually deleted so racing cleanups can detect losing.
func (s *Store) Delete(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM assignments WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting assignment: %w", err)
	}
	return n > 0, nil
}

// Touch bumps updated_at.
func (s *Store) Touch(id string) error {
	if _, err := s.db.Exec(
		`UPDATE assignments SET updated_at = datetime('now') WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("touching assignment: %w", err)
	}
	return nil
}

const assignmentCols = `id, ancillary_id, bead_id, segment, workspace_path, source,
	COALESCE(original_prompt, ''), status, created_at, updated_at`

func scanAssignment(row interface{ Scan(...any) error }) (protocol.Assignment, error) {
	var a protocol.Assignment
	err := row.Scan(&a.ID, &a.AncillaryID, &a.BeadID, &a.Segment, &a.WorkspacePath,
		&a.Source, &a.OriginalPrompt, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// Get fetches an assignment by its ID.
func (s *Store) Get(id string) (protocol.Assignment, bool, error) {
	row := s.db.QueryRow(`SELECT `+assignmentCols+` FROM assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.Assignment{}, false, nil
	}
	if err != nil {
		return protocol.Assignment{}, false, fmt.Errorf("fetching assignment: %w", err)
	}
	return a, true, nil
}

// GetByAncillary fetches the active assignment bound to an ancillary.
func (s *Store) GetByAncillary(ancillaryID string) (protocol.Assignment, bool, error) {
	row := s.db.QueryRow(`SELECT `+assignmentCols+` FROM assignments WHERE ancillary_id = ?`, ancillaryID)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.Assignment{}, false, nil
	}
	if err != nil {
		return protocol.Assignment{}, false, fmt.Errorf("fetching assignment by ancillary: %w", err)
	}
	return a, true, nil
}

// GetByBead fetches the active assignment for a bead.
func (s *Store) GetByBead(beadID string) (protocol.Assignment, bool, error) {
	row := s.db.QueryRow(`SELECT `+assignmentCols+` FROM assignments WHERE bead_id = ?`, beadID)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.Assignment{}, false, nil
	}
	if err != nil {
		return protocol.Assignment{}, false, fmt.Errorf("fetching assignment by bead: %w", err)
	}
	return a, true, nil
}

// List returns all active assignments ordered by creation time.
func (s *Store) List() ([]protocol.Assignment, error) {
	rows, err := s.db.Query(`SELECT ` + assignmentCols + ` FROM assignments ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []protocol.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assignments: %w", err)
	}
	return out, nil
}

// RecordCompletion appends to the completion history.
func (s *Store) RecordCompletion(rec protocol.CompletionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO completion_history (assignment_id, ancillary_id, bead_id, segment, outcome, final_revision, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.AssignmentID, rec.AncillaryID, rec.BeadID, rec.Segment, rec.Outcome,
		nullable(rec.FinalRevision), nullable(rec.Summary),
	)
	if err != nil {
		return fmt.Errorf("recording completion: %w", err)
	}
	return nil
}

// GetCompletion fetches the completion record for an assignment whose
// teardown already ran. Racing terminal operations use it to recover the
// bead and segment behind a deleted record.
func (s *Store) GetCompletion(assignmentID string) (protocol.CompletionRecord, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, assignment_id, ancillary_id, bead_id, segment, outcome,
		       COALESCE(final_revision, ''), COALESCE(summary, ''), completed_at
		FROM completion_history WHERE assignment_id = ? ORDER BY id DESC LIMIT 1`, assignmentID)
	var rec protocol.CompletionRecord
	err := row.Scan(&rec.ID, &rec.AssignmentID, &rec.AncillaryID, &rec.BeadID,
		&rec.Segment, &rec.Outcome, &rec.FinalRevision, &rec.Summary, &rec.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.CompletionRecord{}, false, nil
	}
	if err != nil {
		return protocol.CompletionRecord{}, false, fmt.Errorf("fetching completion record: %w", err)
	}
	return rec, true, nil
}

// History returns the most recent completion records, newest first.
func (s *Store) History(limit int) ([]protocol.CompletionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, assignment_id, ancillary_id, bead_id, segment, outcome,
		       COALESCE(final_revision, ''), COALESCE(summary, ''), completed_at
		FROM completion_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing completion history: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []protocol.CompletionRecord
	for rows.Next() {
		var rec protocol.CompletionRecord
		if err := rows.Scan(&rec.ID, &rec.AssignmentID, &rec.AncillaryID, &rec.BeadID,
			&rec.Segment, &rec.Outcome, &rec.FinalRevision, &rec.Summary, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning completion record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating completion history: %w", err)
	}
	return out, nil
}

// LogEvent appends to the daemon ops event log. Callers treat this as best
// effort.
func (s *Store) LogEvent(eventType, source, beadID, ancillaryID, payload string) error {
	_, err := s.db.Exec(`
		INSERT INTO events (type, source, bead_id, ancillary_id, payload)
		VALUES (?, ?, ?, ?, ?)`,
		eventType, source, nullable(beadID), nullable(ancillaryID), nullable(payload),
	)
	if err != nil {
		return fmt.Errorf("logging event: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

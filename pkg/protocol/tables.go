package protocol

// Assignment sources.
const (
	SourceBead   = "bead"
	SourcePrompt = "prompt"
)

// Completion outcomes recorded in completion_history.
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
)

// Assignment represents a row in the assignments SQLite table.
// Exactly one active assignment exists per ancillary; when the assignment
// ends the row is deleted and a completion_history row is written.
type Assignment struct {
	ID             string `json:"id"`
	AncillaryID    string `json:"ancillary_id"`
	BeadID         string `json:"bead_id"`
	Segment        string `json:"segment"`
	WorkspacePath  string `json:"workspace_path"`
	Source         string `json:"source"`
	OriginalPrompt string `json:"original_prompt,omitempty"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// CompletionRecord represents a row in the completion_history SQLite table.
type CompletionRecord struct {
	ID            int64  `json:"id"`
	AssignmentID  string `json:"assignment_id"`
	AncillaryID   string `json:"ancillary_id"`
	BeadID        string `json:"bead_id"`
	Segment       string `json:"segment"`
	Outcome       string `json:"outcome"`
	FinalRevision string `json:"final_revision,omitempty"`
	Summary       string `json:"summary,omitempty"`
	CompletedAt   string `json:"completed_at"`
}

// Session represents a row in the sessions SQLite table: a paired client's
// long-lived session token.
type Session struct {
	SessionID  string `json:"session_id"`
	Token      string `json:"-"`
	CreatedAt  string `json:"created_at"`
	LastSeenAt string `json:"last_seen_at,omitempty"`
}

// Event represents a row in the events SQLite table.
// Tracks daemon lifecycle events for the ops log.
type Event struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Source      string `json:"source"`
	BeadID      string `json:"bead_id"`
	AncillaryID string `json:"ancillary_id"`
	Payload     string `json:"payload"`
	CreatedAt   string `json:"created_at"`
}

// Bead is a unit of work as reported by the bead source CLI.
type Bead struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Assignee string `json:"assignee,omitempty"`
	Body     string `json:"body,omitempty"`
}

// Ancillary statuses tracked by the session registry.
const (
	StatusStarting      = "starting"
	StatusWorking       = "working"
	StatusAwaitingInput = "awaiting_input"
	StatusIdle          = "idle"
	StatusCompleted     = "completed"
	StatusFailed        = "failed"
)

// AncillaryInfo is the registry's view of a live ancillary session.
type AncillaryInfo struct {
	ID         string `json:"id"`
	Segment    string `json:"segment"`
	Origin     string `json:"origin"`
	Status     string `json:"status"`
	BeadID     string `json:"bead_id,omitempty"`
	LastActive string `json:"last_active"`
}

package protocol

// SchemaDDL defines the SQLite schema for the loomd state database.
// Tables: assignments, completion_history, sessions, events.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Active ancillary-to-bead bindings. Terminal state is row absence.
CREATE TABLE IF NOT EXISTS assignments (
    id TEXT PRIMARY KEY,
    ancillary_id TEXT NOT NULL UNIQUE,
    bead_id TEXT NOT NULL,
    segment TEXT NOT NULL,
    workspace_path TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT 'bead',
    original_prompt TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Completed/aborted assignment records, kept for history queries.
CREATE TABLE IF NOT EXISTS completion_history (
    id INTEGER PRIMARY KEY,
    assignment_id TEXT NOT NULL,
    ancillary_id TEXT NOT NULL,
    bead_id TEXT NOT NULL,
    segment TEXT NOT NULL,
    outcome TEXT NOT NULL,
    final_revision TEXT,
    summary TEXT,
    completed_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Paired client session tokens, reloaded on daemon restart.
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    token TEXT NOT NULL UNIQUE,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    last_seen_at TEXT
);

-- Daemon operations log: lifecycle events for status and debugging.
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    source TEXT NOT NULL,
    bead_id TEXT,
    ancillary_id TEXT,
    payload TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// MigrateSessionLastSeen adds the last_seen_at column to sessions tables
// created before it existed. Callers ignore the duplicate-column error.
const MigrateSessionLastSeen = `
ALTER TABLE sessions ADD COLUMN last_seen_at TEXT;
`

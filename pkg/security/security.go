// Package security handles client pairing and session tokens. A short
// pairing token is shown to the operator; exchanging it over POST /pair
// yields a long-lived session token, persisted so pairings survive daemon
// restarts.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/google/uuid"
)

const (
	// PairingTokenEnv overrides the random pairing token, for scripted
	// setups.
	PairingTokenEnv = "LOOM_PAIRING_TOKEN"

	sessionTokenLen     = 32
	sessionTokenLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Manager issues and validates session tokens.
type Manager struct {
	db           *sql.DB
	pairingToken string

	mu     sync.RWMutex
	tokens map[string]string // token -> session_id
}

// NewManager creates a Manager, generating the pairing token (or taking it
// from LOOM_PAIRING_TOKEN) and loading persisted sessions from the database.
func NewManager(db *sql.DB) (*Manager, error) {
	m := &Manager{db: db, tokens: make(map[string]string)}

	if tok := os.Getenv(PairingTokenEnv); tok != "" {
		m.pairingToken = tok
	} else {
		tok, err := randomDigits(6)
		if err != nil {
			return nil, fmt.Errorf("generating pairing token: %w", err)
		}
		m.pairingToken = tok
	}

	rows, err := db.Query(`SELECT session_id, token FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("loading sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id, token string
		if err := rows.Scan(&id, &token); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		m.tokens[token] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return m, nil
}

// PairingToken returns the token the operator hands to a new client.
func (m *Manager) PairingToken() string { return m.pairingToken }

// Pair exchanges a pairing token for a new session. The comparison is
// constant time. On success the session is persisted and immediately valid.
func (m *Manager) Pair(pairingToken string) (sessionID, sessionToken string, err error) {
	if subtle.ConstantTimeCompare([]byte(pairingToken), []byte(m.pairingToken)) != 1 {
		return "", "", fmt.Errorf("invalid pairing token")
	}

	sessionID = uuid.NewString()
	sessionToken, err = randomToken(sessionTokenLen)
	if err != nil {
		return "", "", fmt.Errorf("generating session token: %w", err)
	}

	if _, err := m.db.Exec(
		`INSERT INTO sessions (session_id, token) VALUES (?, ?)`,
		sessionID, sessionToken,
	); err != nil {
		return "", "", fmt.Errorf("persisting session: %w", err)
	}

	m.mu.Lock()
	m.tokens[sessionToken] = sessionID
	m.mu.Unlock()
	return sessionID, sessionToken, nil
}

// Validate checks a session token and returns its session ID. A valid token
// also bumps the session's last_seen_at, best effort.
func (m *Manager) Validate(token string) (string, bool) {
	m.mu.RLock()
	id, ok := m.tokens[token]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	_, _ = m.db.Exec(`UPDATE sessions SET last_seen_at = datetime('now') WHERE session_id = ?`, id)
	return id, true
}

// Revoke removes a session so its token stops validating.
func (m *Manager) Revoke(sessionID string) error {
	if _, err := m.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	m.mu.Lock()
	for token, id := range m.tokens {
		if id == sessionID {
			delete(m.tokens, token)
		}
	}
	m.mu.Unlock()
	return nil
}

func randomDigits(n int) (string, error) {
	out := make([]byte, n)
	for i := range out {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		out[i] = byte('0' + d.Int64())
	}
	return string(out), nil
}

func randomToken(n int) (string, error) {
	out := make([]byte, n)
	alphabet := big.NewInt(int64(len(sessionTokenLetters)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, alphabet)
		if err != nil {
			return "", err
		}
		out[i] = sessionTokenLetters[idx.Int64()]
	}
	return string(out), nil
}

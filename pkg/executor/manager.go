package executor

import (
	"context"
	"fmt"
	"sync"

	"loom/pkg/worklog"
)

// Manager tracks the active Work per ancillary.
type Manager struct {
	spawner  Spawner
	onStatus StatusFunc

	mu   sync.Mutex
	work map[string]*Work
}

// NewManager creates a Manager that spawns agents with spawner.
func NewManager(spawner Spawner, onStatus StatusFunc) *Manager {
	return &Manager{
		spawner:  spawner,
		onStatus: onStatus,
		work:     make(map[string]*Work),
	}
}

// StartWork spawns the agent for an ancillary. An ancillary runs at most
// one agent at a time.
func (m *Manager) StartWork(ctx context.Context, ancillaryID, beadID, workdir, prompt string, wl *worklog.Log) (*Work, error) {
	m.mu.Lock()
	if _, exists := m.work[ancillaryID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("ancillary %s already has active work", ancillaryID)
	}
	m.mu.Unlock()

	w, err := Start(ctx, m.spawner, workdir, prompt, wl, ancillaryID, beadID, m.onStatus)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.work[ancillaryID] = w
	m.mu.Unlock()

	// Reap the entry when the agent finishes so HasActiveWork flips false
	// without an explicit StopWork.
	go func() {
		<-w.Done()
		m.mu.Lock()
		if m.work[ancillaryID] == w {
			delete(m.work, ancillaryID)
		}
		m.mu.Unlock()
	}()
	return w, nil
}

// GetWork returns the ancillary's active work, if any.
func (m *Manager) GetWork(ancillaryID string) (*Work, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.work[ancillaryID]
	return w, ok
}

// HasActiveWork reports whether the ancillary has a running agent.
func (m *Manager) HasActiveWork(ancillaryID string) bool {
	_, ok := m.GetWork(ancillaryID)
	return ok
}

// StopWork interrupts the ancillary's agent and waits for the stream to
// drain. A missing entry is a no-op.
func (m *Manager) StopWork(ancillaryID string) {
	m.mu.Lock()
	w, ok := m.work[ancillaryID]
	delete(m.work, ancillaryID)
	m.mu.Unlock()
	if !ok {
		return
	}
	_ = w.Interrupt()
	<-w.Done()
}

// Package registry tracks live ancillary sessions in memory. The registry is
// rebuilt from the assignments table on daemon restart; it holds no durable
// state of its own.
package registry

import (
	"sync"
	"time"

	"loom/pkg/protocol"
)

// Ancillary is a live session entry.
type Ancillary struct {
	ID         string
	Segment    string
	Origin     string
	Status     string
	BeadID     string
	LastActive time.Time
}

// Recorder receives status-change work events for ancillaries that have an
// active assignment. The assignment layer wires this to the work log.
type Recorder interface {
	RecordStatusChange(ancillaryID, status string)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ancillaryID, status string)

func (f RecorderFunc) RecordStatusChange(ancillaryID, status string) { f(ancillaryID, status) }

// Registry is a concurrency-safe map of live ancillary sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Ancillary
	recorder Recorder

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates an empty Registry. recorder may be nil.
func New(recorder Recorder) *Registry {
	return &Registry{
		sessions: make(map[string]*Ancillary),
		recorder: recorder,
		nowFunc:  time.Now,
	}
}

// Register adds an ancillary session. Registering an ID that is already held
// by a different origin fails with AlreadyRegisteredError; re-registering
// from the same origin is an idempotent re-attach that refreshes LastActive.
func (r *Registry) Register(id, segment, origin string) (Ancillary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[id]; ok {
		if existing.Origin != origin {
			return Ancillary{}, &protocol.AlreadyRegisteredError{AncillaryID: id, Origin: existing.Origin}
		}
		existing.LastActive = r.nowFunc()
		return *existing, nil
	}
	a := &Ancillary{
		ID:         id,
		Segment:    segment,
		Origin:     origin,
		Status:     protocol.StatusStarting,
		LastActive: r.nowFunc(),
	}
	r.sessions[id] = a
	return *a, nil
}

// Unregister removes a session. Removing an unknown ID is a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// SetStatus updates a session's status and LastActive. When the session has
// a bead bound (an active assignment) the change is forwarded to the
// recorder so it lands in the work log. Unknown IDs are ignored.
func (r *Registry) SetStatus(id, status string) {
	r.mu.Lock()
	a, ok := r.sessions[id]
	var record bool
	if ok {
		a.Status = status
		a.LastActive = r.nowFunc()
		record = a.BeadID != ""
	}
	r.mu.Unlock()

	// Recorder runs outside the lock: it appends to the work log, which
	// must never block registry readers.
	if record && r.recorder != nil {
		r.recorder.RecordStatusChange(id, status)
	}
}

// BindBead associates the session with its assignment's bead.
func (r *Registry) BindBead(id, beadID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.sessions[id]; ok {
		a.BeadID = beadID
	}
}

// Get returns a snapshot of one session.
func (r *Registry) Get(id string) (Ancillary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.sessions[id]
	if !ok {
		return Ancillary{}, false
	}
	return *a, true
}

// List returns snapshots of all sessions, unordered.
func (r *Registry) List() []Ancillary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Ancillary, 0, len(r.sessions))
	for _, a := range r.sessions {
		out = append(out, *a)
	}
	return out
}

// Info converts a snapshot to its wire representation.
func (a Ancillary) Info() protocol.AncillaryInfo {
	return protocol.AncillaryInfo{
		ID:         a.ID,
		Segment:    a.Segment,
		Origin:     a.Origin,
		Status:     a.Status,
		BeadID:     a.BeadID,
		LastActive: a.LastActive.UTC().Format(time.RFC3339),
	}
}

// Package assignment binds beads to ancillaries. The manager owns the
// assignment lifecycle: provisioning workspaces, claiming beads, running the
// agent, and tearing everything down so that a workspace exists if and only
// if its ancillary has an active assignment.
package assignment

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"loom/pkg/beads"
	"loom/pkg/executor"
	"loom/pkg/protocol"
	"loom/pkg/registry"
	"loom/pkg/segments"
	"loom/pkg/worklog"
	"loom/pkg/workspace"
)

// Manager orchestrates the assignment lifecycle. All mutations of one
// ancillary's assignment are serialized through a per-ancillary lock;
// operations on different ancillaries proceed concurrently.
type Manager struct {
	store      *Store
	beads      beads.Source
	segments   *segments.Store
	workspaces *workspace.Provisioner
	reg        *registry.Registry
	executors  *executor.Manager

	ancillaryRoot        string
	reopenClosedOnResume bool
	appendObserver       func(protocol.WorkEvent)

	// assignMu serializes ancillary name selection, so two concurrent
	// assigns cannot pick the same name.
	assignMu sync.Mutex

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	logs  map[string]*worklog.Log
	busy  map[string]string
}

// Blocking workspace calls run outside the per-ancillary lock; busy holds
// the operation name for an ancillary while one is in flight, so racing
// callers can tell an in-progress transition from a finished one and name
// selection skips reserved names.
const (
	opAssign   = "assign"
	opComplete = "complete"
	opAbort    = "abort"
	opResume   = "resume"
)

// Options configures a Manager.
type Options struct {
	Store         *Store
	Beads         beads.Source
	Segments      *segments.Store
	Workspaces    *workspace.Provisioner
	Spawner       executor.Spawner
	AncillaryRoot string

	// ReopenClosedOnResume reopens a bead that was closed out-of-band when
	// its assignment is resumed.
	ReopenClosedOnResume bool

	// AppendObserver, when set, is invoked after every durable work log
	// append, for instrumentation.
	AppendObserver func(protocol.WorkEvent)
}

// NewManager wires the assignment manager, its session registry, and its
// executor pool together.
func NewManager(opts Options) *Manager {
	m := &Manager{
		store:                opts.Store,
		beads:                opts.Beads,
		segments:             opts.Segments,
		workspaces:           opts.Workspaces,
		ancillaryRoot:        opts.AncillaryRoot,
		reopenClosedOnResume: opts.ReopenClosedOnResume,
		appendObserver:       opts.AppendObserver,
		locks:                make(map[string]*sync.Mutex),
		logs:                 make(map[string]*worklog.Log),
		busy:                 make(map[string]string),
	}
	m.reg = registry.New(registry.RecorderFunc(m.recordStatusChange))
	m.executors = executor.NewManager(opts.Spawner, m.reg.SetStatus)
	return m
}

// Registry exposes the session registry backing this manager.
func (m *Manager) Registry() *registry.Registry { return m.reg }

// Executors exposes the executor pool, for client input routing.
func (m *Manager) Executors() *executor.Manager { return m.executors }

// Store exposes the persistence layer, for read-only queries.
func (m *Manager) Store() *Store { return m.store }

func (m *Manager) lockFor(ancillaryID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[ancillaryID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[ancillaryID] = l
	}
	return l
}

// busyOp reports the blocking operation in flight for the ancillary, if any.
func (m *Manager) busyOp(ancillaryID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.busy[ancillaryID]
	return op, ok
}

func (m *Manager) setBusy(ancillaryID, op string) {
	m.mu.Lock()
	m.busy[ancillaryID] = op
	m.mu.Unlock()
}

func (m *Manager) clearBusy(ancillaryID string) {
	m.mu.Lock()
	delete(m.busy, ancillaryID)
	m.mu.Unlock()
}

// Log returns the ancillary's open work log, reopening it from disk when
// the daemon restarted since the assignment began.
func (m *Manager) Log(ancillaryID string) (*worklog.Log, error) {
	m.mu.Lock()
	if wl, ok := m.logs[ancillaryID]; ok {
		m.mu.Unlock()
		return wl, nil
	}
	m.mu.Unlock()

	a, ok, err := m.store.GetByAncillary(ancillaryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &protocol.AssignmentNotFoundError{Ref: ancillaryID}
	}
	wl, err := m.openLog(ancillaryID, a.BeadID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.logs[ancillaryID]; ok {
		_ = wl.Close("superseded")
		return existing, nil
	}
	m.logs[ancillaryID] = wl
	return wl, nil
}

func (m *Manager) openLog(ancillaryID, beadID string) (*worklog.Log, error) {
	wl, err := worklog.Open(m.ancillaryRoot, ancillaryID, beadID)
	if err != nil {
		return nil, err
	}
	if m.appendObserver != nil {
		wl.SetObserver(m.appendObserver)
	}
	return wl, nil
}

func (m *Manager) dropLog(ancillaryID, reason string) {
	m.mu.Lock()
	wl, ok := m.logs[ancillaryID]
	delete(m.logs, ancillaryID)
	m.mu.Unlock()
	if ok {
		if err := wl.Close(reason); err != nil {
			log.Printf("assignment: closing work log for %s: %v", ancillaryID, err)
		}
	}
}

// recordStatusChange feeds registry status transitions into the work log.
func (m *Manager) recordStatusChange(ancillaryID, status string) {
	m.mu.Lock()
	wl, ok := m.logs[ancillaryID]
	m.mu.Unlock()
	if ok {
		if _, err := wl.Append(protocol.StatusChange(status)); err != nil {
			log.Printf("assignment: recording status change for %s: %v", ancillaryID, err)
		}
	}
}

// nextAncillaryID picks the lowest free "{Segment} {NumberWord}" name.
// A name is occupied if an active assignment holds it, its workspace
// directory still exists on disk, or a blocking operation has it reserved.
func (m *Manager) nextAncillaryID(segment string) (string, error) {
	for n := 1; ; n++ {
		id := protocol.AncillaryID(segment, n)
		_, taken, err := m.store.GetByAncillary(id)
		if err != nil {
			return "", err
		}
		if _, reserved := m.busyOp(id); taken || reserved || m.workspaces.Exists(segment, id) {
			continue
		}
		return id, nil
	}
}

// Assign creates an assignment from a bead or an ad-hoc prompt. Workspace
// provisioning happens before anything is persisted, so a provisioning
// failure leaves no partial records.
func (m *Manager) Assign(ctx context.Context, req protocol.AssignRequest) (protocol.Assignment, error) {
	seg, err := m.segments.Get(req.Segment)
	if err != nil {
		return protocol.Assignment{}, err
	}

	var bead protocol.Bead
	source := protocol.SourceBead
	switch {
	case req.BeadID != "" && req.Prompt != "":
		return protocol.Assignment{}, fmt.Errorf("bead_id and prompt are mutually exclusive")
	case req.BeadID != "":
		bead, err = m.beads.Show(ctx, seg.Path, req.BeadID)
		if err != nil {
			return protocol.Assignment{}, err
		}
		if bead.Status != protocol.BeadOpen {
			return protocol.Assignment{}, &protocol.BeadNotOpenError{BeadID: bead.ID, Status: bead.Status}
		}
		if _, taken, err := m.store.GetByBead(bead.ID); err != nil {
			return protocol.Assignment{}, err
		} else if taken {
			return protocol.Assignment{}, &protocol.BeadNotOpenError{BeadID: bead.ID, Status: protocol.BeadInProgress}
		}
	case req.Prompt != "":
		bead, err = m.beads.Create(ctx, seg.Path, promptTitle(req.Prompt), req.Prompt)
		if err != nil {
			return protocol.Assignment{}, err
		}
		source = protocol.SourcePrompt
	default:
		return protocol.Assignment{}, fmt.Errorf("either bead_id or prompt is required")
	}

	// Name selection is serialized and the chosen name reserved before the
	// blocking provision, so concurrent assigns cannot race to the same
	// name. Workspace existence takes over as the busy signal once the
	// provision lands.
	m.assignMu.Lock()
	ancillaryID, err := m.nextAncillaryID(seg.Name)
	if err != nil {
		m.assignMu.Unlock()
		return protocol.Assignment{}, err
	}
	m.setBusy(ancillaryID, opAssign)
	m.assignMu.Unlock()

	path, err := m.workspaces.Create(ctx, seg.Path, seg.Name, ancillaryID)
	m.clearBusy(ancillaryID)
	if err != nil {
		return protocol.Assignment{}, err
	}

	lock := m.lockFor(ancillaryID)
	lock.Lock()
	defer lock.Unlock()

	a := protocol.Assignment{
		ID:            uuid.NewString(),
		AncillaryID:   ancillaryID,
		BeadID:        bead.ID,
		Segment:       seg.Name,
		WorkspacePath: path,
		Source:        source,
		Status:        "active",
	}
	if source == protocol.SourcePrompt {
		a.OriginalPrompt = req.Prompt
	}
	if err := m.store.Insert(a); err != nil {
		_ = m.workspaces.Destroy(ctx, seg.Path, seg.Name, ancillaryID)
		return protocol.Assignment{}, err
	}
	if err := m.beads.Claim(ctx, seg.Path, bead.ID, protocol.DefaultAssignee); err != nil {
		_, _ = m.store.Delete(a.ID)
		_ = m.workspaces.Destroy(ctx, seg.Path, seg.Name, ancillaryID)
		return protocol.Assignment{}, err
	}

	if _, err := m.reg.Register(ancillaryID, seg.Name, "daemon"); err != nil {
		// A stale registry entry from another origin cannot happen for a
		// name the disk check declared free; treat it as fatal anyway.
		_, _ = m.store.Delete(a.ID)
		_ = m.workspaces.Destroy(ctx, seg.Path, seg.Name, ancillaryID)
		return protocol.Assignment{}, err
	}
	m.reg.BindBead(ancillaryID, bead.ID)

	wl, err := m.openLog(ancillaryID, bead.ID)
	if err != nil {
		m.rollback(ctx, a, seg)
		return protocol.Assignment{}, err
	}
	m.mu.Lock()
	m.logs[ancillaryID] = wl
	m.mu.Unlock()

	// Seq 0 of the new log generation.
	if _, err := wl.Append(protocol.AssignmentStarted(bead.ID)); err != nil {
		m.rollback(ctx, a, seg)
		return protocol.Assignment{}, err
	}

	prompt := buildPrompt(bead, req.Prompt)
	if _, err := m.executors.StartWork(ctx, ancillaryID, bead.ID, path, prompt, wl); err != nil {
		m.rollback(ctx, a, seg)
		return protocol.Assignment{}, err
	}

	_ = m.store.LogEvent("assignment_created", "daemon", bead.ID, ancillaryID, "")
	return a, nil
}

// rollback undoes a partially created assignment.
func (m *Manager) rollback(ctx context.Context, a protocol.Assignment, seg segments.Segment) {
	m.dropLog(a.AncillaryID, "assignment rolled back")
	m.reg.Unregister(a.AncillaryID)
	_, _ = m.store.Delete(a.ID)
	_ = m.beads.UpdateStatus(ctx, seg.Path, a.BeadID, protocol.BeadOpen)
	_ = m.beads.UpdateAssignee(ctx, seg.Path, a.BeadID, "")
	_ = m.workspaces.Destroy(ctx, seg.Path, seg.Name, a.AncillaryID)
}

// Resolve maps a client reference (bead ID, ancillary name, or bare number
// word) to its active assignment.
func (m *Manager) Resolve(ref, segment string) (protocol.Assignment, error) {
	parsed := protocol.ParseRef(ref, segment)
	var (
		a  protocol.Assignment
		ok bool
	)
	var err error
	if parsed.Kind == protocol.RefBead {
		a, ok, err = m.store.GetByBead(parsed.Value)
	} else {
		a, ok, err = m.store.GetByAncillary(parsed.Value)
	}
	if err != nil {
		return protocol.Assignment{}, err
	}
	if !ok {
		return protocol.Assignment{}, &protocol.AssignmentNotFoundError{Ref: ref}
	}
	return a, nil
}

// Complete finishes an assignment: final revision capture, workspace
// destroy, history record, bead close (unless keep-open), record delete.
// It reports whether this call performed the teardown. A loser racing
// another terminal operation returns success when the bead already matches
// the requested outcome and AssignmentStateChanged when it does not. The
// blocking workspace destroy runs outside the per-ancillary lock.
func (m *Manager) Complete(ctx context.Context, id string, opts protocol.CompleteOptions) (bool, error) {
	a, ok, err := m.store.Get(id)
	if err != nil {
		return false, err
	}
	if !ok {
		rec, found, err := m.store.GetCompletion(id)
		if err != nil || !found {
			return false, err
		}
		return false, m.completeLoser(ctx, rec.AncillaryID, rec.Segment, rec.BeadID, opts)
	}

	lock := m.lockFor(a.AncillaryID)
	lock.Lock()

	// Re-check under the lock: the racing winner deleted the record.
	if _, ok, err = m.store.Get(id); err != nil {
		lock.Unlock()
		return false, err
	} else if !ok {
		lock.Unlock()
		return false, m.completeLoser(ctx, a.AncillaryID, a.Segment, a.BeadID, opts)
	}
	if op, inFlight := m.busyOp(a.AncillaryID); inFlight {
		lock.Unlock()
		if op == opComplete {
			return false, nil
		}
		return false, &protocol.AssignmentStateChangedError{AncillaryID: a.AncillaryID, Requested: opComplete}
	}

	seg, err := m.segments.Get(a.Segment)
	if err != nil {
		lock.Unlock()
		return false, err
	}
	m.setBusy(a.AncillaryID, opComplete)

	m.executors.StopWork(a.AncillaryID)

	var revision string
	if m.workspaces.Exists(a.Segment, a.AncillaryID) {
		revision = m.workspaces.Revision(ctx, a.Segment, a.AncillaryID)
	}

	if wl, err := m.Log(a.AncillaryID); err == nil {
		_, _ = wl.Append(protocol.AssignmentCompleted())
	}
	m.dropLog(a.AncillaryID, "assignment completed")
	lock.Unlock()

	// Missing workspace is a no-op here, not an error.
	destroyErr := m.workspaces.Destroy(ctx, seg.Path, a.Segment, a.AncillaryID)

	lock.Lock()
	m.clearBusy(a.AncillaryID)
	if destroyErr != nil {
		lock.Unlock()
		return false, destroyErr
	}
	if err := m.store.RecordCompletion(protocol.CompletionRecord{
		AssignmentID:  a.ID,
		AncillaryID:   a.AncillaryID,
		BeadID:        a.BeadID,
		Segment:       a.Segment,
		Outcome:       protocol.OutcomeCompleted,
		FinalRevision: revision,
		Summary:       opts.Summary,
	}); err != nil {
		lock.Unlock()
		return false, err
	}
	deleted, err := m.store.Delete(a.ID)
	if err != nil {
		lock.Unlock()
		return false, err
	}
	m.reg.Unregister(a.AncillaryID)
	lock.Unlock()

	if deleted && !opts.KeepOpen {
		if err := m.beads.UpdateStatus(ctx, seg.Path, a.BeadID, protocol.BeadClosed); err != nil {
			return deleted, err
		}
	}
	_ = m.store.LogEvent("assignment_completed", "daemon", a.BeadID, a.AncillaryID, "")
	return deleted, nil
}

// completeLoser resolves a Complete whose record is already gone: another
// terminal operation won. Success when the bead already matches the
// requested outcome, AssignmentStateChanged when it does not.
func (m *Manager) completeLoser(ctx context.Context, ancillaryID, segment, beadID string, opts protocol.CompleteOptions) error {
	if opts.KeepOpen {
		return nil
	}
	seg, err := m.segments.Get(segment)
	if err != nil {
		return err
	}
	bead, err := m.beads.Show(ctx, seg.Path, beadID)
	if err != nil {
		return err
	}
	if bead.Status == protocol.BeadClosed {
		return nil
	}
	return &protocol.AssignmentStateChangedError{AncillaryID: ancillaryID, Requested: opComplete}
}

// fixupBead forces the bead into the state an abort requested. An abort
// whose record is already gone degrades to this fix-up only.
func (m *Manager) fixupBead(ctx context.Context, segment, beadID string, closeBead bool) error {
	seg, err := m.segments.Get(segment)
	if err != nil {
		return err
	}
	if closeBead {
		return m.beads.UpdateStatus(ctx, seg.Path, beadID, protocol.BeadClosed)
	}
	if err := m.beads.UpdateStatus(ctx, seg.Path, beadID, protocol.BeadOpen); err != nil {
		return err
	}
	return m.beads.UpdateAssignee(ctx, seg.Path, beadID, "")
}

// Abort interrupts the agent and cleans up unconditionally. closeBead
// controls whether the bead ends closed or back in the open pool. A stale
// record or missing workspace degrades to a bead-status fix-up. It reports
// whether this call performed the teardown. The blocking workspace destroy
// runs outside the per-ancillary lock.
func (m *Manager) Abort(ctx context.Context, id string, closeBead bool) (bool, error) {
	a, ok, err := m.store.Get(id)
	if err != nil {
		return false, err
	}
	if !ok {
		rec, found, err := m.store.GetCompletion(id)
		if err != nil || !found {
			return false, err
		}
		return false, m.fixupBead(ctx, rec.Segment, rec.BeadID, closeBead)
	}

	lock := m.lockFor(a.AncillaryID)
	lock.Lock()

	if _, ok, err = m.store.Get(id); err != nil {
		lock.Unlock()
		return false, err
	} else if !ok {
		lock.Unlock()
		return false, m.fixupBead(ctx, a.Segment, a.BeadID, closeBead)
	}
	if op, inFlight := m.busyOp(a.AncillaryID); inFlight {
		lock.Unlock()
		if op == opAbort {
			return false, nil
		}
		return false, &protocol.AssignmentStateChangedError{AncillaryID: a.AncillaryID, Requested: opAbort}
	}

	seg, err := m.segments.Get(a.Segment)
	if err != nil {
		lock.Unlock()
		return false, err
	}
	m.setBusy(a.AncillaryID, opAbort)

	// Best-effort interrupt; cleanup proceeds regardless.
	m.executors.StopWork(a.AncillaryID)

	if wl, err := m.Log(a.AncillaryID); err == nil {
		_, _ = wl.Append(protocol.AssignmentFailed("aborted"))
	}
	m.dropLog(a.AncillaryID, "assignment aborted")
	lock.Unlock()

	if err := m.workspaces.Destroy(ctx, seg.Path, a.Segment, a.AncillaryID); err != nil {
		log.Printf("assignment: destroying workspace for %s: %v", a.AncillaryID, err)
	}

	lock.Lock()
	m.clearBusy(a.AncillaryID)
	_ = m.store.RecordCompletion(protocol.CompletionRecord{
		AssignmentID: a.ID,
		AncillaryID:  a.AncillaryID,
		BeadID:       a.BeadID,
		Segment:      a.Segment,
		Outcome:      protocol.OutcomeAborted,
	})
	deleted, err := m.store.Delete(a.ID)
	if err != nil {
		lock.Unlock()
		return false, err
	}
	m.reg.Unregister(a.AncillaryID)
	lock.Unlock()

	if deleted {
		if closeBead {
			_ = m.beads.UpdateStatus(ctx, seg.Path, a.BeadID, protocol.BeadClosed)
		} else {
			_ = m.beads.UpdateStatus(ctx, seg.Path, a.BeadID, protocol.BeadOpen)
			_ = m.beads.UpdateAssignee(ctx, seg.Path, a.BeadID, "")
		}
	}
	_ = m.store.LogEvent("assignment_aborted", "daemon", a.BeadID, a.AncillaryID, "")
	return deleted, nil
}

// Resume restarts a dormant assignment: the workspace is recreated if
// missing, the ancillary re-registered, and the agent relaunched. Resuming
// an assignment whose agent is already running just forwards the
// instruction, making Resume idempotent while work is in progress.
func (m *Manager) Resume(ctx context.Context, id, instruction string) error {
	a, ok, err := m.store.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return &protocol.AssignmentNotFoundError{Ref: id}
	}

	lock := m.lockFor(a.AncillaryID)
	lock.Lock()
	defer lock.Unlock()

	if a, ok, err = m.store.Get(id); err != nil {
		return err
	} else if !ok {
		return &protocol.AssignmentNotFoundError{Ref: id}
	}
	if _, inFlight := m.busyOp(a.AncillaryID); inFlight {
		return &protocol.AssignmentStateChangedError{AncillaryID: a.AncillaryID, Requested: opResume}
	}

	seg, err := m.segments.Get(a.Segment)
	if err != nil {
		return err
	}

	bead, err := m.beads.Show(ctx, seg.Path, a.BeadID)
	if err != nil {
		return err
	}
	switch bead.Status {
	case protocol.BeadInProgress:
		// Normal case.
	case protocol.BeadClosed:
		if !m.reopenClosedOnResume {
			return &protocol.BeadNotOpenError{BeadID: bead.ID, Status: bead.Status}
		}
		if err := m.beads.Claim(ctx, seg.Path, bead.ID, protocol.DefaultAssignee); err != nil {
			return err
		}
	default:
		// Released out-of-band; claim it back.
		if err := m.beads.Claim(ctx, seg.Path, bead.ID, protocol.DefaultAssignee); err != nil {
			return err
		}
	}

	if !m.workspaces.Exists(a.Segment, a.AncillaryID) {
		// The blocking provision runs outside the lock; the reservation
		// keeps racing terminal operations off the name meanwhile.
		m.setBusy(a.AncillaryID, opResume)
		lock.Unlock()
		_, createErr := m.workspaces.Create(ctx, seg.Path, a.Segment, a.AncillaryID)
		lock.Lock()
		m.clearBusy(a.AncillaryID)
		if createErr != nil {
			return createErr
		}
	}

	if _, err := m.reg.Register(a.AncillaryID, a.Segment, "daemon"); err != nil {
		return err
	}
	m.reg.BindBead(a.AncillaryID, a.BeadID)

	wl, err := m.Log(a.AncillaryID)
	if err != nil {
		return err
	}

	if w, running := m.executors.GetWork(a.AncillaryID); running {
		if instruction != "" {
			return w.Message(instruction, "resume")
		}
		return nil
	}

	prompt := instruction
	if prompt == "" {
		prompt = buildPrompt(bead, a.OriginalPrompt)
	}
	if _, err := m.executors.StartWork(ctx, a.AncillaryID, a.BeadID, a.WorkspacePath, prompt, wl); err != nil {
		return err
	}
	m.reg.SetStatus(a.AncillaryID, protocol.StatusWorking)
	_ = m.store.Touch(a.ID)
	_ = m.store.LogEvent("assignment_resumed", "daemon", a.BeadID, a.AncillaryID, "")
	return nil
}

// Recover restores in-memory state from the assignments table after a
// daemon restart: registry entries, work logs, and a sweep of stale
// workspace cleanup directories. Agents are not relaunched; clients resume
// them explicitly.
func (m *Manager) Recover() error {
	_ = m.workspaces.Prune()
	active, err := m.store.List()
	if err != nil {
		return err
	}
	for _, a := range active {
		if _, err := m.reg.Register(a.AncillaryID, a.Segment, "daemon"); err != nil {
			log.Printf("assignment: recovering %s: %v", a.AncillaryID, err)
			continue
		}
		m.reg.BindBead(a.AncillaryID, a.BeadID)
		m.reg.SetStatus(a.AncillaryID, protocol.StatusIdle)
		if _, err := m.Log(a.AncillaryID); err != nil {
			log.Printf("assignment: reopening work log for %s: %v", a.AncillaryID, err)
		}
	}
	return nil
}

// promptTitle derives a bead title from an ad-hoc prompt: the first line,
// truncated.
func promptTitle(prompt string) string {
	line := prompt
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if len(line) > 72 {
		line = line[:72]
	}
	if line == "" {
		line = "ad-hoc task"
	}
	return line
}

func buildPrompt(bead protocol.Bead, original string) string {
	if original != "" {
		return original
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Work on bead %s: %s", bead.ID, bead.Title)
	if bead.Body != "" {
		b.WriteString("\n\n")
		b.WriteString(bead.Body)
	}
	return b.String()
}

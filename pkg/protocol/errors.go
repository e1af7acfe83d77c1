package protocol

import "fmt"

// BeadNotOpenError reports an assignment attempt against a bead that is not
// in the open state. Enables typed discrimination via errors.As.
type BeadNotOpenError struct {
	BeadID string
	Status string
}

func (e *BeadNotOpenError) Error() string {
	return fmt.Sprintf("bead %s is not open (status %s)", e.BeadID, e.Status)
}

// BeadNotFoundError reports a bead lookup failure.
type BeadNotFoundError struct {
	BeadID string
}

func (e *BeadNotFoundError) Error() string {
	return fmt.Sprintf("bead %s not found", e.BeadID)
}

// SegmentUnknownError reports a reference to a segment the daemon has not
// discovered.
type SegmentUnknownError struct {
	Segment string
}

func (e *SegmentUnknownError) Error() string {
	return fmt.Sprintf("unknown segment %q", e.Segment)
}

// WorkspaceProvisionError reports a workspace creation failure. Assignment
// creation is atomic: when provisioning fails no records are written.
type WorkspaceProvisionError struct {
	Segment string
	Name    string
	Err     error
}

func (e *WorkspaceProvisionError) Error() string {
	return fmt.Sprintf("provisioning workspace for %s in %s: %v", e.Name, e.Segment, e.Err)
}

func (e *WorkspaceProvisionError) Unwrap() error { return e.Err }

// AlreadyRegisteredError reports an ancillary ID collision between different
// origins. Re-registering from the same origin is not an error.
type AlreadyRegisteredError struct {
	AncillaryID string
	Origin      string
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("ancillary %s already registered by %s", e.AncillaryID, e.Origin)
}

// AssignmentStateChangedError reports that a mutation lost a race: the
// assignment moved to a state where the requested transition no longer
// applies and its post-condition does not already hold.
type AssignmentStateChangedError struct {
	AncillaryID string
	Requested   string
}

func (e *AssignmentStateChangedError) Error() string {
	return fmt.Sprintf("assignment for %s changed state before %s could apply", e.AncillaryID, e.Requested)
}

// AssignmentNotFoundError reports a reference that resolves to no active
// assignment.
type AssignmentNotFoundError struct {
	Ref string
}

func (e *AssignmentNotFoundError) Error() string {
	return fmt.Sprintf("no active assignment for %s", e.Ref)
}

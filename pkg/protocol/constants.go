package protocol

// Directory and path constants used throughout Loom.
const (
	// LoomDir is the user-level state directory (e.g., ~/.loom).
	LoomDir = ".loom"

	// AncillariesDir is the subdirectory of LoomDir that holds per-ancillary
	// state. Work logs live at {AncillariesDir}/{ancillary-slug}/work/{bead_id}.jsonl.
	AncillariesDir = "ancillaries"

	// WorkDir is the per-ancillary subdirectory holding work logs.
	WorkDir = "work"

	// BranchPrefix is the git branch prefix for ancillary workspaces.
	BranchPrefix = "ancillary/"

	// HooksFile is the per-segment workspace setup/destroy hook definition.
	HooksFile = ".loom.yaml"
)

// Bead status values as tracked by the bead source.
const (
	BeadOpen       = "open"
	BeadInProgress = "in_progress"
	BeadClosed     = "closed"
)

// DefaultAssignee is the assignee recorded on beads claimed by an ancillary.
const DefaultAssignee = "claude"

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/version"
)

// newRootCmd creates the root loomd command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "loomd",
		Short:         "Loom ancillary orchestration daemon",
		Long:          "loomd runs coding-agent sessions against isolated git worktrees.\nIt assigns beads to ancillaries and streams their work logs to clients.",
		Version:       fmt.Sprintf("loomd %s", version.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newServeCmd(),
		newPairCmd(),
		newStatusCmd(),
		newAssignmentsCmd(),
		newLogsCmd(),
	)

	return cmd
}

package main

import (
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"

	"loom/pkg/protocol"
)

// newAssignmentsCmd creates the "loomd assignments" subcommand tree.
func newAssignmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assignments",
		Short: "Inspect and manage assignments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			return printAssignments(cmd.OutOrStdout(), client)
		},
	}

	cmd.AddCommand(
		newAssignmentsCreateCmd(),
		newAssignmentsCompleteCmd(),
		newAssignmentsAbortCmd(),
	)
	return cmd
}

func printAssignments(w io.Writer, client *apiClient) error {
	var list []protocol.Assignment
	if err := client.get("/api/assignments", &list); err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "no active assignments")
		return nil
	}
	for _, a := range list {
		fmt.Fprintf(w, "%s  %-20s %-15s %s\n", a.ID, a.AncillaryID, a.BeadID, a.Segment)
	}
	return nil
}

func newAssignmentsCreateCmd() *cobra.Command {
	var (
		beadID  string
		prompt  string
		segment string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Assign a bead (or ad-hoc prompt) to a fresh ancillary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (beadID == "") == (prompt == "") {
				return fmt.Errorf("exactly one of --bead or --prompt is required")
			}
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			var a protocol.Assignment
			req := protocol.AssignRequest{BeadID: beadID, Prompt: prompt, Segment: segment}
			if err := client.post("/api/assignments", req, &a); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s assigned to %s (workspace %s)\n",
				a.BeadID, a.AncillaryID, a.WorkspacePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&beadID, "bead", "", "bead id to assign")
	cmd.Flags().StringVar(&prompt, "prompt", "", "ad-hoc prompt; a bead is created for it")
	cmd.Flags().StringVar(&segment, "segment", "", "segment to work in")
	_ = cmd.MarkFlagRequired("segment")
	return cmd
}

func newAssignmentsCompleteCmd() *cobra.Command {
	var (
		keepOpen bool
		summary  string
	)
	cmd := &cobra.Command{
		Use:   "complete <assignment-id>",
		Short: "Complete an assignment and tear down its workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			q := url.Values{}
			if keepOpen {
				q.Set("keep_open", "true")
			}
			if summary != "" {
				q.Set("summary", summary)
			}
			path := "/api/assignments/" + url.PathEscape(args[0])
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			if err := client.del(path, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "completed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepOpen, "keep-open", false, "leave the bead open")
	cmd.Flags().StringVar(&summary, "summary", "", "completion summary for the history record")
	return cmd
}

func newAssignmentsAbortCmd() *cobra.Command {
	var closeBead bool
	cmd := &cobra.Command{
		Use:   "abort <assignment-id>",
		Short: "Abort an assignment, discarding its workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			path := "/api/assignments/" + url.PathEscape(args[0]) + "?abort=true"
			if closeBead {
				path += "&close=true"
			}
			if err := client.del(path, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "aborted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&closeBead, "close", false, "close the bead instead of returning it to open")
	return cmd
}

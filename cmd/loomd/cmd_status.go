package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"loom/pkg/protocol"
)

// newStatusCmd creates the "loomd status" subcommand.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, ancillary, and assignment status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), client)
		},
	}
}

func printStatus(w io.Writer, client *apiClient) error {
	var health map[string]string
	if err := client.get("/health", &health); err != nil {
		return err
	}
	fmt.Fprintf(w, "daemon: %s (%s)\n", health["status"], client.baseURL)

	var ancillaries []protocol.AncillaryInfo
	if err := client.get("/api/ancillaries/list", &ancillaries); err != nil {
		return err
	}
	if len(ancillaries) == 0 {
		fmt.Fprintln(w, "no active ancillaries")
		return nil
	}

	fmt.Fprintf(w, "%d active:\n", len(ancillaries))
	for _, a := range ancillaries {
		bead := a.BeadID
		if bead == "" {
			bead = "-"
		}
		fmt.Fprintf(w, "  %-20s %-14s %-15s %s\n", a.ID, a.Status, bead, a.Segment)
	}
	return nil
}

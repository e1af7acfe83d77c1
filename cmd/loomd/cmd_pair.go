package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/pkg/protocol"
)

// newPairCmd creates the "loomd pair" subcommand. It exchanges the pairing
// token shown at daemon startup for a long-lived session token and saves it
// for other commands and clients.
func newPairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pair <pairing-token>",
		Short: "Pair this client with a running daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			client, err := newAPIClient()
			if err != nil {
				return err
			}

			var resp protocol.PairResponse
			if err := client.post("/pair", protocol.PairRequest{PairingToken: args[0]}, &resp); err != nil {
				return fmt.Errorf("pairing: %w", err)
			}
			if err := bootstrapLoomDir(paths.LoomHome); err != nil {
				return err
			}
			if err := saveSession(paths.SessionPath, savedSession{
				SessionID:    resp.SessionID,
				SessionToken: resp.SessionToken,
			}); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "paired (session %s)\nsession token saved to %s\n",
				resp.SessionID, paths.SessionPath)
			return nil
		},
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"loom/pkg/eventlog"
)

// logsConfig holds configuration for the logs command.
type logsConfig struct {
	tail      int
	follow    bool
	eventType string
}

// newLogsCmd creates the "loomd logs" subcommand.
func newLogsCmd() *cobra.Command {
	var cfg logsConfig

	cmd := &cobra.Command{
		Use:   "logs [ancillary-id]",
		Short: "Query and tail the daemon operations log",
		Long:  "Displays lifecycle events from the daemon operations log.\nOptionally filter by ancillary and follow new events.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ancillaryID string
			if len(args) == 1 {
				ancillaryID = args[0]
			}

			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			r, err := eventlog.NewReader(paths.StateDBPath)
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			w := cmd.OutOrStdout()
			if cfg.follow {
				return followLogs(cmd.Context(), r, w, ancillaryID, cfg)
			}
			return printLogs(cmd.Context(), r, w, ancillaryID, cfg)
		},
	}

	cmd.Flags().IntVar(&cfg.tail, "tail", 20, "number of recent events to show")
	cmd.Flags().BoolVarP(&cfg.follow, "follow", "f", false, "poll for new events every 1s")
	cmd.Flags().StringVar(&cfg.eventType, "type", "", "filter by event type")

	return cmd
}

// printLogs displays the last N matching events in chronological order.
func printLogs(ctx context.Context, r *eventlog.Reader, w io.Writer, ancillaryID string, cfg logsConfig) error {
	events, err := r.Query(ctx, eventlog.QueryOpts{
		AncillaryID: ancillaryID,
		EventType:   cfg.eventType,
		Limit:       cfg.tail,
	})
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "no events found")
		return nil
	}
	// Query returns newest first; print oldest first.
	for i := len(events) - 1; i >= 0; i-- {
		formatEvent(w, events[i])
	}
	return nil
}

// followLogs prints the initial tail, then polls for newer events.
func followLogs(ctx context.Context, r *eventlog.Reader, w io.Writer, ancillaryID string, cfg logsConfig) error {
	events, err := r.Query(ctx, eventlog.QueryOpts{
		AncillaryID: ancillaryID,
		EventType:   cfg.eventType,
		Limit:       cfg.tail,
	})
	if err != nil {
		return err
	}
	var lastID int64
	for i := len(events) - 1; i >= 0; i-- {
		formatEvent(w, events[i])
		if events[i].ID > lastID {
			lastID = events[i].ID
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fresh, err := r.Query(ctx, eventlog.QueryOpts{
				AncillaryID: ancillaryID,
				EventType:   cfg.eventType,
				Limit:       100,
			})
			if err != nil {
				return err
			}
			for i := len(fresh) - 1; i >= 0; i-- {
				if fresh[i].ID > lastID {
					formatEvent(w, fresh[i])
					lastID = fresh[i].ID
				}
			}
		}
	}
}

// formatEvent writes one event as
// timestamp | ancillary | type | bead | source | payload.
func formatEvent(w io.Writer, e eventlog.Event) {
	ts := ""
	if !e.CreatedAt.IsZero() {
		ts = e.CreatedAt.Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(w, "%s | %-20s | %-20s | %-15s | %-8s | %s\n",
		ts, e.AncillaryID, e.Type, e.BeadID, e.Source, e.Payload)
}

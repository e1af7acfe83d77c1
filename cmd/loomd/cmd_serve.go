package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"loom/pkg/assignment"
	"loom/pkg/beads"
	"loom/pkg/config"
	"loom/pkg/daemon"
	"loom/pkg/executor"
	"loom/pkg/protocol"
	"loom/pkg/security"
	"loom/pkg/segments"
	"loom/pkg/workspace"
)

// newServeCmd creates the "loomd serve" subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the loom daemon",
		Long:  "Starts the daemon: recovers persisted assignments, discovers segments,\nand serves the REST and websocket API until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	paths, err := ResolvePaths()
	if err != nil {
		return err
	}
	if err := bootstrapLoomDir(paths.LoomHome); err != nil {
		return err
	}
	cfg, err := config.Load(paths.LoomHome)
	if err != nil {
		return err
	}
	// Env override beats the config file for the DB location.
	dbPath := cfg.DBPath
	if v := os.Getenv("LOOM_DB_PATH"); v != "" {
		dbPath = v
	}

	out := cmd.OutOrStdout()
	slog := newStartupLog(out, isatty.IsTerminal(os.Stdout.Fd()))

	db, err := openDB(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := initStateDB(db); err != nil {
		return err
	}
	slog.Step("state database ready " + dbPath)

	sec, err := security.NewManager(db)
	if err != nil {
		return err
	}
	slog.Step("pairing token: " + sec.PairingToken())

	segs, err := segments.New(cfg.Segments)
	if err != nil {
		return err
	}
	slog.Step(fmt.Sprintf("discovered %d segments", len(segs.List())))

	runner := beads.ExecRunner{}
	workspaces := workspace.New(cfg.WorkspaceRoot, runner)

	reg := prometheus.NewRegistry()
	metrics := daemon.NewMetrics(reg)

	store := assignment.NewStore(db)
	manager := assignment.NewManager(assignment.Options{
		Store:                store,
		Beads:                beads.NewCLISource(runner),
		Segments:             segs,
		Workspaces:           workspaces,
		Spawner:              &executor.CommandSpawner{Command: cfg.AgentCommand},
		AncillaryRoot:        cfg.AncillaryRoot,
		ReopenClosedOnResume: *cfg.ReopenClosedOnResume,
		AppendObserver:       func(protocol.WorkEvent) { metrics.EventsAppended.Inc() },
	})

	stop := slog.StartSpinner("recovering assignments")
	start := time.Now()
	err = manager.Recover()
	stop()
	if err != nil {
		return fmt.Errorf("recovering assignments: %w", err)
	}
	if active, err := store.List(); err == nil {
		metrics.ActiveAssignments.Set(float64(len(active)))
		slog.StepTimed(fmt.Sprintf("%d assignments recovered", len(active)), time.Since(start))
	}

	srv := daemon.New(daemon.Config{
		Listen:     cfg.Listen,
		Manager:    manager,
		Security:   sec,
		Segments:   segs,
		Workspaces: workspaces,
		Runner:     runner,
		Registry:   reg,
		Metrics:    metrics,
	})

	ctx, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Keep the segment set current as project directories come and go.
	go func() { _ = segs.Watch(ctx, segs.WatchDirs()) }()

	slog.Step("listening on " + cfg.Listen)
	return srv.Run(ctx, cfg.ShutdownTimeout)
}

package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/linkgate/internal/engine"
	"github.com/roach88/linkgate/internal/freeze"
	"github.com/roach88/linkgate/internal/hostio"
	"github.com/roach88/linkgate/internal/store"
)

// drainTimeout bounds the wait for in-flight events once input ends.
const drainTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registration gate over stdin/stdout",
		Long: `Run the registration coordinator for a game runtime.

The runtime writes one JSON request per line to stdin (join, move, command,
message, quit) and reads notify and move replies from stdout. Logs go to
stderr. Serving stops at end of input or on SIGINT/SIGTERM.

Example:
  linkgate serve --db ./linkgate.db
  linkgate serve --config ./linkgate.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}

	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())

	logger.Info("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path, store.WithMaxLinks(cfg.MaxLinks))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	frozen := freeze.NewRegistry()
	defer frozen.Reset()

	bridge := hostio.NewBridge(cmd.OutOrStdout(), logger)
	coord := engine.New(st, frozen, bridge,
		engine.WithLogger(logger),
		engine.WithChannel(cfg.Channel),
		engine.WithWorkers(cfg.Workers),
		engine.WithLookupTimeout(cfg.LookupTimeout),
	)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	runDone := make(chan error, 1)
	go func() { runDone <- coord.Run(ctx) }()

	serveErr := bridge.Serve(ctx, cmd.InOrStdin(), coord)

	// Input ended: let queued events and pending links finish before stopping.
	if ctx.Err() == nil {
		drainCtx, drainCancel := context.WithTimeout(ctx, drainTimeout)
		if err := coord.Sync(drainCtx); err != nil {
			logger.Warn("drain incomplete", "error", err)
		}
		drainCancel()
		coord.Stop()
	}

	runErr := <-runDone
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return WrapExitError(ExitFailure, "coordinator error", runErr)
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return WrapExitError(ExitFailure, "host bridge error", serveErr)
	}

	logger.Info("coordinator stopped gracefully", "frozen", frozen.Len())
	return nil
}

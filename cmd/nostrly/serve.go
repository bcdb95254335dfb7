package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"nostrly/internal/app"
	"nostrly/pkg/logger"
	"nostrly/pkg/state"
	"nostrly/pkg/state/shutdown"
)

const shutdownTimeout = 20 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eff, err := c.effective(cmd)
			if err != nil {
				shutdown.Abort("failed to build effective config", err, state.PathsFor(c.flags.DB).Crash)
			}

			// initialize logger after config is fully loaded
			logger.Init(eff.Config.Logging.Level)
			defer logger.Sync()

			logger.Info("effective_config_loaded", "source", eff.Source, "addr", eff.Addr, "db_path", eff.DBPath)
			logger.Info("system_logical_cores", "logical_cores", runtime.NumCPU())

			crashDir := state.PathsFor(eff.DBPath).Crash
			a, err := app.New(eff, version, commit, buildDate)
			if err != nil {
				fmt.Fprintf(os.Stderr, "app_init_failed: %v\n", err)
				shutdown.Abort("failed to initialize app", err, crashDir)
			}

			// set up context and signal handling for graceful shutdown
			ctx, cancel := shutdown.SetupSignalHandler(context.Background())
			defer cancel()

			if err := a.Run(ctx); err != nil {
				shutdown.Abort("app run failed", err, crashDir)
			}

			// bounded so teardown cannot hang forever
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			return a.Shutdown(shutdownCtx)
		},
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"nostrly/internal/app"
	"nostrly/pkg/config"
	"nostrly/pkg/logger"
)

// cli carries the shared flag values for every subcommand.
type cli struct {
	flags *config.Flags
	out   io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}
	root := &cobra.Command{
		Use:   "nostrly",
		Short: "Local nostr event cache and thread engine",
		Long: `nostrly caches nostr events fetched from upstream relays in an embedded
store and assembles reply threads from them. Run without a subcommand to
start the HTTP daemon.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	c.flags = config.BindFlags(root.PersistentFlags())

	serve := c.serveCmd()
	root.RunE = serve.RunE
	root.AddCommand(
		serve,
		c.eventCmd(),
		c.threadCmd(),
		c.sweepCmd(),
		c.inspectCmd(),
		c.purgeCmd(),
		c.benchCmd(),
	)
	return root
}

// effective layers file, env and flags into the config for cmd.
func (c *cli) effective(cmd *cobra.Command) (config.EffectiveConfigResult, error) {
	c.flags.Collect(cmd.Flags())
	fileCfg, exists, err := config.ParseConfigFile(*c.flags)
	if err != nil {
		return config.EffectiveConfigResult{}, fmt.Errorf("load config file: %w", err)
	}
	envCfg, envRes := config.ParseConfigEnvs()
	eff, err := config.LoadEffectiveConfig(*c.flags, fileCfg, exists, envCfg, envRes)
	if err != nil {
		return config.EffectiveConfigResult{}, fmt.Errorf("build effective config: %w", err)
	}
	return eff, nil
}

// oneShot builds an App for commands that print JSON on stdout; logs go to
// stderr so the output stays machine readable.
func (c *cli) oneShot(cmd *cobra.Command) (*app.App, error) {
	eff, err := c.effective(cmd)
	if err != nil {
		return nil, err
	}
	logger.InitWriter(os.Stderr, eff.Config.Logging.Level)
	return app.New(eff, version, commit, buildDate)
}

func closeApp(a *app.App) {
	if err := a.Shutdown(context.Background()); err != nil {
		logger.Error("app_shutdown_failed", "error", err)
	}
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

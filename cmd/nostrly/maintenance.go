package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nostrly/pkg/logger"
	"nostrly/pkg/state"
	"nostrly/pkg/store"
)

func (c *cli) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired events and thread index entries once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.oneShot(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			res, err := a.Sweeper().RunImmediate()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "swept %s events and %s threads in %s\n",
				humanize.Comma(int64(res.Events)), humanize.Comma(int64(res.Threads)), res.Duration)
			return nil
		},
	}
}

func (c *cli) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [db-path]",
		Short: "Count cached keys per namespace without modifying the store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := c.flags.DB
			if len(args) == 1 {
				dbPath = args[0]
			}
			logger.InitWriter(os.Stderr, "warn")

			db, err := store.Open(state.PathsFor(dbPath).Store, store.Options{ReadOnly: true})
			if err != nil {
				return err
			}
			defer db.Close()

			census, err := db.Census()
			if err != nil {
				return err
			}
			st := db.Stats()
			fmt.Fprintf(c.out, "Inspecting %s\n", db.Path())
			fmt.Fprintln(c.out, "=====================================")
			printCounts(c, census)
			fmt.Fprintf(c.out, "\n  disk usage: %s\n", humanize.IBytes(st.DiskSpaceUsage))
			fmt.Fprintf(c.out, "  L0 files:   %d\n", st.L0Files)
			fmt.Fprintf(c.out, "  WAL:        %s\n", humanize.IBytes(st.WALBytes))
			return nil
		},
	}
}

func (c *cli) purgeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every cached event and thread index entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eff, err := c.effective(cmd)
			if err != nil {
				return err
			}
			logger.InitWriter(os.Stderr, eff.Config.Logging.Level)

			if !yes {
				ok, err := confirm(fmt.Sprintf("Purge all cached data under %s?", eff.DBPath))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(c.out, "aborted")
					return nil
				}
			}

			paths, err := state.Ensure(eff.DBPath)
			if err != nil {
				return err
			}
			db, err := store.Open(paths.Store, store.Options{})
			if err != nil {
				return err
			}
			defer db.Close()

			removed, err := db.Purge()
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Purged:")
			printCounts(c, removed)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// confirm asks on an interactive terminal; anything else must pass --yes.
func confirm(question string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("stdin is not a terminal; pass --yes to confirm")
	}
	fmt.Printf("%s [y/N]: ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func printCounts(c *cli, counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.out, "  %-14s %s\n", name+":", humanize.Comma(int64(counts[name])))
	}
}

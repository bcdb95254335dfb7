package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) eventCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "event <id>",
		Short: "Fetch one event through the cache and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.oneShot(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ev, ok := a.Engine().GetEvent(context.Background(), args[0])
			if !ok {
				return fmt.Errorf("event %s not found", args[0])
			}
			return c.printJSON(ev)
		},
	}
}

func (c *cli) threadCmd() *cobra.Command {
	var opener string
	cmd := &cobra.Command{
		Use:   "thread <root>",
		Short: "Assemble a thread and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.oneShot(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			return c.printJSON(a.Engine().EnsureThread(context.Background(), args[0], opener))
		},
	}
	cmd.Flags().StringVar(&opener, "opener", "", "Event the reader opened the thread from")
	return cmd
}

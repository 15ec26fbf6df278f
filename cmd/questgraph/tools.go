package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"questgraph/pkg/asset"
	"questgraph/pkg/layout"
	"questgraph/pkg/quest"
	"questgraph/pkg/tui"
)

func newValidateCmd(_ *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <asset>",
		Short: "Check a quest asset and report its shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := asset.Load(args[0], asset.Options{})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ok: %s, %d pools, %d waves\n", q.Name, len(q.Pools()), q.ComputeWaves())
			if err := unreachable(q); err != nil {
				fmt.Fprintln(out, err)
			}
			return nil
		},
	}
}

func newGraphCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "graph <asset>",
		Short: "Draw the pools of a quest as they stand at the first event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o := asset.Options{}
			if opts.seed != 0 {
				o.Selector = quest.NewSeededSelector(opts.seed)
			}
			q, err := asset.Load(args[0], o)
			if err != nil {
				return err
			}
			q.Init()
			q.NextEvent()

			lo := layout.DefaultOptions()
			lo.Selector = o.Selector
			fmt.Fprint(cmd.OutOrStdout(), tui.Graph(layout.Build(q, -1, lo)))
			return nil
		},
	}
}

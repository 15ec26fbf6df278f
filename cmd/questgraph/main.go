// questgraph plays and serves branching quests built from event pools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"questgraph/pkg/version"
)

const defaultConfigPath = "configs/questgraph.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// options are the flags shared by all commands.
type options struct {
	configPath string
	asset      string
	seed       uint64
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "questgraph",
		Short:         "Play and serve branching quests",
		Long:          "questgraph walks quest graphs made of event pools, in the terminal (play) or over HTTP and websocket (serve).",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Config file (created with defaults when missing)")
	root.PersistentFlags().StringVarP(&opts.asset, "asset", "a", "", "Quest asset, overrides story.asset")
	root.PersistentFlags().Uint64Var(&opts.seed, "seed", 0, "Selection seed, overrides story.seed (0 keeps the config value)")

	root.AddCommand(
		newPlayCmd(opts),
		newServeCmd(opts),
		newValidateCmd(opts),
		newGraphCmd(opts),
		newInitConfigCmd(opts),
	)
	return root
}

func newInitConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write a default config file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := writeDefaultConfig(opts.configPath); err != nil {
				return fmt.Errorf("failed to generate config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config file generated: %s\n", opts.configPath)
			return nil
		},
	}
}

// Package cli implements the hierachain-sim command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/VanDung-dev/HieraChain-Simulator/api"
)

// Name is the program name printed by version.
const Name = "HieraChain-Simulator"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCommand creates the root command for hierachain-sim.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:          "hierachain-sim",
		Short:        "In-process ledger simulator with a native request bridge",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file (overrides HIE_SIM_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewCallCommand(opts))
	cmd.AddCommand(NewMethodsCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// Execute runs the root command against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewVersionCommand prints the program version.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", Name, api.Version)
			return err
		},
	}
}

// Package cli wires configuration, logging and signals around the server.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the tmjlink command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tmjlink",
		Short: "Bridge between an editor and a computation kernel",
		Long: `tmjlink caches the output of a computation kernel per session, and renders the
history of each session as html. Editor clients talk to it over a local tcp connection.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewStatusCommand())
	return cmd
}

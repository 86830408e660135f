package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCmd creates the version command. With --server it also asks the running
// manager for its version.
func newVersionCmd() *cobra.Command {
	var server bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of local-mcp-manager",
		Long:  `Prints the version of this binary, and with --server the version of the running manager.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "local-mcp-manager version %s\n", rootCmd.Version)
			if !server {
				return nil
			}
			v, err := clientFlags.Client().Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "server version %s\n", v)
			return nil
		},
	}
	cmd.Flags().BoolVar(&server, "server", false, "Also print the version of the running manager")
	return cmd
}

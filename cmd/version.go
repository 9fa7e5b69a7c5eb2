package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCmd creates the Cobra command for displaying the application version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of tokend",
		Run: func(cmd *cobra.Command, args []string) {
			// rootCmd.Version is set by main via SetVersion.
			fmt.Fprintf(cmd.OutOrStdout(), "tokend version %s\n", rootCmd.Version)
		},
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}

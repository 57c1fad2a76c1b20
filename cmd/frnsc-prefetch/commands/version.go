package commands

import (
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("frnsc-prefetch %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}

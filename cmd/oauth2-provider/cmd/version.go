package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/oauth2-provider/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "oauth2-provider", version.Full())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

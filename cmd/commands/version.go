package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beatoz/fxopgen/cmd/version"
)

// VersionCmd prints the fxopgen version.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}
